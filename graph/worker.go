package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/vk/taskgrid"
)

type workerState int32

const (
	workerDelay workerState = iota
	workerReady
	workerBusy
	workerCompleted
)

// workerContext pairs a worker goroutine with its one-shot completion
// signal. done is closed when the goroutine exits; err is written before
// the close and holds the stored failure, if any.
type workerContext struct {
	id    uint32
	state atomic.Int32
	err   error
	done  chan struct{}
}

func (w *workerContext) setState(s workerState) { w.state.Store(int32(s)) }

func (g *Graph) spawnWorkers(count int) {
	for i := 0; i < count; i++ {
		w := &workerContext{id: g.nextWorkerID, done: make(chan struct{})}
		g.nextWorkerID++
		g.workerCtxs = append(g.workerCtxs, w)
		go g.runWorker(w)
	}
}

// runWorker is the processing loop for a single graph worker. It consults
// the resolver under the tasks mutex, claims the returned node, runs it
// outside the lock, and notifies peers on every completion. A body failure
// trips the engine's termination flag so pending workers exit without
// running further nodes.
func (g *Graph) runWorker(w *workerContext) {
	logger := g.logger.With("worker", w.id)
	logger.Debug("worker started")
	w.setState(workerBusy)
	defer close(w.done)

	var hint *node
	for {
		if g.terminating.Load() {
			break
		}

		g.tasksMu.Lock()
		st, next := g.traceReadyNode(hint)
		switch st {
		case traceReady:
			next.setState(taskgrid.Executing)
			g.removeReadyCache(next)
			g.tasksMu.Unlock()
		case tracePending:
			// Block until a peer completes a node or termination is
			// signalled; the blocker becomes the next search hint.
			g.taskAvailable.Wait()
			g.tasksMu.Unlock()
			hint = next
			continue
		case traceCompleted:
			g.tasksMu.Unlock()
			g.taskAvailable.Broadcast()
			w.setState(workerCompleted)
			logger.Debug("worker exited")
			return
		}

		logger.Debug("executing task", "task", next.id)
		if err := runBody(next.run); err != nil {
			logger.Error("task failed", "task", next.id, "error", err)
			w.err = fmt.Errorf("task %q: %w", next.id, err)
			g.terminating.Store(true)
			g.taskAvailable.Broadcast()
			w.setState(workerCompleted)
			return
		}
		next.setState(taskgrid.Completed)
		logger.Debug("task completed", "task", next.id)
		g.taskAvailable.Broadcast()
		hint = next
	}

	g.taskAvailable.Broadcast()
	w.setState(workerCompleted)
	logger.Debug("worker exited")
}

// runBody invokes a unit's body, converting panics into errors so they
// travel the same failure channel.
func runBody(r taskgrid.Runnable) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.Execute()
}
