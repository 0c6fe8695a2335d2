package pool

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vk/taskgrid"
)

type workerKind int

const (
	kindCore workerKind = iota
	kindSeasonal
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
	kind  workerKind
	state atomic.Int32
	err   error
	done  chan struct{}
}

func (w *workerContext) setState(s workerState) { w.state.Store(int32(s)) }

func (w *workerContext) currentState() workerState { return workerState(w.state.Load()) }

// spawnLocked creates one worker of the given kind. Caller holds the mutex.
func (p *Pool) spawnLocked(kind workerKind) {
	w := &workerContext{id: p.nextWorkerID, kind: kind, done: make(chan struct{})}
	p.nextWorkerID++
	p.workers = append(p.workers, w)
	go p.runWorker(w)
}

// runWorker is the processing loop for a pool worker. Core workers block
// indefinitely waiting for work; seasonal workers bound the wait by the
// pool's idle lifetime and self-retire when it lapses with nothing queued.
func (p *Pool) runWorker(w *workerContext) {
	logger := p.logger.With("worker", w.id, "seasonal", w.kind == kindSeasonal)
	logger.Debug("worker started")
	defer close(w.done)

	w.setState(workerDelay)
	p.awaitStartSignal()

	failed := false
	for {
		w.setState(workerReady)

		p.mu.Lock()
		if w.kind == kindSeasonal {
			p.waitForWorkLocked(p.lifetime)
			w.setState(workerBusy)
			if p.terminating.Load() || len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
		} else {
			for !p.terminating.Load() && len(p.queue) == 0 {
				p.workAvailable.Wait()
			}
			w.setState(workerBusy)
			if p.terminating.Load() {
				p.mu.Unlock()
				break
			}
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		logger.Debug("executing task")
		next.setState(taskgrid.Executing)
		if err := runBody(next.run); err != nil {
			// A failing body retires this worker; the failure is stored in
			// the completion signal and harvested by Wait.
			logger.Error("task failed", "error", err)
			w.err = err
			failed = true
			break
		}
		next.setState(taskgrid.Completed)
	}

	// A failed worker keeps its Busy state so the completed-worker sweep
	// cannot discard its stored failure before Wait harvests it.
	if !failed {
		w.setState(workerCompleted)
	}
	logger.Debug("worker exited")
}

// awaitStartSignal blocks until the start gate opens. Pools built without
// the gate pass straight through.
func (p *Pool) awaitStartSignal() {
	p.mu.Lock()
	for p.waitForStart.Load() {
		p.workAvailable.Wait()
	}
	p.mu.Unlock()
}

// waitForWorkLocked is a condition wait bounded by d: it returns when work
// is queued, termination is signalled, or the deadline lapses. The bound is
// enforced by a broadcast timer so the single work-available condition
// keeps serving every wake-up source. Caller holds the mutex.
func (p *Pool) waitForWorkLocked(d time.Duration) {
	deadline := time.Now().Add(d)
	for !p.terminating.Load() && len(p.queue) == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		timer := time.AfterFunc(remaining, p.workAvailable.Broadcast)
		p.workAvailable.Wait()
		timer.Stop()
	}
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
