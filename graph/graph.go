// Package graph implements a multi-threaded task executor over a directed
// acyclic graph of precedence constraints. Tasks are pushed into a Graph,
// edges are declared through Task handles, and Start dispatches ready tasks
// to a bounded set of worker goroutines.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vk/taskgrid"
)

// Graph owns a set of task nodes and executes them respecting their
// dependency edges. A Graph must not be copied after first use; hand the
// pointer around instead.
//
// The node set and the ready cache are guarded by a single engine-wide
// tasks mutex. One condition variable signals both new-work arrival and
// completion events to the workers.
type Graph struct {
	workers   int
	optimized bool
	logger    *slog.Logger

	tasksMu       sync.Mutex
	taskAvailable *sync.Cond
	nodes         []*node
	readyCache    []*node

	terminating atomic.Bool
	executing   atomic.Bool

	workerCtxs   []*workerContext
	nextWorkerID uint32
	nextNodeID   int
}

// New constructs a Graph with the given options. Defaults: 2 workers,
// optimized worker count enabled, slog default logger.
func New(opts ...Option) *Graph {
	g := &Graph{
		workers:   2,
		optimized: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("graph", uuid.NewString()[:8])
	g.taskAvailable = sync.NewCond(&g.tasksMu)
	return g
}

// Push adds a unit of work to the graph and returns a handle to it. The
// graph owns the node from this point on. Fails with InvalidArgument for a
// nil or already-pushed unit, and with RuntimeError while executing.
func (g *Graph) Push(r taskgrid.Runnable) (Task, error) {
	if r == nil {
		return Task{}, &taskgrid.InvalidArgumentError{Reason: "graph: cannot push a nil runnable"}
	}
	if g.executing.Load() {
		return Task{}, &taskgrid.RuntimeError{Reason: "graph: cannot push tasks while executing"}
	}

	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()

	// Identity is the unit's address; func-typed runnables have no stable
	// identity and skip the duplicate check.
	if reflect.TypeOf(r).Comparable() {
		for _, n := range g.nodes {
			if n.run == r {
				return Task{}, &taskgrid.InvalidArgumentError{
					Reason: fmt.Sprintf("graph: runnable already pushed as %q", n.id),
				}
			}
		}
	}

	n := &node{owner: g, run: r, id: g.nodeID(r)}
	g.nextNodeID++
	g.nodes = append(g.nodes, n)
	return Task{node: n}, nil
}

// PushFunc adds a plain function as a unit of work.
func (g *Graph) PushFunc(fn func() error) (Task, error) {
	if fn == nil {
		return Task{}, &taskgrid.InvalidArgumentError{Reason: "graph: cannot push a nil function"}
	}
	return g.Push(taskgrid.Func(fn))
}

func (g *Graph) nodeID(r taskgrid.Runnable) string {
	if ident, ok := r.(taskgrid.Identifier); ok {
		if id := ident.ID(); id != "" {
			return id
		}
	}
	return fmt.Sprintf("task-%d", g.nextNodeID)
}

// Erase removes the node referenced by t from the graph along with every
// edge incident to it, and invalidates the handle. Returns false if the
// handle is empty or references a node outside this graph. Fails with
// RuntimeError while executing.
func (g *Graph) Erase(t *Task) (bool, error) {
	if g.executing.Load() {
		return false, &taskgrid.RuntimeError{Reason: "graph: cannot erase tasks while executing"}
	}
	if t == nil || t.node == nil || t.node.owner != g {
		return false, nil
	}

	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()

	target := t.node
	found := false
	for _, n := range g.nodes {
		if n == target {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	for _, p := range target.predecessors {
		p.successors = removeNode(p.successors, target)
	}
	for _, s := range target.successors {
		s.predecessors = removeNode(s.predecessors, target)
	}
	g.nodes = removeNode(g.nodes, target)
	t.node = nil
	return true, nil
}

// Clear resets the internal execution state and discards every node. Fails
// with RuntimeError while executing.
func (g *Graph) Clear() error {
	if g.executing.Load() {
		return &taskgrid.RuntimeError{Reason: "graph: cannot clear while executing"}
	}
	g.reset()
	g.tasksMu.Lock()
	g.nodes = nil
	g.tasksMu.Unlock()
	return nil
}

// Start begins a new execution of the graph. Any previous execution is
// drained first, every node is reset to Ready, the ready cache is seeded
// with the full node set, and workers are spawned. The spawned worker count
// is min(workers, task count) when optimized workers are enabled. Fails
// with RuntimeError if already executing.
func (g *Graph) Start() error {
	if g.executing.Load() {
		return &taskgrid.RuntimeError{Reason: "graph: cannot start while already executing"}
	}

	// Drain any finished workers from a prior run; a stored failure the
	// caller never harvested surfaces here rather than being dropped.
	if err := g.Wait(); err != nil {
		return err
	}
	g.reset()

	g.tasksMu.Lock()
	for _, n := range g.nodes {
		n.setState(taskgrid.Ready)
	}
	g.readyCache = append([]*node(nil), g.nodes...)
	count := g.workers
	if g.optimized && count > len(g.nodes) {
		count = len(g.nodes)
	}
	g.tasksMu.Unlock()

	g.executing.Store(true)
	g.logger.Debug("starting execution", "tasks", g.Len(), "workers", count)
	g.spawnWorkers(count)
	return nil
}

// Wait blocks until every worker of the current execution has finished,
// then resets the engine state. Worker failures are aggregated into a
// single RuntimeError whose message joins them newline-separated. Calling
// Wait with no execution in flight is a no-op.
func (g *Graph) Wait() error {
	var failures []error
	for _, w := range g.workerCtxs {
		<-w.done
		if w.err != nil {
			failures = append(failures, w.err)
		}
	}
	g.reset()
	if len(failures) > 0 {
		return &taskgrid.RuntimeError{
			Reason: errors.Join(failures...).Error(),
			Errs:   failures,
		}
	}
	return nil
}

// WaitFor waits like Wait but gives up once the timeout budget is spent.
// The budget is debited as each worker's completion signal resolves; if any
// signal is still outstanding at zero, WaitFor returns WaitTimeout without
// draining. Otherwise it performs the full Wait and returns WaitReady along
// with any aggregated failure.
func (g *Graph) WaitFor(timeout time.Duration) (taskgrid.WaitStatus, error) {
	deadline := time.Now().Add(timeout)
	for _, w := range g.workerCtxs {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return taskgrid.WaitTimeout, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-w.done:
			timer.Stop()
		case <-timer.C:
			return taskgrid.WaitTimeout, nil
		}
	}
	return taskgrid.WaitReady, g.Wait()
}

// Terminate sets the termination flag and wakes every worker. Workers
// observe the flag at their next safe point; in-flight bodies are not
// interrupted. When alsoWait is true, Terminate blocks in Wait and returns
// its result.
func (g *Graph) Terminate(alsoWait bool) error {
	g.terminating.Store(true)
	g.taskAvailable.Broadcast()
	if alsoWait {
		return g.Wait()
	}
	return nil
}

// Empty reports whether the graph holds no tasks.
func (g *Graph) Empty() bool { return g.Len() == 0 }

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	return len(g.nodes)
}

// TaskAt returns a handle to the i-th task in push order, or a zero handle
// when out of range.
func (g *Graph) TaskAt(i int) Task {
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	if i < 0 || i >= len(g.nodes) {
		return Task{}
	}
	return Task{node: g.nodes[i]}
}

// Tasks returns handles to every task in push order.
func (g *Graph) Tasks() []Task {
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	out := make([]Task, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = Task{node: n}
	}
	return out
}

// Workers returns the configured worker count.
func (g *Graph) Workers() int { return g.workers }

// SetWorkers changes the worker count used by the next Start. Values below
// 1 are normalized to 1.
func (g *Graph) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	g.workers = n
}

// OptimizedWorkers reports whether the spawned worker count is clamped to
// the task count.
func (g *Graph) OptimizedWorkers() bool { return g.optimized }

// SetOptimizedWorkers toggles the clamp used by the next Start.
func (g *Graph) SetOptimizedWorkers(enabled bool) { g.optimized = enabled }

func (g *Graph) reset() {
	g.executing.Store(false)
	g.terminating.Store(false)
	g.tasksMu.Lock()
	g.readyCache = nil
	g.tasksMu.Unlock()
	g.workerCtxs = nil
}
