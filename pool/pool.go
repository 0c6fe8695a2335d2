// Package pool implements a queue-driven worker pool executing an
// open-ended stream of independent units of work. The pool keeps a set of
// permanently-resident core workers and grows with idle-timeout seasonal
// workers up to a configured ceiling.
package pool

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vk/taskgrid"
)

// Pool dispatches queued units of work to a mix of core and seasonal
// workers. A Pool must not be copied after first use.
//
// The FIFO queue and the worker records are guarded by a single mutex; one
// work-available condition signals enqueue, start, and termination.
type Pool struct {
	core     int
	max      int
	lifetime time.Duration
	fixed    bool
	logger   *slog.Logger

	mu            sync.Mutex
	workAvailable *sync.Cond
	queue         []*poolTask
	workers       []*workerContext
	nextWorkerID  uint32

	terminating  atomic.Bool
	waitForStart atomic.Bool
}

// poolTask carries a queued unit together with its lifecycle state. The
// queue owns the unit while resident; ownership transfers to the worker
// that pops it.
type poolTask struct {
	run   taskgrid.Runnable
	state atomic.Int32
}

func (t *poolTask) setState(s taskgrid.State) { t.state.Store(int32(s)) }

// New constructs a Pool with the given options. Defaults: 2 core workers,
// no ceiling, 60s seasonal lifetime, no start gate.
func New(opts ...Option) *Pool {
	p := &Pool{
		core:     2,
		max:      0,
		lifetime: 60 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("pool", uuid.NewString()[:8])
	p.workAvailable = sync.NewCond(&p.mu)
	return p
}

// NewFixed constructs the fixed pool variant: core and maximum sizes are
// equal, the seasonal lifetime is zero, and execution is gated on Start.
// Every worker is spawned as seasonal, so once started the pool drains the
// queue and its workers self-retire.
func NewFixed(size int, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	p := New(opts...)
	p.core = size
	p.max = size
	p.lifetime = 0
	p.fixed = true
	p.waitForStart.Store(true)
	return p
}

// Push hands a unit of work to the pool, which takes ownership of it.
// Returns false when the pool is not executable. Pushing sweeps retired
// workers and spawns a new one when no worker is idle and the ceiling
// allows it: core kind while the core quota is unfilled, seasonal beyond.
func (p *Pool) Push(r taskgrid.Runnable) bool {
	if r == nil || !p.Executable() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepCompletedLocked()

	if (p.max == 0 || len(p.workers) < p.max) && !p.anyIdleLocked() {
		kind := kindCore
		if p.fixed || len(p.workers) >= p.core {
			kind = kindSeasonal
		}
		p.spawnLocked(kind)
	}

	p.queue = append(p.queue, &poolTask{run: r})
	p.workAvailable.Signal()
	return true
}

// PushFunc hands a plain function to the pool.
func (p *Pool) PushFunc(fn func() error) bool {
	if fn == nil {
		return false
	}
	return p.Push(taskgrid.Func(fn))
}

// Start clears the start gate and the termination flag and wakes every
// worker.
func (p *Pool) Start() {
	p.waitForStart.Store(false)
	p.terminating.Store(false)
	p.workAvailable.Broadcast()
}

// Terminate signals every worker to exit at its next safe point; in-flight
// bodies are not interrupted. When alsoWait is true, Terminate blocks in
// Wait and returns its result.
func (p *Pool) Terminate(alsoWait bool) error {
	p.terminating.Store(true)
	p.workAvailable.Broadcast()
	if alsoWait {
		return p.Wait()
	}
	return nil
}

// Wait harvests every worker's completion signal, aggregates stored
// failures, and resets the engine state. Core workers only exit on
// termination, so Wait on a live pool blocks until Terminate is called or
// (for the fixed variant) the workers drain out.
func (p *Pool) Wait() error {
	p.mu.Lock()
	p.sweepCompletedLocked()
	workers := append([]*workerContext(nil), p.workers...)
	p.mu.Unlock()

	var failures []error
	for _, w := range workers {
		<-w.done
		if w.err != nil {
			failures = append(failures, w.err)
		}
	}

	p.reset()

	if len(failures) > 0 {
		return &taskgrid.RuntimeError{
			Reason: errors.Join(failures...).Error(),
			Errs:   failures,
		}
	}
	return nil
}

// Clear discards every queued unit that has not been handed to a worker.
// Workers are unaffected.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
}

// Empty reports whether the queue is empty.
func (p *Pool) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0
}

// Len returns the number of queued units not yet handed to a worker.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Executable reports whether the pool accepts new work: the termination
// flag is clear, and for the fixed variant either the start gate is still
// closed or at least one worker survives.
func (p *Pool) Executable() bool {
	if p.terminating.Load() {
		return false
	}
	if !p.fixed {
		return true
	}
	if p.waitForStart.Load() {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers) > 0
}

// WorkerCount returns the number of worker records after sweeping retired
// ones.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepCompletedLocked()
	return len(p.workers)
}

func (p *Pool) anyIdleLocked() bool {
	for _, w := range p.workers {
		if w.currentState() == workerReady {
			return true
		}
	}
	return false
}

// sweepCompletedLocked drops workers whose goroutines have retired.
func (p *Pool) sweepCompletedLocked() {
	kept := p.workers[:0]
	for _, w := range p.workers {
		if w.currentState() == workerCompleted {
			<-w.done
			continue
		}
		kept = append(kept, w)
	}
	p.workers = kept
}

func (p *Pool) reset() {
	p.terminating.Store(false)
	p.waitForStart.Store(true)
	p.mu.Lock()
	p.workers = nil
	p.mu.Unlock()
}
