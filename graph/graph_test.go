package graph

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid"
)

type countingTask struct {
	runs atomic.Int32
}

func (c *countingTask) Execute() error {
	c.runs.Add(1)
	return nil
}

func TestGraphPush(t *testing.T) {
	t.Run("nil runnable is rejected", func(t *testing.T) {
		g := New()
		_, err := g.Push(nil)
		assert.True(t, taskgrid.IsInvalidArgument(err))

		_, err = g.PushFunc(nil)
		assert.True(t, taskgrid.IsInvalidArgument(err))
	})

	t.Run("duplicate runnable is rejected", func(t *testing.T) {
		g := New()
		unit := &countingTask{}

		_, err := g.Push(unit)
		require.NoError(t, err)
		_, err = g.Push(unit)
		assert.True(t, taskgrid.IsInvalidArgument(err))
	})

	t.Run("push while executing is rejected", func(t *testing.T) {
		g := New()
		g.executing.Store(true)
		defer g.executing.Store(false)

		_, err := g.Push(&countingTask{})
		assert.True(t, taskgrid.IsRuntime(err))
	})

	t.Run("identifier names the task", func(t *testing.T) {
		g := New()
		task, err := g.Push(&namedUnit{name: "ingest"})
		require.NoError(t, err)
		assert.Equal(t, "ingest", task.ID())

		anon, err := g.PushFunc(func() error { return nil })
		require.NoError(t, err)
		assert.Equal(t, "task-1", anon.ID())
	})
}

type namedUnit struct {
	name string
}

func (u *namedUnit) ID() string     { return u.name }
func (u *namedUnit) Execute() error { return nil }

func TestGraphErase(t *testing.T) {
	t.Run("removes the node and its edges", func(t *testing.T) {
		g := New()
		tasks := pushN(t, g, 3)
		require.NoError(t, tasks[1].Depend(tasks[0]))
		require.NoError(t, tasks[1].Precede(tasks[2]))

		ok, err := g.Erase(&tasks[1])
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, tasks[1].IsZero())
		assert.Equal(t, 2, g.Len())
		assert.Equal(t, 0, tasks[0].NumSuccessors())
		assert.Equal(t, 0, tasks[2].NumPredecessors())
	})

	t.Run("empty or foreign handle returns false", func(t *testing.T) {
		g := New()
		other := New()
		foreign := pushN(t, other, 1)

		ok, err := g.Erase(&Task{})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = g.Erase(&foreign[0])
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = g.Erase(nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("erase while executing is rejected", func(t *testing.T) {
		g := New()
		tasks := pushN(t, g, 1)
		g.executing.Store(true)
		defer g.executing.Store(false)

		_, err := g.Erase(&tasks[0])
		assert.True(t, taskgrid.IsRuntime(err))
	})
}

func TestGraphClear(t *testing.T) {
	g := New()
	pushN(t, g, 3)

	require.NoError(t, g.Clear())
	assert.True(t, g.Empty())

	g.executing.Store(true)
	defer g.executing.Store(false)
	assert.True(t, taskgrid.IsRuntime(g.Clear()))
}

func TestGraphRunChain(t *testing.T) {
	g := New(WithWorkers(4))

	var counter atomic.Int64
	var mu sync.Mutex
	var order []string

	record := func(name string, add int64) func() error {
		return func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			counter.Add(add)
			return nil
		}
	}

	a, err := g.PushFunc(record("a", 1))
	require.NoError(t, err)
	b, err := g.PushFunc(record("b", 2))
	require.NoError(t, err)
	c, err := g.PushFunc(record("c", 3))
	require.NoError(t, err)
	require.NoError(t, b.Depend(a))
	require.NoError(t, c.Depend(b))

	require.NoError(t, g.Start())
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(6), counter.Load())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	for _, task := range []Task{a, b, c} {
		assert.Equal(t, taskgrid.Completed, task.State())
	}
}

func TestGraphRunFibonacci(t *testing.T) {
	g := New(WithWorkers(4))

	fib := make([]int, 10)
	tasks := make([]Task, 10)
	for i := 0; i < 10; i++ {
		i := i
		task, err := g.PushFunc(func() error {
			switch i {
			case 0:
				fib[0] = 0
			case 1:
				fib[1] = 1
			default:
				fib[i] = fib[i-1] + fib[i-2]
			}
			return nil
		})
		require.NoError(t, err)
		tasks[i] = task
		if i >= 1 {
			require.NoError(t, task.Depend(tasks[i-1]))
		}
		if i >= 2 {
			require.NoError(t, task.Depend(tasks[i-2]))
		}
	}

	require.NoError(t, g.Start())
	require.NoError(t, g.Wait())

	assert.Equal(t, []int{0, 1, 1, 2, 3, 5, 8, 13, 21, 34}, fib)
}

func TestGraphFailureSkipsSuccessors(t *testing.T) {
	g := New(WithWorkers(2))

	var bRan, cRan atomic.Bool
	a, err := g.PushFunc(func() error { return errors.New("boom") })
	require.NoError(t, err)
	b, err := g.PushFunc(func() error { bRan.Store(true); return nil })
	require.NoError(t, err)
	c, err := g.PushFunc(func() error { cRan.Store(true); return nil })
	require.NoError(t, err)
	require.NoError(t, b.Depend(a))
	require.NoError(t, c.Depend(b))

	require.NoError(t, g.Start())
	err = g.Wait()
	require.Error(t, err)
	assert.True(t, taskgrid.IsRuntime(err))
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, bRan.Load())
	assert.False(t, cRan.Load())

	// The graph stays valid for another run.
	require.NoError(t, g.Start())
	err = g.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestGraphPanicIsPromoted(t *testing.T) {
	g := New(WithWorkers(1))

	_, err := g.PushFunc(func() error { panic("kaput") })
	require.NoError(t, err)

	require.NoError(t, g.Start())
	err = g.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaput")
}

func TestGraphWaitFor(t *testing.T) {
	g := New(WithWorkers(1))

	_, err := g.PushFunc(func() error {
		time.Sleep(300 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, g.Start())
	status, err := g.WaitFor(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, taskgrid.WaitTimeout, status)

	// The sleeping body eventually returns and a full wait drains cleanly.
	require.NoError(t, g.Wait())
	assert.Equal(t, taskgrid.Completed, g.TaskAt(0).State())
}

func TestGraphWaitForReady(t *testing.T) {
	g := New(WithWorkers(2))
	pushN(t, g, 2)

	require.NoError(t, g.Start())
	status, err := g.WaitFor(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, taskgrid.WaitReady, status)
}

func TestGraphEmptyRun(t *testing.T) {
	g := New()
	require.NoError(t, g.Start())
	require.NoError(t, g.Wait())
	require.NoError(t, g.Wait()) // idempotent drain
}

func TestGraphOptimizedWorkerCount(t *testing.T) {
	t.Run("clamped to task count", func(t *testing.T) {
		g := New(WithWorkers(8))
		pushN(t, g, 3)

		require.NoError(t, g.Start())
		assert.Len(t, g.workerCtxs, 3)
		require.NoError(t, g.Wait())
	})

	t.Run("unclamped when disabled", func(t *testing.T) {
		g := New(WithWorkers(8), WithOptimizedWorkers(false))
		pushN(t, g, 3)

		require.NoError(t, g.Start())
		assert.Len(t, g.workerCtxs, 8)
		require.NoError(t, g.Wait())
	})
}

func TestGraphRestart(t *testing.T) {
	g := New(WithWorkers(2))

	units := []*countingTask{{}, {}, {}}
	tasks := make([]Task, len(units))
	for i, unit := range units {
		task, err := g.Push(unit)
		require.NoError(t, err)
		tasks[i] = task
	}
	require.NoError(t, tasks[1].Depend(tasks[0]))
	require.NoError(t, tasks[2].Depend(tasks[1]))

	require.NoError(t, g.Start())
	require.NoError(t, g.Wait())
	require.NoError(t, g.Start())
	require.NoError(t, g.Wait())

	for _, unit := range units {
		assert.Equal(t, int32(2), unit.runs.Load())
	}
}

func TestGraphStartWhileExecuting(t *testing.T) {
	g := New(WithWorkers(1))
	release := make(chan struct{})
	_, err := g.PushFunc(func() error {
		<-release
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, g.Start())
	err = g.Start()
	assert.True(t, taskgrid.IsRuntime(err))

	close(release)
	require.NoError(t, g.Wait())
}

func TestGraphTerminate(t *testing.T) {
	g := New(WithWorkers(1))

	started := make(chan struct{})
	var rest atomic.Int32
	_, err := g.PushFunc(func() error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := g.PushFunc(func() error {
			rest.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, g.Start())
	<-started
	require.NoError(t, g.Terminate(true))

	// The in-flight body finished; everything behind it was skipped.
	assert.Equal(t, int32(0), rest.Load())
	assert.Equal(t, taskgrid.Completed, g.TaskAt(0).State())
}

func TestGraphAccessors(t *testing.T) {
	g := New(WithWorkers(3), WithOptimizedWorkers(false))

	assert.Equal(t, 3, g.Workers())
	assert.False(t, g.OptimizedWorkers())

	g.SetWorkers(0)
	assert.Equal(t, 1, g.Workers())
	g.SetOptimizedWorkers(true)
	assert.True(t, g.OptimizedWorkers())

	assert.True(t, g.Empty())
	tasks := pushN(t, g, 2)
	assert.Equal(t, 2, g.Len())
	assert.True(t, g.TaskAt(0).Equal(tasks[0]))
	assert.True(t, g.TaskAt(5).IsZero())
	assert.Len(t, g.Tasks(), 2)
}
