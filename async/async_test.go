package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgrid"
	"github.com/vk/taskgrid/async"
	"github.com/vk/taskgrid/graph"
)

func TestStart(t *testing.T) {
	t.Run("resolves after the graph completes", func(t *testing.T) {
		g := graph.New(graph.WithWorkers(2))
		var counter atomic.Int32
		for i := 0; i < 3; i++ {
			_, err := g.PushFunc(func() error {
				counter.Add(1)
				return nil
			})
			require.NoError(t, err)
		}

		require.NoError(t, <-async.Start(context.Background(), g))
		assert.Equal(t, int32(3), counter.Load())
	})

	t.Run("carries the aggregated failure", func(t *testing.T) {
		g := graph.New()
		_, err := g.PushFunc(func() error { return errors.New("boom") })
		require.NoError(t, err)

		err = <-async.Start(context.Background(), g)
		require.Error(t, err)
		assert.True(t, taskgrid.IsRuntime(err))
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("context cancellation terminates the graph", func(t *testing.T) {
		g := graph.New(graph.WithWorkers(1))
		ctx, cancel := context.WithCancel(context.Background())

		started := make(chan struct{})
		var tail atomic.Bool
		head, err := g.PushFunc(func() error {
			close(started)
			time.Sleep(80 * time.Millisecond)
			return nil
		})
		require.NoError(t, err)
		rest, err := g.PushFunc(func() error {
			tail.Store(true)
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, rest.Depend(head))

		done := async.Start(ctx, g)
		<-started
		cancel()
		require.NoError(t, <-done)
		assert.False(t, tail.Load(), "successor must be skipped after cancellation")
	})
}

func TestStartLoop(t *testing.T) {
	g := graph.New(graph.WithWorkers(2))
	var counter atomic.Int32
	_, err := g.PushFunc(func() error {
		counter.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, <-async.StartLoop(context.Background(), g, 3))
	assert.Equal(t, int32(3), counter.Load())
}
