// Package async runs a graph on a detached goroutine and reports completion
// through a one-shot error channel.
package async

import (
	"context"

	"github.com/vk/taskgrid/graph"
)

// Start begins one execution of the graph on a detached goroutine. The
// returned channel receives exactly one value: the aggregated error from
// the run, or nil. Cancelling the context terminates the graph
// cooperatively; in-flight task bodies still run to completion.
//
// The graph must stay valid until the channel resolves.
func Start(ctx context.Context, g *graph.Graph) <-chan error {
	done := make(chan error, 1)
	go func() {
		if err := g.Start(); err != nil {
			done <- err
			return
		}
		stop := context.AfterFunc(ctx, func() { g.Terminate(false) })
		defer stop()
		done <- g.Wait()
	}()
	return done
}

// StartLoop runs the graph the given number of times in sequence, waiting
// out each execution before starting the next. The channel resolves after
// the final wait, or with the first error encountered.
func StartLoop(ctx context.Context, g *graph.Graph, times int) <-chan error {
	done := make(chan error, 1)
	go func() {
		stop := context.AfterFunc(ctx, func() { g.Terminate(false) })
		defer stop()
		for i := 0; i < times; i++ {
			if err := ctx.Err(); err != nil {
				done <- err
				return
			}
			if err := g.Wait(); err != nil {
				done <- err
				return
			}
			if err := g.Start(); err != nil {
				done <- err
				return
			}
		}
		done <- g.Wait()
	}()
	return done
}
