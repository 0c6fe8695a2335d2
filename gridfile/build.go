package gridfile

import (
	"context"
	"fmt"

	"github.com/vk/taskgrid/graph"
	"github.com/vk/taskgrid/internal/ctxlog"
)

// namedTask carries a grid task's name into the engine so worker logs
// attribute work to grid names rather than generated ids.
type namedTask struct {
	name string
	body func() error
}

func (t *namedTask) ID() string     { return t.name }
func (t *namedTask) Execute() error { return t.body() }

// Build constructs a validated, executable graph from a definition. It
// creates every task first, then links depends_on edges, so declaration
// order never matters. Unknown handlers, unknown dependencies, duplicate
// task names, and cycle-closing edges are build errors.
func Build(ctx context.Context, def *Definition, reg *Registry) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("building graph from grid definition", "tasks", len(def.Tasks))

	g := graph.New(
		graph.WithWorkers(def.Workers),
		graph.WithOptimizedWorkers(def.Optimized),
		graph.WithLogger(logger),
	)

	handles := make(map[string]graph.Task, len(def.Tasks))
	for _, td := range def.Tasks {
		if _, exists := handles[td.Name]; exists {
			return nil, fmt.Errorf("gridfile: duplicate task %q", td.Name)
		}
		handler, ok := reg.Lookup(td.Run)
		if !ok {
			return nil, fmt.Errorf("gridfile: task %q: unknown handler %q", td.Name, td.Run)
		}
		body, err := handler(td.Args)
		if err != nil {
			return nil, fmt.Errorf("gridfile: task %q: %w", td.Name, err)
		}
		handle, err := g.Push(&namedTask{name: td.Name, body: body})
		if err != nil {
			return nil, fmt.Errorf("gridfile: task %q: %w", td.Name, err)
		}
		handles[td.Name] = handle
	}

	for _, td := range def.Tasks {
		for _, dep := range td.DependsOn {
			depHandle, ok := handles[dep]
			if !ok {
				return nil, fmt.Errorf("gridfile: task %q depends on unknown task %q", td.Name, dep)
			}
			if err := handles[td.Name].Depend(depHandle); err != nil {
				return nil, fmt.Errorf("gridfile: task %q: %w", td.Name, err)
			}
		}
	}

	logger.Debug("graph build complete", "tasks", g.Len())
	return g, nil
}
