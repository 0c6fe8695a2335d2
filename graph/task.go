package graph

import (
	"fmt"

	"github.com/vk/taskgrid"
)

// Task is a lightweight, copyable, non-owning handle to a node owned by a
// Graph. The zero Task references nothing; every edge-mutation entry point
// checks for that. Handles stay valid until the node is erased or the graph
// is cleared.
type Task struct {
	node *node
}

// IsZero reports whether the handle references nothing.
func (t Task) IsZero() bool { return t.node == nil }

// Equal reports whether two handles reference the same node.
func (t Task) Equal(other Task) bool { return t.node == other.node }

// ID returns the node's identity used in engine logs. Empty for a zero
// handle.
func (t Task) ID() string {
	if t.node == nil {
		return ""
	}
	return t.node.id
}

// State returns the node's lifecycle state. A zero handle reports Ready.
func (t Task) State() taskgrid.State {
	if t.node == nil {
		return taskgrid.Ready
	}
	return t.node.currentState()
}

// ResetState forces the node back to Ready. No effect on a zero handle.
func (t Task) ResetState() {
	if t.node != nil {
		t.node.setState(taskgrid.Ready)
	}
}

// Depend declares that t runs only after every given task has completed
// (adds edges other -> t). Adding an edge that is already present is a
// no-op. The call stops at the first failure: an empty handle, a self-edge,
// a handle owned by a different graph, or an edge that would close a cycle.
func (t Task) Depend(others ...Task) error {
	for _, other := range others {
		if err := t.depend(other); err != nil {
			return err
		}
	}
	return nil
}

// Precede declares that every given task runs only after t has completed.
// Defined as other.Depend(t).
func (t Task) Precede(others ...Task) error {
	for _, other := range others {
		if err := other.depend(t); err != nil {
			return err
		}
	}
	return nil
}

func (t Task) depend(other Task) error {
	if t.node == nil || other.node == nil {
		return &taskgrid.InvalidArgumentError{Reason: "graph: empty task handle"}
	}
	if t.node == other.node {
		return &taskgrid.InvalidArgumentError{Reason: "graph: task cannot depend on itself"}
	}
	if t.node.owner != other.node.owner {
		return &taskgrid.InvalidArgumentError{
			Reason: fmt.Sprintf("graph: tasks %q and %q belong to different graphs", t.node.id, other.node.id),
		}
	}

	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()

	// Adding other -> t closes a cycle iff t is already reachable in the
	// predecessor cone of other.
	if reachableAsPredecessor(other.node, t.node) {
		return &taskgrid.RuntimeError{
			Reason: fmt.Sprintf("graph: dependency %q -> %q would create a cycle", other.node.id, t.node.id),
		}
	}

	if !t.node.hasPredecessor(other.node) {
		t.node.predecessors = append(t.node.predecessors, other.node)
	}
	if !other.node.hasSuccessor(t.node) {
		other.node.successors = append(other.node.successors, t.node)
	}
	return nil
}

// EraseDepend removes the given tasks from t's dependencies. Absent edges
// and empty handles are ignored.
func (t Task) EraseDepend(others ...Task) {
	for _, other := range others {
		t.eraseDepend(other)
	}
}

// ErasePrecede removes t from the given tasks' dependencies. Absent edges
// and empty handles are ignored.
func (t Task) ErasePrecede(others ...Task) {
	for _, other := range others {
		other.eraseDepend(t)
	}
}

func (t Task) eraseDepend(other Task) {
	if t.node == nil || other.node == nil || t.node.owner != other.node.owner {
		return
	}
	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	t.node.predecessors = removeNode(t.node.predecessors, other.node)
	other.node.successors = removeNode(other.node.successors, t.node)
}

// NumPredecessors returns the number of tasks t depends on.
func (t Task) NumPredecessors() int {
	if t.node == nil {
		return 0
	}
	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	return len(t.node.predecessors)
}

// NumSuccessors returns the number of tasks depending on t.
func (t Task) NumSuccessors() int {
	if t.node == nil {
		return 0
	}
	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	return len(t.node.successors)
}

// PredecessorAt returns the i-th dependency in insertion order. A zero Task
// is returned when the handle is empty or the index is out of range.
func (t Task) PredecessorAt(i int) Task {
	if t.node == nil {
		return Task{}
	}
	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	if i < 0 || i >= len(t.node.predecessors) {
		return Task{}
	}
	return Task{node: t.node.predecessors[i]}
}

// SuccessorAt returns the i-th dependent in insertion order.
func (t Task) SuccessorAt(i int) Task {
	if t.node == nil {
		return Task{}
	}
	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	if i < 0 || i >= len(t.node.successors) {
		return Task{}
	}
	return Task{node: t.node.successors[i]}
}

// Predecessors returns handles to every dependency in insertion order.
func (t Task) Predecessors() []Task {
	if t.node == nil {
		return nil
	}
	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	out := make([]Task, len(t.node.predecessors))
	for i, p := range t.node.predecessors {
		out[i] = Task{node: p}
	}
	return out
}

// Successors returns handles to every dependent in insertion order.
func (t Task) Successors() []Task {
	if t.node == nil {
		return nil
	}
	g := t.node.owner
	g.tasksMu.Lock()
	defer g.tasksMu.Unlock()
	out := make([]Task, len(t.node.successors))
	for i, s := range t.node.successors {
		out[i] = Task{node: s}
	}
	return out
}
