package graph

import (
	"sync/atomic"

	"github.com/vk/taskgrid"
)

const (
	stateReady     = taskgrid.Ready
	stateExecuting = taskgrid.Executing
	stateCompleted = taskgrid.Completed
)

// node is a graph-owned unit of work augmented with its adjacency lists.
// Both lists preserve insertion order; the edge relation is kept symmetric
// (a in predecessors(b) iff b in successors(a)) by every mutation path.
// The adjacency lists and membership in the owner's node set are guarded by
// the owner's tasks mutex; the state cell is atomic.
type node struct {
	owner *Graph
	id    string
	run   taskgrid.Runnable

	state atomic.Int32

	predecessors []*node
	successors   []*node
}

func (n *node) currentState() taskgrid.State {
	return taskgrid.State(n.state.Load())
}

func (n *node) setState(s taskgrid.State) {
	n.state.Store(int32(s))
}

// hasPredecessor reports a direct edge; linear scan, graphs are small.
func (n *node) hasPredecessor(p *node) bool {
	for _, existing := range n.predecessors {
		if existing == p {
			return true
		}
	}
	return false
}

func (n *node) hasSuccessor(s *node) bool {
	for _, existing := range n.successors {
		if existing == s {
			return true
		}
	}
	return false
}

func removeNode(list []*node, target *node) []*node {
	for i, existing := range list {
		if existing == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// reachableAsPredecessor walks the predecessor cone of from and reports
// whether target appears in it. Used to refuse cycle-closing edges before
// insertion. Caller holds the owner's tasks mutex.
func reachableAsPredecessor(from, target *node) bool {
	if from == target {
		return true
	}
	seen := map[*node]struct{}{from: {}}
	stack := []*node{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range current.predecessors {
			if p == target {
				return true
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			stack = append(stack, p)
		}
	}
	return false
}
