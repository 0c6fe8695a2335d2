package graph

// The resolver is the algorithmic heart of the engine: a pure function of
// the current node states that tells a worker which node to run next, to
// block, or to exit. All resolver entry points are called with the tasks
// mutex held.

type traceState int

const (
	traceReady traceState = iota
	tracePending
	traceCompleted
)

// traceReadyDepend walks the predecessor cone of entry depth-first, skipping
// predecessors in avoids. It returns the deepest runnable ancestor of entry
// when one exists; a Pending result names a blocked ancestor the caller may
// use as its next hint.
func (g *Graph) traceReadyDepend(entry *node, avoids map[*node]struct{}) (traceState, *node) {
	switch entry.currentState() {
	case stateExecuting:
		return tracePending, entry
	case stateCompleted:
		return traceCompleted, entry
	}

	var pending *node
	for _, p := range entry.predecessors {
		if p == nil {
			continue
		}
		if _, skip := avoids[p]; skip {
			continue
		}
		switch p.currentState() {
		case stateReady:
			// A Ready predecessor may itself be blocked deeper down; a
			// Ready result anywhere in its cone wins immediately, a
			// Pending one is remembered while the sweep continues.
			if st, n := g.traceReadyDepend(p, avoids); st == traceReady {
				return st, n
			} else if st == tracePending {
				pending = n
			}
		case stateExecuting:
			pending = p
		}
	}

	if pending != nil {
		return tracePending, pending
	}
	return traceReady, entry
}

// traceReadyNode maps a worker's hint (the node it just touched, or nil on a
// fresh start) to its next action: a Ready node to claim, a Pending blocker
// to wait out, or Completed when the graph is drained.
func (g *Graph) traceReadyNode(hint *node) (traceState, *node) {
	if hint == nil {
		if len(g.readyCache) > 0 {
			return g.traceReadyDepend(g.readyCache[0], nil)
		}
		for _, n := range g.nodes {
			if n.currentState() == stateExecuting {
				return tracePending, n
			}
		}
		return traceCompleted, nil
	}

	switch hint.currentState() {
	case stateExecuting:
		// Another worker owns the hint; one of its successors may still be
		// runnable from elsewhere in its cone.
		for _, s := range hint.successors {
			if s.currentState() != stateReady {
				continue
			}
			if st, n := g.traceReadyDepend(s, nil); st == traceReady {
				return st, n
			}
		}
		if st, n := g.traceReadyNode(nil); st == traceReady {
			return st, n
		}
		return tracePending, hint

	case stateReady:
		st, n := g.traceReadyDepend(hint, nil)
		if st == traceReady {
			return st, n
		}
		if st == tracePending {
			if st2, n2 := g.traceReadyNode(nil); st2 == traceReady {
				return st2, n2
			}
			return st, n
		}

	case stateCompleted:
		// Finishing a node makes its successors the most likely ready
		// candidates; start the search there before sweeping the cache.
		var pending *node
		for _, s := range hint.successors {
			if s.currentState() != stateReady {
				continue
			}
			st, n := g.traceReadyDepend(s, nil)
			if st == traceReady {
				return st, n
			}
			if st == tracePending {
				pending = n
			}
		}
		st, n := g.traceReadyNode(nil)
		if st == traceReady {
			return st, n
		}
		if pending != nil {
			return tracePending, pending
		}
		if st == tracePending {
			return st, n
		}
	}

	return traceCompleted, nil
}

// removeReadyCache prunes a dispatched node from the ready cache. Caller
// holds the tasks mutex.
func (g *Graph) removeReadyCache(n *node) bool {
	for i, cached := range g.readyCache {
		if cached == n {
			g.readyCache = append(g.readyCache[:i], g.readyCache[i+1:]...)
			return true
		}
	}
	return false
}
