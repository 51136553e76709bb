package cfg

// EdgeFilter selects which edges a traversal follows.
type EdgeFilter func(*Edge) bool

// AllEdges follows every edge.
func AllEdges(*Edge) bool { return true }

// SkipContinue follows every edge except continue back-edges.
func SkipContinue(e *Edge) bool { return e.Type != EdgeContinue }

// OnlyContinue follows continue back-edges only.
func OnlyContinue(e *Edge) bool { return e.Type == EdgeContinue }

// ReachableFrom returns the set of nodes reachable from start along edges
// accepted by the filter. The traversal is an iterative BFS.
func (g *Graph) ReachableFrom(start NodeID, filter EdgeFilter) map[NodeID]bool {
	seen := map[NodeID]bool{}
	if g.Node(start) == nil {
		return seen
	}
	queue := []NodeID{start}
	seen[start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Out(cur) {
			if !filter(e) || seen[e.To] {
				continue
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return seen
}

// ReachableTo returns the set of nodes from which target is reachable along
// edges accepted by the filter.
func (g *Graph) ReachableTo(target NodeID, filter EdgeFilter) map[NodeID]bool {
	seen := map[NodeID]bool{}
	if g.Node(target) == nil {
		return seen
	}
	queue := []NodeID{target}
	seen[target] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.In(cur) {
			if !filter(e) || seen[e.From] {
				continue
			}
			seen[e.From] = true
			queue = append(queue, e.From)
		}
	}
	return seen
}

// CanReach reports whether to is reachable from from along filtered edges.
func (g *Graph) CanReach(from, to NodeID, filter EdgeFilter) bool {
	return g.ReachableFrom(from, filter)[to]
}

// Paths enumerates node paths from start to any node satisfying stop,
// following filtered edges, visiting each node at most once per path, and
// returning at most limit paths. Paths longer than maxLen nodes are cut.
func (g *Graph) Paths(start NodeID, stop func(NodeID) bool, filter EdgeFilter, limit, maxLen int) [][]NodeID {
	type frame struct {
		node NodeID
		path []NodeID
	}
	var out [][]NodeID
	stack := []frame{{node: start, path: []NodeID{start}}}
	for len(stack) > 0 && len(out) < limit {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if stop(f.node) {
			out = append(out, f.path)
			continue
		}
		if len(f.path) >= maxLen {
			continue
		}
		edges := g.Out(f.node)
		for i := len(edges) - 1; i >= 0; i-- {
			e := edges[i]
			if !filter(e) {
				continue
			}
			onPath := false
			for _, n := range f.path {
				if n == e.To {
					onPath = true
					break
				}
			}
			if onPath {
				continue
			}
			next := make([]NodeID, len(f.path)+1)
			copy(next, f.path)
			next[len(f.path)] = e.To
			stack = append(stack, frame{node: e.To, path: next})
		}
	}
	return out
}
