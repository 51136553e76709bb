package cfg

// Dominators computes the immediate dominator of every node reachable from
// the initial node over the non-continue graph, with the iterative
// data-flow scheme of Cooper, Harvey and Kennedy. The initial node is its
// own dominator; unreachable nodes map to NoNode.
func (g *Graph) Dominators() map[NodeID]NodeID {
	order, position := g.reversePostOrder(g.initial, SkipContinue, false)
	return g.dominatorsOver(order, position, g.initial, false)
}

// PostDominators computes immediate post-dominators over the non-continue
// graph. Because several terminals may exist, a virtual exit is assumed:
// every terminal's post-dominator is NoNode and the frontier is seeded from
// the terminal set.
func (g *Graph) PostDominators() map[NodeID]NodeID {
	idom := map[NodeID]NodeID{}
	for _, n := range g.nodes {
		idom[n.ID] = NoNode
	}
	if len(g.terminals) == 0 {
		return idom
	}
	// run the dominator scheme on the reversed graph from each terminal,
	// merging at a virtual exit represented by NoNode
	order, position := g.reversePostOrderMulti(g.terminals, SkipContinue, true)
	virtual := map[NodeID]bool{}
	for _, t := range g.terminals {
		virtual[t] = true
	}
	changed := true
	for changed {
		changed = false
		for _, v := range order {
			if virtual[v] {
				continue
			}
			var newIdom = NoNode
			for _, e := range g.Out(v) {
				if e.Type == EdgeContinue {
					continue
				}
				p := e.To
				if _, ok := position[p]; !ok {
					continue
				}
				if idom[p] == NoNode && !virtual[p] {
					continue
				}
				if newIdom == NoNode {
					newIdom = p
					continue
				}
				newIdom = g.intersect(idom, position, newIdom, p, virtual)
			}
			if newIdom != NoNode && idom[v] != newIdom {
				idom[v] = newIdom
				changed = true
			}
		}
	}
	return idom
}

func (g *Graph) dominatorsOver(order []NodeID, position map[NodeID]int, root NodeID, _ bool) map[NodeID]NodeID {
	idom := map[NodeID]NodeID{}
	for _, n := range g.nodes {
		idom[n.ID] = NoNode
	}
	if g.Node(root) == nil {
		return idom
	}
	idom[root] = root
	changed := true
	for changed {
		changed = false
		for _, v := range order {
			if v == root {
				continue
			}
			newIdom := NoNode
			for _, e := range g.In(v) {
				if e.Type == EdgeContinue {
					continue
				}
				p := e.From
				if _, ok := position[p]; !ok || idom[p] == NoNode {
					continue
				}
				if newIdom == NoNode {
					newIdom = p
					continue
				}
				newIdom = g.intersect(idom, position, newIdom, p, nil)
			}
			if newIdom != NoNode && idom[v] != newIdom {
				idom[v] = newIdom
				changed = true
			}
		}
	}
	return idom
}

// intersect walks two dominator chains up to their common ancestor. A nil
// idom link (NoNode) or membership in the virtual set ends a chain.
func (g *Graph) intersect(idom map[NodeID]NodeID, position map[NodeID]int, a, b NodeID, virtual map[NodeID]bool) NodeID {
	for a != b {
		for a != b && position[a] > position[b] {
			next := idom[a]
			if next == NoNode || next == a {
				if virtual != nil && virtual[a] {
					return b
				}
				return a
			}
			a = next
		}
		for b != a && position[b] > position[a] {
			next := idom[b]
			if next == NoNode || next == b {
				if virtual != nil && virtual[b] {
					return a
				}
				return b
			}
			b = next
		}
	}
	return a
}

// reversePostOrder returns the reverse post-order of nodes reachable from
// start (following out-edges, or in-edges when reversed is true) and the
// position of each node within that order.
func (g *Graph) reversePostOrder(start NodeID, filter EdgeFilter, reversed bool) ([]NodeID, map[NodeID]int) {
	return g.reversePostOrderMulti([]NodeID{start}, filter, reversed)
}

func (g *Graph) reversePostOrderMulti(starts []NodeID, filter EdgeFilter, reversed bool) ([]NodeID, map[NodeID]int) {
	visited := map[NodeID]bool{}
	var post []NodeID

	type frame struct {
		node NodeID
		edge int
	}
	for _, start := range starts {
		if g.Node(start) == nil || visited[start] {
			continue
		}
		visited[start] = true
		work := []frame{{node: start}}
		for len(work) > 0 {
			f := &work[len(work)-1]
			var edges []*Edge
			if reversed {
				edges = g.In(f.node)
			} else {
				edges = g.Out(f.node)
			}
			advanced := false
			for f.edge < len(edges) {
				e := edges[f.edge]
				f.edge++
				if !filter(e) {
					continue
				}
				next := e.To
				if reversed {
					next = e.From
				}
				if visited[next] {
					continue
				}
				visited[next] = true
				work = append(work, frame{node: next})
				advanced = true
				break
			}
			if advanced {
				continue
			}
			post = append(post, f.node)
			work = work[:len(work)-1]
		}
	}
	order := make([]NodeID, 0, len(post))
	for i := len(post) - 1; i >= 0; i-- {
		order = append(order, post[i])
	}
	position := make(map[NodeID]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	return order, position
}
