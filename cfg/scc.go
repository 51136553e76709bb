package cfg

// SCC computes the strongly connected components of the graph restricted to
// edges accepted by the filter, using an iterative Tarjan traversal.
// Components come out in reverse topological order; node order within a
// component follows the stack discipline and is deterministic for a fixed
// graph.
func (g *Graph) SCC(filter EdgeFilter) [][]NodeID {
	n := len(g.nodes)
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var (
		counter int
		stack   []NodeID
		out     [][]NodeID
	)

	type frame struct {
		node NodeID
		edge int // next outgoing edge offset to examine
	}

	for root := 0; root < n; root++ {
		if index[root] != -1 {
			continue
		}
		work := []frame{{node: NodeID(root)}}
		for len(work) > 0 {
			f := &work[len(work)-1]
			v := f.node
			if f.edge == 0 {
				index[v] = counter
				lowlink[v] = counter
				counter++
				stack = append(stack, v)
				onStack[v] = true
			}
			advanced := false
			edges := g.out[v]
			for f.edge < len(edges) {
				e := g.edges[edges[f.edge]]
				f.edge++
				if !filter(e) {
					continue
				}
				w := e.To
				if index[w] == -1 {
					work = append(work, frame{node: w})
					advanced = true
					break
				}
				if onStack[w] && index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
			if advanced {
				continue
			}
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
			if lowlink[v] == index[v] {
				var comp []NodeID
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				out = append(out, comp)
			}
		}
	}
	return out
}

// NontrivialSCCs returns the components with more than one node, plus the
// single-node components that carry a filtered self-loop.
func (g *Graph) NontrivialSCCs(filter EdgeFilter) [][]NodeID {
	var out [][]NodeID
	for _, comp := range g.SCC(filter) {
		if len(comp) > 1 {
			out = append(out, comp)
			continue
		}
		for _, e := range g.Out(comp[0]) {
			if filter(e) && e.To == comp[0] {
				out = append(out, comp)
				break
			}
		}
	}
	return out
}
