package cfg

// ForkRegion pairs a fork with its join and lists, per fork edge, the nodes
// strictly inside that branch in deterministic BFS order. A direct
// fork-to-join edge contributes an empty branch. Join is NoNode when the
// pairing is broken; the branch then extends to wherever the flow ends.
type ForkRegion struct {
	Fork     NodeID
	Join     NodeID
	Branches [][]NodeID
}

// ForkRegions slices every parallel region of the graph.
func (g *Graph) ForkRegions() []ForkRegion {
	joins := map[int]NodeID{}
	for _, n := range g.nodes {
		if n.Kind == KindJoin {
			if _, dup := joins[n.Parallel]; !dup {
				joins[n.Parallel] = n.ID
			}
		}
	}
	var out []ForkRegion
	for _, n := range g.nodes {
		if n.Kind != KindFork {
			continue
		}
		region := ForkRegion{Fork: n.ID, Join: NoNode}
		if join, ok := joins[n.Parallel]; ok {
			region.Join = join
		}
		for _, e := range g.Out(n.ID) {
			if e.Type != EdgeFork {
				continue
			}
			if e.To == region.Join {
				region.Branches = append(region.Branches, nil)
				continue
			}
			region.Branches = append(region.Branches, g.branchNodes(e.To, region.Join))
		}
		out = append(out, region)
	}
	return out
}

// branchNodes walks one parallel branch from entry up to (excluding) the
// join, in BFS order.
func (g *Graph) branchNodes(entry, join NodeID) []NodeID {
	var order []NodeID
	seen := map[NodeID]bool{entry: true}
	queue := []NodeID{entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, e := range g.Out(cur) {
			if e.Type == EdgeContinue || e.To == join || seen[e.To] {
				continue
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return order
}
