package lts

import (
	"fmt"
	"sort"
)

// Normalize compresses the system with the same trace-preserving rules the
// projector applies to machines: silent chains fuse, transitions agreeing
// on their label merge their targets, and states mixing silent and
// observable steps are saturated with their tau-closure's observables.
// Both sides of a bisimulation run must be normalized with this one
// routine so their branching structure lines up.
func (l *LTS) Normalize() *LTS {
	n := l.StateCount()
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	terminal := append([]bool(nil), l.terminal...)

	type edge struct {
		from, to int
		label    Label
	}
	var edges []edge
	for from := range l.transitions {
		for _, tr := range l.transitions[from] {
			edges = append(edges, edge{from: from, to: tr.To, label: tr.Label})
		}
	}

	type entry struct {
		label Label
		to    int
	}
	canonical := func() map[int][]entry {
		outs := map[int][]entry{}
		dedup := map[string]bool{}
		for _, e := range edges {
			cf, ct := find(e.from), find(e.to)
			if e.label.IsTau() && cf == ct {
				continue
			}
			key := fmt.Sprintf("%d|%s|%d", cf, e.label, ct)
			if dedup[key] {
				continue
			}
			dedup[key] = true
			outs[cf] = append(outs[cf], entry{label: e.label, to: ct})
		}
		return outs
	}
	sorted := func(outs map[int][]entry) []int {
		states := make([]int, 0, len(outs))
		for s := range outs {
			states = append(states, s)
		}
		sort.Ints(states)
		return states
	}

	for {
		outs := canonical()
		changed := false
		union := func(a, b int) {
			ra, rb := find(a), find(b)
			if ra == rb {
				return
			}
			flag := terminal[ra] || terminal[rb]
			parent[rb] = ra
			terminal[find(ra)] = flag
			changed = true
		}
		for _, s := range sorted(outs) {
			entries := outs[s]
			if len(entries) == 1 && entries[0].label.IsTau() {
				union(s, entries[0].to)
				continue
			}
			byLabel := map[Label][]int{}
			var order []Label
			for _, e := range entries {
				if e.label.IsTau() {
					continue
				}
				if _, ok := byLabel[e.label]; !ok {
					order = append(order, e.label)
				}
				byLabel[e.label] = append(byLabel[e.label], e.to)
			}
			for _, label := range order {
				targets := byLabel[label]
				for _, t := range targets[1:] {
					union(targets[0], t)
				}
			}
		}
		if changed {
			continue
		}

		// saturation pass
		var candidates []int
		for _, s := range sorted(outs) {
			taus := 0
			for _, e := range outs[s] {
				if e.label.IsTau() {
					taus++
				}
			}
			if taus > 0 && len(outs[s]) > 1 {
				candidates = append(candidates, s)
			}
		}
		if len(candidates) > 0 {
			existing := map[string]bool{}
			for _, e := range edges {
				existing[fmt.Sprintf("%d|%s|%d", find(e.from), e.label, find(e.to))] = true
			}
			var additions []edge
			saturatedStates := map[int]bool{}
			for _, s := range candidates {
				closure := []int{s}
				seen := map[int]bool{s: true}
				for i := 0; i < len(closure); i++ {
					for _, e := range outs[closure[i]] {
						if e.label.IsTau() && !seen[e.to] {
							seen[e.to] = true
							closure = append(closure, e.to)
						}
					}
				}
				for _, member := range closure {
					if terminal[member] {
						terminal[s] = true
					}
					if member == s {
						continue
					}
					for _, e := range outs[member] {
						if e.label.IsTau() {
							continue
						}
						key := fmt.Sprintf("%d|%s|%d", s, e.label, e.to)
						if existing[key] {
							continue
						}
						existing[key] = true
						additions = append(additions, edge{from: s, to: e.to, label: e.label})
					}
				}
				saturatedStates[s] = true
			}
			var kept []edge
			for _, e := range edges {
				if e.label.IsTau() && saturatedStates[find(e.from)] {
					continue
				}
				kept = append(kept, e)
			}
			edges = append(kept, additions...)
			continue
		}

		for s := 0; s < n; s++ {
			if terminal[s] {
				terminal[find(s)] = true
			}
		}

		// rebuild with dense ids in BFS order
		out := New(l.Name)
		mapping := map[int]int{}
		root := find(l.Initial)
		mapping[root] = out.AddState()
		out.Initial = mapping[root]
		queue := []int{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if terminal[cur] {
				out.MarkTerminal(mapping[cur])
			}
			for _, e := range outs[cur] {
				if _, ok := mapping[e.to]; !ok {
					mapping[e.to] = out.AddState()
					queue = append(queue, e.to)
				}
				out.AddTransition(mapping[cur], e.label, mapping[e.to])
			}
		}
		return out
	}
}
