package cfg

import (
	"fmt"

	"github.com/onemanifold/choreo/protocol"
)

// Extract builds an independent graph from the region reachable from entry
// along non-continue edges, excluding entry itself and every node in stop.
// A fresh initial node replaces entry; edges leaving the region (into stop
// nodes, or dangling) are redirected to a fresh terminal. Continue edges
// are kept only when both endpoints stay inside the region.
//
// The extraction fails when the region is empty: per the combining
// operator's contract an unreachable body is reported, never inferred.
func (g *Graph) Extract(name string, entry NodeID, stop map[NodeID]bool) (*Graph, error) {
	if g.Node(entry) == nil {
		return nil, fmt.Errorf("extract %q: entry node %d does not exist", name, entry)
	}
	include := map[NodeID]bool{}
	queue := []NodeID{}
	for _, e := range g.Out(entry) {
		if e.Type == EdgeContinue || stop[e.To] || e.To == entry {
			continue
		}
		if !include[e.To] {
			include[e.To] = true
			queue = append(queue, e.To)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.Out(cur) {
			if e.Type == EdgeContinue {
				continue
			}
			if stop[e.To] || e.To == entry || include[e.To] {
				continue
			}
			include[e.To] = true
			queue = append(queue, e.To)
		}
	}
	if len(include) == 0 {
		return nil, fmt.Errorf("extract %q: region below node %d is empty", name, entry)
	}

	sub := New(name, nil)
	initial := sub.AddNode(Node{Kind: KindInitial})
	mapping := map[NodeID]NodeID{}
	for _, n := range g.nodes {
		if !include[n.ID] {
			continue
		}
		copied := *n
		if copied.Kind == KindInitial {
			// an initial node inside a region degrades to a plain merge point
			copied.Kind = KindMerge
		}
		mapping[n.ID] = sub.AddNode(copied)
	}
	terminal := NoNode
	needTerminal := func() NodeID {
		if terminal == NoNode {
			terminal = sub.AddNode(Node{Kind: KindTerminal})
		}
		return terminal
	}

	for _, e := range g.Out(entry) {
		if e.Type == EdgeContinue || stop[e.To] || e.To == entry {
			continue
		}
		sub.AddEdge(initial, mapping[e.To], EdgeSequence)
	}
	for _, n := range g.nodes {
		if !include[n.ID] {
			continue
		}
		hasOut := false
		for _, e := range g.Out(n.ID) {
			if e.Type == EdgeContinue {
				if include[e.To] {
					sub.AddEdge(mapping[n.ID], mapping[e.To], EdgeContinue)
					hasOut = true
				}
				continue
			}
			if include[e.To] {
				sub.AddEdge(mapping[n.ID], mapping[e.To], e.Type)
				hasOut = true
				continue
			}
			// edge leaves the region: route it to the synthetic terminal
			sub.AddEdge(mapping[n.ID], needTerminal(), e.Type)
			hasOut = true
		}
		if !hasOut && g.Node(n.ID).Kind != KindTerminal {
			sub.AddEdge(mapping[n.ID], needTerminal(), EdgeSequence)
		}
	}
	if len(sub.terminals) == 0 {
		sub.AddNode(Node{Kind: KindTerminal})
		sub.AddEdge(initial, sub.terminals[0], EdgeSequence)
	}
	sub.Roles = mentionedRoles(g.Roles, sub)
	return sub, nil
}

// mentionedRoles orders the roles the extracted graph actually uses,
// following the parent's declaration order with unseen roles appended.
func mentionedRoles(declared []protocol.Role, g *Graph) []protocol.Role {
	used := map[protocol.Role]bool{}
	var order []protocol.Role
	add := func(r protocol.Role) {
		if r == "" || used[r] {
			return
		}
		used[r] = true
		order = append(order, r)
	}
	for _, n := range g.nodes {
		switch a := n.Action.(type) {
		case *MessageAction:
			add(a.From)
			for _, to := range a.To {
				add(to)
			}
		case *CallAction:
			add(a.Caller)
			for _, p := range a.Participants {
				add(p)
			}
		case *CreateAction:
			add(a.Creator)
		case *InvitationAction:
			add(a.Inviter)
			add(a.Invitee)
		}
	}
	var out []protocol.Role
	for _, r := range declared {
		if used[r] {
			out = append(out, r)
			delete(used, r)
		}
	}
	for _, r := range order {
		if used[r] {
			out = append(out, r)
		}
	}
	return out
}
