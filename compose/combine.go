// Package compose implements the combining operator on control-flow graphs
// and the safe-update check for updatable recursions built on top of it.
package compose

import (
	"fmt"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/protocol"
)

// Error reports why two graphs could not be combined.
type Error struct {
	Message   string        `json:"message" yaml:"message"`
	Conflicts []cfg.Channel `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ChannelCheck records the disjointness test the operator ran.
type ChannelCheck struct {
	Disjoint  bool          `json:"disjoint" yaml:"disjoint"`
	Conflicts []cfg.Channel `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

// Result is the outcome of combining two graphs.
type Result struct {
	Success      bool
	Combined     *cfg.Graph
	Err          *Error
	ChannelCheck ChannelCheck
}

// Combine sequences g2 after g1 into a fresh graph, provided their channel
// sets are disjoint. The combined graph starts with g1's initial flow,
// every g1 terminal continues into g2's first actions, and g2's terminals
// close the composition. Node and edge ids are reassigned; the inputs stay
// untouched.
func Combine(g1, g2 *cfg.Graph) Result {
	conflicts := cfg.ChannelIntersection(g1, g2)
	if len(conflicts) > 0 {
		return Result{
			Err: &Error{
				Message:   fmt.Sprintf("graphs %q and %q drive %d shared channels", g1.Protocol, g2.Protocol, len(conflicts)),
				Conflicts: conflicts,
			},
			ChannelCheck: ChannelCheck{Conflicts: conflicts},
		}
	}
	check := ChannelCheck{Disjoint: true}

	combined := cfg.New(g1.Protocol+"+"+g2.Protocol, unionRoles(g1.Roles, g2.Roles))
	parallelOffset := maxParallel(g1)

	// copy g1 without its terminals, then g2 without its initial
	mapping1 := map[cfg.NodeID]cfg.NodeID{}
	for _, n := range g1.Nodes() {
		if n.Kind == cfg.KindTerminal {
			continue
		}
		mapping1[n.ID] = combined.AddNode(*n)
	}
	mapping2 := map[cfg.NodeID]cfg.NodeID{}
	for _, n := range g2.Nodes() {
		if n.Kind == cfg.KindInitial {
			continue
		}
		copied := *n
		if copied.Kind == cfg.KindFork || copied.Kind == cfg.KindJoin {
			copied.Parallel += parallelOffset
		}
		mapping2[n.ID] = combined.AddNode(copied)
	}

	// g2's entry points, reached from every g1 terminal
	type entry struct {
		to       cfg.NodeID
		edgeType cfg.EdgeType
	}
	var entries []entry
	for _, e := range g2.Out(g2.Initial()) {
		entries = append(entries, entry{to: mapping2[e.To], edgeType: e.Type})
	}

	for _, e := range g1.Edges() {
		if g1.Node(e.From).Kind == cfg.KindTerminal {
			continue
		}
		if g1.Node(e.To).Kind == cfg.KindTerminal {
			for _, ent := range entries {
				combined.AddEdge(mapping1[e.From], ent.to, e.Type)
			}
			continue
		}
		combined.AddEdge(mapping1[e.From], mapping1[e.To], e.Type)
	}
	for _, e := range g2.Edges() {
		if e.From == g2.Initial() {
			continue
		}
		combined.AddEdge(mapping2[e.From], mapping2[e.To], e.Type)
	}

	if err := copyUpdates(combined, g1, g2); err != nil {
		return Result{Err: err, ChannelCheck: check}
	}
	if err := combined.Validate(); err != nil {
		return Result{
			Err:          &Error{Message: fmt.Sprintf("combined graph is not well formed: %v", err)},
			ChannelCheck: check,
		}
	}
	return Result{Success: true, Combined: combined, ChannelCheck: check}
}

func unionRoles(a, b []protocol.Role) []protocol.Role {
	seen := map[protocol.Role]bool{}
	var out []protocol.Role
	for _, r := range a {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, r := range b {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func maxParallel(g *cfg.Graph) int {
	max := 0
	for _, n := range g.Nodes() {
		if (n.Kind == cfg.KindFork || n.Kind == cfg.KindJoin) && n.Parallel > max {
			max = n.Parallel
		}
	}
	return max
}

func copyUpdates(combined, g1, g2 *cfg.Graph) *Error {
	for _, label := range g1.UpdateLabels() {
		update, _ := g1.Update(label)
		combined.AttachUpdate(label, update)
	}
	for _, label := range g2.UpdateLabels() {
		if _, exists := combined.Update(label); exists {
			return &Error{Message: fmt.Sprintf("both graphs attach an update body under label %q", label)}
		}
		update, _ := g2.Update(label)
		combined.AttachUpdate(label, update)
	}
	return nil
}
