package lts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onemanifold/choreo/cfg"
)

// View maps one graph node to the labels an observer sees when control
// passes it; an empty result is a silent step. The global view and the
// per-role views are the two implementations.
type View interface {
	Labels(n *cfg.Node) []Label
}

// token is one locus of control: a node and, for multi-label actions such
// as multicasts, the index of the next label to emit.
type token struct {
	node  cfg.NodeID
	phase int
}

// configuration is a multiset of tokens. A fork splits the token into one
// per branch; the matching join collects them back, so parallel branches
// interleave freely.
type configuration []token

func (c configuration) key() string {
	var b strings.Builder
	for i, tk := range c {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%d.%d", tk.node, tk.phase)
	}
	return b.String()
}

func (c configuration) replace(i int, tk token) configuration {
	next := make(configuration, len(c))
	copy(next, c)
	next[i] = tk
	next.normalize()
	return next
}

func (c *configuration) normalize() {
	sort.Slice(*c, func(i, j int) bool {
		if (*c)[i].node != (*c)[j].node {
			return (*c)[i].node < (*c)[j].node
		}
		return (*c)[i].phase < (*c)[j].phase
	})
}

// Explore runs the token semantics of the graph under a view and returns
// the raw system: states are configurations, transitions the token moves.
// The exploration is exhaustive up to maxStates configurations; the bool
// result reports whether the cap cut it short.
func Explore(g *cfg.Graph, view View, maxStates int) (*LTS, bool) {
	e := &explorer{g: g, view: view, l: New(g.Protocol), states: map[string]int{}}
	e.expectedArrivals = map[cfg.NodeID]int{}
	for _, region := range g.ForkRegions() {
		if region.Join != cfg.NoNode {
			e.expectedArrivals[region.Join] = len(region.Branches)
		}
	}
	truncated := e.run(maxStates)
	return e.l, truncated
}

type explorer struct {
	g                *cfg.Graph
	view             View
	l                *LTS
	states           map[string]int
	expectedArrivals map[cfg.NodeID]int
}

func (e *explorer) stateFor(c configuration) (int, bool) {
	k := c.key()
	if id, ok := e.states[k]; ok {
		return id, false
	}
	id := e.l.AddState()
	e.states[k] = id
	if e.isTerminal(c) {
		e.l.MarkTerminal(id)
	}
	return id, true
}

func (e *explorer) isTerminal(c configuration) bool {
	for _, tk := range c {
		if e.g.Node(tk.node).Kind != cfg.KindTerminal {
			return false
		}
	}
	return true
}

func (e *explorer) run(maxStates int) bool {
	initial := configuration{{node: e.g.Initial()}}
	id, _ := e.stateFor(initial)
	e.l.Initial = id
	queue := []configuration{initial}
	truncated := false
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		from := e.states[cur.key()]
		for _, step := range e.steps(cur) {
			if e.l.StateCount() >= maxStates {
				if _, exists := e.states[step.next.key()]; !exists {
					truncated = true
					continue
				}
			}
			to, fresh := e.stateFor(step.next)
			e.l.AddTransition(from, step.label, to)
			if fresh {
				queue = append(queue, step.next)
			}
		}
	}
	return truncated
}

type move struct {
	label Label
	next  configuration
}

// steps enumerates every enabled token move in deterministic order.
func (e *explorer) steps(c configuration) []move {
	var out []move
	joined := map[cfg.NodeID]bool{}
	for i, tk := range c {
		n := e.g.Node(tk.node)
		switch n.Kind {
		case cfg.KindTerminal:
			// settled
		case cfg.KindFork:
			var branches configuration
			for _, edge := range e.g.Out(tk.node) {
				if edge.Type == cfg.EdgeFork {
					branches = append(branches, token{node: edge.To})
				}
			}
			next := make(configuration, 0, len(c)-1+len(branches))
			next = append(next, c[:i]...)
			next = append(next, c[i+1:]...)
			next = append(next, branches...)
			next.normalize()
			out = append(out, move{label: TauLabel, next: next})
		case cfg.KindJoin:
			if joined[tk.node] {
				continue
			}
			joined[tk.node] = true
			arrived := 0
			for _, other := range c {
				if other.node == tk.node {
					arrived++
				}
			}
			if arrived < e.expectedArrivals[tk.node] {
				continue
			}
			for _, edge := range e.g.Out(tk.node) {
				var next configuration
				for _, other := range c {
					if other.node != tk.node {
						next = append(next, other)
					}
				}
				next = append(next, token{node: edge.To})
				next.normalize()
				out = append(out, move{label: TauLabel, next: next})
			}
		case cfg.KindAction:
			labels := e.view.Labels(n)
			if tk.phase < len(labels)-1 {
				out = append(out, move{label: labels[tk.phase], next: c.replace(i, token{node: tk.node, phase: tk.phase + 1})})
				continue
			}
			label := TauLabel
			if len(labels) > 0 {
				label = labels[tk.phase]
			}
			for _, edge := range e.g.Out(tk.node) {
				out = append(out, move{label: label, next: c.replace(i, token{node: edge.To})})
			}
		default:
			// initial, branch, merge, recursive: structural steps
			for _, edge := range e.g.Out(tk.node) {
				out = append(out, move{label: TauLabel, next: c.replace(i, token{node: edge.To})})
			}
		}
	}
	return out
}
