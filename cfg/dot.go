package cfg

import (
	"fmt"
	"strings"
)

// DOT renders the graph in Graphviz dot form. Initial and terminal nodes
// draw as circles, everything else as boxes; labels come from the fixed
// node printer.
func (g *Graph) DOT() string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", g.Protocol)
	b.WriteString("  rankdir=TB;\n")
	for _, n := range g.nodes {
		shape := "box"
		if n.Kind == KindInitial || n.Kind == KindTerminal {
			shape = "circle"
		}
		fmt.Fprintf(&b, "  n%d [shape=%s, label=%q];\n", n.ID, shape, nodeLabel(n))
	}
	for _, e := range g.edges {
		attrs := ""
		switch e.Type {
		case EdgeBranch:
			attrs = " [style=dashed]"
		case EdgeFork:
			attrs = " [style=bold]"
		case EdgeContinue:
			attrs = " [style=dotted, constraint=false]"
		}
		fmt.Fprintf(&b, "  n%d -> n%d%s;\n", e.From, e.To, attrs)
	}
	b.WriteString("}\n")
	return b.String()
}

// nodeLabel is the fixed printer used by DOT output and diagnostics.
func nodeLabel(n *Node) string {
	switch n.Kind {
	case KindInitial:
		return "start"
	case KindTerminal:
		return "end"
	case KindAction:
		if n.Action != nil {
			return n.Action.String()
		}
		return "action"
	case KindBranch:
		return "branch at " + string(n.At)
	case KindMerge:
		return "merge"
	case KindFork:
		return fmt.Sprintf("fork %d", n.Parallel)
	case KindJoin:
		return fmt.Sprintf("join %d", n.Parallel)
	case KindRecursive:
		return "rec " + n.Label
	}
	return n.Kind.String()
}

// Describe names a node for error messages, e.g. "node 3 (A -> B: Ping)".
func (g *Graph) Describe(id NodeID) string {
	n := g.Node(id)
	if n == nil {
		return fmt.Sprintf("node %d", id)
	}
	return fmt.Sprintf("node %d (%s)", id, nodeLabel(n))
}
