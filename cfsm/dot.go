package cfsm

import (
	"fmt"
	"strings"
)

// DOT renders the machine in Graphviz dot form. The initial state draws
// with a bold outline and terminal states as double circles.
func (m *Machine) DOT() string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", string(m.Role))
	b.WriteString("  rankdir=LR;\n")
	for _, id := range m.States() {
		attrs := "shape=circle"
		if m.IsTerminal(id) {
			attrs = "shape=doublecircle"
		}
		if id == m.Initial {
			attrs += ", style=bold"
		}
		fmt.Fprintf(&b, "  q%d [%s];\n", id, attrs)
	}
	for _, tr := range m.Transitions {
		fmt.Fprintf(&b, "  q%d -> q%d [label=%q];\n", tr.From, tr.To, tr.Action.String())
	}
	b.WriteString("}\n")
	return b.String()
}
