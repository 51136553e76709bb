// Package lts converts graphs and machines to labeled transition systems
// and decides weak bisimulation, bounded trace equivalence, and liveness
// over them.
package lts

import (
	"fmt"
	"sort"

	"github.com/onemanifold/choreo/protocol"
)

// LabelKind identifies the alphabet symbol class. The set is closed: the
// first group is the global alphabet, the second the per-role view used
// while projecting.
type LabelKind int

const (
	LabelTau LabelKind = iota
	LabelMessage
	LabelInvite
	LabelCall

	LabelSend
	LabelReceive
	LabelCreate
	LabelInvited
)

// Label is one observable (or silent) step. Labels compare by value; Args
// carries a call's participant list in canonical comma-joined form so the
// whole label stays comparable.
type Label struct {
	Kind    LabelKind
	From    protocol.Role
	To      protocol.Role
	Name    string
	Payload string
	Args    string
}

// TauLabel is the silent step.
var TauLabel = Label{Kind: LabelTau}

// IsTau reports whether the label is silent.
func (l Label) IsTau() bool { return l.Kind == LabelTau }

func (l Label) String() string {
	switch l.Kind {
	case LabelTau:
		return "τ"
	case LabelMessage:
		return string(l.From) + " -> " + string(l.To) + ": " + l.Name
	case LabelInvite:
		return string(l.From) + " invites " + string(l.To)
	case LabelCall:
		return "call " + l.Name + "(" + l.Args + ")"
	case LabelSend:
		return "!" + string(l.To) + "." + l.Name
	case LabelReceive:
		return "?" + string(l.From) + "." + l.Name
	case LabelCreate:
		return "create " + l.Name
	case LabelInvited:
		return "invited by " + string(l.From)
	}
	return fmt.Sprintf("label(%d)", int(l.Kind))
}

// Transition is one outgoing step of a state.
type Transition struct {
	Label Label
	To    int
}

// LTS is a finite labeled transition system over dense integer states.
type LTS struct {
	Name    string
	Initial int

	transitions [][]Transition
	terminal    []bool
}

// New returns an empty system.
func New(name string) *LTS {
	return &LTS{Name: name, Initial: -1}
}

// AddState mints a fresh state.
func (l *LTS) AddState() int {
	l.transitions = append(l.transitions, nil)
	l.terminal = append(l.terminal, false)
	return len(l.transitions) - 1
}

// StateCount returns the number of states.
func (l *LTS) StateCount() int { return len(l.transitions) }

// AddTransition appends a transition.
func (l *LTS) AddTransition(from int, label Label, to int) {
	l.transitions[from] = append(l.transitions[from], Transition{Label: label, To: to})
}

// From returns the transitions leaving a state.
func (l *LTS) From(state int) []Transition { return l.transitions[state] }

// MarkTerminal flags a state as terminal.
func (l *LTS) MarkTerminal(state int) { l.terminal[state] = true }

// IsTerminal reports whether a state is terminal.
func (l *LTS) IsTerminal(state int) bool { return l.terminal[state] }

// TauClosure lists the states reachable over silent steps, start first.
func (l *LTS) TauClosure(state int) []int {
	closure := []int{state}
	seen := map[int]bool{state: true}
	for i := 0; i < len(closure); i++ {
		for _, tr := range l.From(closure[i]) {
			if !tr.Label.IsTau() || seen[tr.To] {
				continue
			}
			seen[tr.To] = true
			closure = append(closure, tr.To)
		}
	}
	return closure
}

// WeakEnabled returns, per observable label, the states reachable by a
// weak step τ*·a·τ* from state, plus whether the state can terminate
// silently.
func (l *LTS) WeakEnabled(state int) (map[Label][]int, bool) {
	out := map[Label][]int{}
	canEnd := false
	for _, u := range l.TauClosure(state) {
		if l.terminal[u] {
			canEnd = true
		}
		for _, tr := range l.From(u) {
			if tr.Label.IsTau() {
				continue
			}
			seen := map[int]bool{}
			for _, existing := range out[tr.Label] {
				seen[existing] = true
			}
			for _, target := range l.TauClosure(tr.To) {
				if !seen[target] {
					seen[target] = true
					out[tr.Label] = append(out[tr.Label], target)
				}
			}
		}
	}
	return out, canEnd
}

// SortedLabels orders a label set deterministically by rendering.
func SortedLabels(labels map[Label][]int) []Label {
	out := make([]Label, 0, len(labels))
	for l := range labels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
