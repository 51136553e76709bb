// Package cfsm models communicating finite state machines: the per-role
// local types produced by projection.
package cfsm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onemanifold/choreo/protocol"
)

// StateID indexes a state in the machine.
type StateID int

// NoState marks the absence of a state reference.
const NoState StateID = -1

// Action is the closed sum of transition labels.
type Action interface {
	String() string
	action()
}

// Send emits a message to a peer.
type Send struct {
	To      protocol.Role `json:"to" yaml:"to"`
	Label   string        `json:"label" yaml:"label"`
	Payload string        `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Receive consumes a message from a peer.
type Receive struct {
	From    protocol.Role `json:"from" yaml:"from"`
	Label   string        `json:"label" yaml:"label"`
	Payload string        `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Call enters a subprotocol.
type Call struct {
	Protocol     string          `json:"protocol" yaml:"protocol"`
	Participants []protocol.Role `json:"participants" yaml:"participants"`
}

// Create spawns a dynamic participant.
type Create struct {
	RoleType string `json:"roleType" yaml:"roleType"`
	Instance string `json:"instance,omitempty" yaml:"instance,omitempty"`
}

// Invite invites a participant into the protocol.
type Invite struct {
	Invitee protocol.Role `json:"invitee" yaml:"invitee"`
}

// InviteReceive accepts an invitation.
type InviteReceive struct {
	Inviter protocol.Role `json:"inviter" yaml:"inviter"`
}

// Tau is a structural step with no observable effect.
type Tau struct{}

func (a *Send) action()          {}
func (a *Receive) action()       {}
func (a *Call) action()          {}
func (a *Create) action()        {}
func (a *Invite) action()        {}
func (a *InviteReceive) action() {}
func (a *Tau) action()           {}

func (a *Send) String() string {
	return "!" + string(a.To) + "." + a.Label
}

func (a *Receive) String() string {
	return "?" + string(a.From) + "." + a.Label
}

func (a *Call) String() string {
	parts := make([]string, 0, len(a.Participants))
	for _, p := range a.Participants {
		parts = append(parts, string(p))
	}
	return "call " + a.Protocol + "(" + strings.Join(parts, ", ") + ")"
}

func (a *Create) String() string        { return "create " + a.RoleType }
func (a *Invite) String() string        { return "invite " + string(a.Invitee) }
func (a *InviteReceive) String() string { return "invited by " + string(a.Inviter) }
func (a *Tau) String() string           { return "τ" }

// IsTau reports whether the action is unobservable.
func IsTau(a Action) bool {
	_, ok := a.(*Tau)
	return ok
}

// Transition moves the machine from one state to another under an action.
type Transition struct {
	From   StateID `json:"from" yaml:"from"`
	To     StateID `json:"to" yaml:"to"`
	Action Action
}

// Machine is one role's communicating finite state machine.
type Machine struct {
	Role        protocol.Role `json:"role" yaml:"role"`
	Initial     StateID       `json:"initialState" yaml:"initialState"`
	Terminals   []StateID     `json:"terminalStates" yaml:"terminalStates"`
	Transitions []Transition  `json:"transitions" yaml:"transitions"`

	states int
}

// New returns an empty machine for the role.
func New(role protocol.Role) *Machine {
	return &Machine{Role: role, Initial: NoState}
}

// AddState mints a fresh state id.
func (m *Machine) AddState() StateID {
	id := StateID(m.states)
	m.states++
	return id
}

// StateCount returns the number of states.
func (m *Machine) StateCount() int { return m.states }

// States lists every state id in order.
func (m *Machine) States() []StateID {
	out := make([]StateID, m.states)
	for i := range out {
		out[i] = StateID(i)
	}
	return out
}

// AddTransition appends a transition.
func (m *Machine) AddTransition(from, to StateID, action Action) {
	m.Transitions = append(m.Transitions, Transition{From: from, To: to, Action: action})
}

// MarkTerminal records a terminal state, once.
func (m *Machine) MarkTerminal(id StateID) {
	for _, t := range m.Terminals {
		if t == id {
			return
		}
	}
	m.Terminals = append(m.Terminals, id)
	sort.Slice(m.Terminals, func(i, j int) bool { return m.Terminals[i] < m.Terminals[j] })
}

// IsTerminal reports whether id is a terminal state.
func (m *Machine) IsTerminal(id StateID) bool {
	for _, t := range m.Terminals {
		if t == id {
			return true
		}
	}
	return false
}

// From returns the transitions leaving a state, in insertion order.
func (m *Machine) From(id StateID) []Transition {
	var out []Transition
	for _, tr := range m.Transitions {
		if tr.From == id {
			out = append(out, tr)
		}
	}
	return out
}

// String renders the machine compactly for diagnostics.
func (m *Machine) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cfsm %s: %d states, initial q%d", m.Role, m.states, m.Initial)
	for _, tr := range m.Transitions {
		fmt.Fprintf(&b, "\n  q%d –%s→ q%d", tr.From, tr.Action, tr.To)
	}
	return b.String()
}
