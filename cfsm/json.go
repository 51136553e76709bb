package cfsm

import (
	"encoding/json"
	"fmt"

	"github.com/onemanifold/choreo/protocol"
)

type jsonMachine struct {
	Role        protocol.Role    `json:"role"`
	States      []StateID        `json:"states"`
	Initial     StateID          `json:"initialState"`
	Terminals   []StateID        `json:"terminalStates"`
	Transitions []jsonTransition `json:"transitions"`
}

type jsonTransition struct {
	From   StateID    `json:"from"`
	To     StateID    `json:"to"`
	Action jsonAction `json:"action"`
}

type jsonAction struct {
	Kind         string          `json:"kind"`
	To           protocol.Role   `json:"to,omitempty"`
	From         protocol.Role   `json:"from,omitempty"`
	Label        string          `json:"label,omitempty"`
	Payload      string          `json:"payload,omitempty"`
	Protocol     string          `json:"protocol,omitempty"`
	Participants []protocol.Role `json:"participants,omitempty"`
	RoleType     string          `json:"roleType,omitempty"`
	Instance     string          `json:"instance,omitempty"`
	Invitee      protocol.Role   `json:"invitee,omitempty"`
	Inviter      protocol.Role   `json:"inviter,omitempty"`
}

func actionToJSON(a Action) jsonAction {
	switch act := a.(type) {
	case *Send:
		return jsonAction{Kind: "send", To: act.To, Label: act.Label, Payload: act.Payload}
	case *Receive:
		return jsonAction{Kind: "receive", From: act.From, Label: act.Label, Payload: act.Payload}
	case *Call:
		return jsonAction{Kind: "call", Protocol: act.Protocol, Participants: act.Participants}
	case *Create:
		return jsonAction{Kind: "create", RoleType: act.RoleType, Instance: act.Instance}
	case *Invite:
		return jsonAction{Kind: "invite", Invitee: act.Invitee}
	case *InviteReceive:
		return jsonAction{Kind: "inviteReceive", Inviter: act.Inviter}
	case *Tau:
		return jsonAction{Kind: "tau"}
	}
	return jsonAction{Kind: "unknown"}
}

func actionFromJSON(a jsonAction) (Action, error) {
	switch a.Kind {
	case "send":
		return &Send{To: a.To, Label: a.Label, Payload: a.Payload}, nil
	case "receive":
		return &Receive{From: a.From, Label: a.Label, Payload: a.Payload}, nil
	case "call":
		return &Call{Protocol: a.Protocol, Participants: a.Participants}, nil
	case "create":
		return &Create{RoleType: a.RoleType, Instance: a.Instance}, nil
	case "invite":
		return &Invite{Invitee: a.Invitee}, nil
	case "inviteReceive":
		return &InviteReceive{Inviter: a.Inviter}, nil
	case "tau":
		return &Tau{}, nil
	}
	return nil, fmt.Errorf("unknown action kind %q", a.Kind)
}

// MarshalJSON encodes the machine in its canonical JSON form.
func (m *Machine) MarshalJSON() ([]byte, error) {
	out := jsonMachine{
		Role:      m.Role,
		States:    m.States(),
		Initial:   m.Initial,
		Terminals: m.Terminals,
	}
	for _, tr := range m.Transitions {
		out.Transitions = append(out.Transitions, jsonTransition{From: tr.From, To: tr.To, Action: actionToJSON(tr.Action)})
	}
	return json.Marshal(out)
}

// Unmarshal decodes a machine from its canonical JSON form.
func Unmarshal(data []byte) (*Machine, error) {
	var jm jsonMachine
	if err := json.Unmarshal(data, &jm); err != nil {
		return nil, err
	}
	m := New(jm.Role)
	m.states = len(jm.States)
	m.Initial = jm.Initial
	for _, t := range jm.Terminals {
		if int(t) >= m.states {
			return nil, fmt.Errorf("terminal state %d out of range", t)
		}
		m.MarkTerminal(t)
	}
	for _, jt := range jm.Transitions {
		if int(jt.From) >= m.states || int(jt.To) >= m.states {
			return nil, fmt.Errorf("transition %d -> %d references missing states", jt.From, jt.To)
		}
		action, err := actionFromJSON(jt.Action)
		if err != nil {
			return nil, err
		}
		m.AddTransition(jt.From, jt.To, action)
	}
	return m, nil
}
