package projection

import (
	"fmt"
	"strings"

	"github.com/onemanifold/choreo/cfsm"
	"github.com/onemanifold/choreo/lts"
	"github.com/onemanifold/choreo/protocol"
)

// validateShape enforces the local-type branching rules on the normalized
// system: a state offering several observable alternatives is either an
// internal choice (all sends) or an external choice (all receives with
// pairwise distinct labels). Anything else means the continuations of a
// choice did not merge.
func validateShape(l *lts.LTS) error {
	for state := 0; state < l.StateCount(); state++ {
		var observable []lts.Label
		seen := map[lts.Label]bool{}
		for _, tr := range l.From(state) {
			if tr.Label.IsTau() || seen[tr.Label] {
				continue
			}
			seen[tr.Label] = true
			observable = append(observable, tr.Label)
		}
		if len(observable) < 2 {
			continue
		}
		sends, receives := 0, 0
		names := map[string]bool{}
		duplicate := ""
		for _, label := range observable {
			switch label.Kind {
			case lts.LabelSend:
				sends++
			case lts.LabelReceive:
				receives++
				if names[label.Name] {
					duplicate = label.Name
				}
				names[label.Name] = true
			}
		}
		switch {
		case sends == len(observable):
			// internal choice
		case receives == len(observable):
			if duplicate != "" {
				return fmt.Errorf("external choice receives label %q more than once", duplicate)
			}
		default:
			rendered := make([]string, 0, len(observable))
			for _, label := range observable {
				rendered = append(rendered, label.String())
			}
			return fmt.Errorf("continuations cannot merge: state offers %s", strings.Join(rendered, " and "))
		}
	}
	return nil
}

// toMachine converts the normalized role view into a machine; states map
// one to one.
func toMachine(role protocol.Role, l *lts.LTS) *cfsm.Machine {
	m := cfsm.New(role)
	for state := 0; state < l.StateCount(); state++ {
		id := m.AddState()
		if l.IsTerminal(state) {
			m.MarkTerminal(id)
		}
	}
	m.Initial = cfsm.StateID(l.Initial)
	for state := 0; state < l.StateCount(); state++ {
		for _, tr := range l.From(state) {
			m.AddTransition(cfsm.StateID(state), cfsm.StateID(tr.To), labelToAction(tr.Label))
		}
	}
	return m
}

func labelToAction(l lts.Label) cfsm.Action {
	switch l.Kind {
	case lts.LabelSend:
		return &cfsm.Send{To: l.To, Label: l.Name, Payload: l.Payload}
	case lts.LabelReceive:
		return &cfsm.Receive{From: l.From, Label: l.Name, Payload: l.Payload}
	case lts.LabelCall:
		return &cfsm.Call{Protocol: l.Name, Participants: lts.SplitRoles(l.Args)}
	case lts.LabelCreate:
		return &cfsm.Create{RoleType: l.Name, Instance: l.Payload}
	case lts.LabelInvite:
		return &cfsm.Invite{Invitee: l.To}
	case lts.LabelInvited:
		return &cfsm.InviteReceive{Inviter: l.From}
	}
	return &cfsm.Tau{}
}
