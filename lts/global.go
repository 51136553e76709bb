package lts

import (
	"strings"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/protocol"
)

// GlobalView labels nodes with the global alphabet: messages, invitations
// and subprotocol calls are observable; participant creation and
// updatable-recursion jumps are silent.
type GlobalView struct{}

// Labels implements View.
func (GlobalView) Labels(n *cfg.Node) []Label {
	if n.Kind != cfg.KindAction {
		return nil
	}
	switch a := n.Action.(type) {
	case *cfg.MessageAction:
		var out []Label
		for _, to := range a.To {
			out = append(out, Label{Kind: LabelMessage, From: a.From, To: to, Name: a.Label, Payload: a.Payload})
		}
		return out
	case *cfg.CallAction:
		return []Label{{Kind: LabelCall, Name: a.Protocol, Args: JoinRoles(a.Participants)}}
	case *cfg.InvitationAction:
		return []Label{{Kind: LabelInvite, From: a.Inviter, To: a.Invitee}}
	case *cfg.CreateAction:
		return nil
	case *cfg.UpdateAction:
		return nil
	}
	return nil
}

// JoinRoles renders a participant list canonically for a call label.
func JoinRoles(roles []protocol.Role) string {
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}

// SplitRoles is the inverse of JoinRoles.
func SplitRoles(args string) []protocol.Role {
	if args == "" {
		return nil
	}
	parts := strings.Split(args, ",")
	out := make([]protocol.Role, 0, len(parts))
	for _, p := range parts {
		out = append(out, protocol.Role(p))
	}
	return out
}

// FromCFG converts a graph to its normalized global transition system.
// Parallel branches interleave freely; the result's branching structure
// lines up with the composition of the projected machines.
func FromCFG(g *cfg.Graph) *LTS {
	// the configuration space of a structured graph is modest; the cap is
	// a backstop against pathological inputs
	l, _ := Explore(g, GlobalView{}, 1<<20)
	return l.Normalize()
}
