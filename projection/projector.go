// Package projection derives per-role communicating finite state machines
// from a control-flow graph.
package projection

import (
	"fmt"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/cfsm"
	"github.com/onemanifold/choreo/compose"
	"github.com/onemanifold/choreo/lts"
	"github.com/onemanifold/choreo/protocol"
	"github.com/onemanifold/choreo/verify"
)

// exploreCap bounds the configuration space of one projection run; graphs
// from the builder stay far below it.
const exploreCap = 1 << 20

// Error reports why a role could not be projected.
type Error struct {
	Role    protocol.Role `json:"role" yaml:"role"`
	Message string        `json:"message" yaml:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("projection of %q: %s", e.Role, e.Message)
}

// ProjectAllResult carries the machines that projected and the errors of
// the roles that did not.
type ProjectAllResult struct {
	Machines map[protocol.Role]*cfsm.Machine
	Errors   []*Error
}

// Project computes the machine realizing one role's view of the protocol.
// The graph must pass every P0 check, the deadlock, parallel-deadlock and
// race checks and, when it carries updatable recursions, the safe-update
// check; otherwise projection is undefined and an *Error names the obstacle.
func Project(g *cfg.Graph, role protocol.Role) (*cfsm.Machine, error) {
	report := verify.Run(g)
	return projectWith(g, role, report)
}

// ProjectAll projects every declared role, sharing one verification pass.
func ProjectAll(g *cfg.Graph) *ProjectAllResult {
	report := verify.Run(g)
	out := &ProjectAllResult{Machines: map[protocol.Role]*cfsm.Machine{}}
	for _, role := range g.Roles {
		machine, err := projectWith(g, role, report)
		if err != nil {
			var perr *Error
			if e, ok := err.(*Error); ok {
				perr = e
			} else {
				perr = &Error{Role: role, Message: err.Error()}
			}
			out.Errors = append(out.Errors, perr)
			continue
		}
		out.Machines[role] = machine
	}
	return out
}

func projectWith(g *cfg.Graph, role protocol.Role, report *verify.Report) (*cfsm.Machine, error) {
	if !containsRole(g.Roles, role) {
		return nil, &Error{Role: role, Message: fmt.Sprintf("role is not part of protocol %q", g.Protocol)}
	}
	if !report.ProjectionReady() {
		for _, res := range report.Results {
			if res.Band == verify.P0 && !res.Pass {
				return nil, &Error{Role: role, Message: fmt.Sprintf("%s failed: %s", res.Check, res.Violations[0].Message)}
			}
		}
	}
	// structural safety failures leave no machine worth emitting either
	for _, id := range []verify.CheckID{verify.CheckDeadlock, verify.CheckParallelDeadlock, verify.CheckRaceConditions} {
		if res := report.Result(id); res != nil && !res.Pass {
			return nil, &Error{Role: role, Message: fmt.Sprintf("%s failed: %s", id, res.Violations[0].Message)}
		}
	}
	if len(g.UpdateLabels()) > 0 {
		safe := compose.CheckSafeUpdate(g)
		if unsafe := safe.Unsafe(); len(unsafe) > 0 {
			return nil, &Error{Role: role, Message: fmt.Sprintf("updatable recursion %q is unsafe: %s", unsafe[0].Label, unsafe[0].Reason)}
		}
	}

	raw, truncated := lts.Explore(g, roleView{role: role}, exploreCap)
	if truncated {
		return nil, &Error{Role: role, Message: "protocol state space exceeds the projection bound"}
	}
	normalized := raw.Normalize()
	if err := validateShape(normalized); err != nil {
		return nil, &Error{Role: role, Message: err.Error()}
	}
	return toMachine(role, normalized), nil
}

func containsRole(roles []protocol.Role, role protocol.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// roleView labels graph nodes with one role's local alphabet; steps the
// role does not take part in are silent.
type roleView struct {
	role protocol.Role
}

// Labels implements lts.View. A multicast the role sends becomes one send
// label per receiver, in receiver order.
func (v roleView) Labels(n *cfg.Node) []lts.Label {
	if n.Kind != cfg.KindAction {
		return nil
	}
	switch a := n.Action.(type) {
	case *cfg.MessageAction:
		if a.From == v.role {
			var out []lts.Label
			for _, to := range a.To {
				out = append(out, lts.Label{Kind: lts.LabelSend, From: v.role, To: to, Name: a.Label, Payload: a.Payload})
			}
			return out
		}
		for _, to := range a.To {
			if to == v.role {
				return []lts.Label{{Kind: lts.LabelReceive, From: a.From, To: v.role, Name: a.Label, Payload: a.Payload}}
			}
		}
		return nil
	case *cfg.CallAction:
		if a.Caller == v.role || containsRole(a.Participants, v.role) {
			return []lts.Label{{Kind: lts.LabelCall, Name: a.Protocol, Args: lts.JoinRoles(a.Participants)}}
		}
		return nil
	case *cfg.CreateAction:
		if a.Creator == v.role {
			return []lts.Label{{Kind: lts.LabelCreate, Name: a.RoleType, Payload: a.Instance}}
		}
		return nil
	case *cfg.InvitationAction:
		if a.Inviter == v.role {
			return []lts.Label{{Kind: lts.LabelInvite, From: v.role, To: a.Invitee}}
		}
		if a.Invitee == v.role {
			return []lts.Label{{Kind: lts.LabelInvited, From: a.Inviter, To: v.role}}
		}
		return nil
	case *cfg.UpdateAction:
		// the update is structural: its safety is checked separately and
		// the jump itself is invisible to every role
		return nil
	}
	return nil
}
