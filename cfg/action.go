package cfg

import (
	"strings"

	"github.com/onemanifold/choreo/protocol"
)

// Action is the closed sum of payloads an Action node can carry.
type Action interface {
	String() string
	action()
}

// MessageAction is a message exchange between a sender and one or more
// receivers.
type MessageAction struct {
	From    protocol.Role   `json:"from" yaml:"from"`
	To      []protocol.Role `json:"to" yaml:"to"`
	Label   string          `json:"label" yaml:"label"`
	Payload string          `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// CallAction invokes a subprotocol.
type CallAction struct {
	Caller       protocol.Role   `json:"caller" yaml:"caller"`
	Protocol     string          `json:"protocol" yaml:"protocol"`
	Participants []protocol.Role `json:"participants" yaml:"participants"`
}

// CreateAction spawns a dynamic participant.
type CreateAction struct {
	Creator  protocol.Role `json:"creator" yaml:"creator"`
	RoleType string        `json:"roleType" yaml:"roleType"`
	Instance string        `json:"instance,omitempty" yaml:"instance,omitempty"`
}

// InvitationAction invites a dynamic participant into the protocol.
type InvitationAction struct {
	Inviter protocol.Role `json:"inviter" yaml:"inviter"`
	Invitee protocol.Role `json:"invitee" yaml:"invitee"`
}

// UpdateAction marks an updatable recursion point; the update body is
// attached to the graph under the same label.
type UpdateAction struct {
	Label string `json:"label" yaml:"label"`
}

func (a *MessageAction) action()    {}
func (a *CallAction) action()       {}
func (a *CreateAction) action()     {}
func (a *InvitationAction) action() {}
func (a *UpdateAction) action()     {}

func (a *MessageAction) String() string {
	receivers := make([]string, 0, len(a.To))
	for _, to := range a.To {
		receivers = append(receivers, string(to))
	}
	return string(a.From) + " -> " + strings.Join(receivers, ", ") + ": " + a.Label
}

func (a *CallAction) String() string {
	args := make([]string, 0, len(a.Participants))
	for _, p := range a.Participants {
		args = append(args, string(p))
	}
	return string(a.Caller) + " calls " + a.Protocol + "(" + strings.Join(args, ", ") + ")"
}

func (a *CreateAction) String() string {
	if a.Instance != "" {
		return string(a.Creator) + " creates " + a.RoleType + " as " + a.Instance
	}
	return string(a.Creator) + " creates " + a.RoleType
}

func (a *InvitationAction) String() string {
	return string(a.Inviter) + " invites " + string(a.Invitee)
}

func (a *UpdateAction) String() string {
	return "update " + a.Label
}
