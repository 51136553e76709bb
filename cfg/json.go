package cfg

import (
	"encoding/json"
	"fmt"

	"github.com/onemanifold/choreo/protocol"
)

// jsonGraph is the canonical wire form of a graph.
type jsonGraph struct {
	ProtocolName string                `json:"protocolName"`
	Roles        []protocol.Role       `json:"roles"`
	InitialNode  NodeID                `json:"initialNode"`
	TerminalNode []NodeID              `json:"terminalNodes"`
	Nodes        []jsonNode            `json:"nodes"`
	Edges        []jsonEdge            `json:"edges"`
	Updates      map[string]*jsonGraph `json:"updates,omitempty"`
}

type jsonNode struct {
	ID       NodeID          `json:"id"`
	Kind     string          `json:"kind"`
	At       protocol.Role   `json:"at,omitempty"`
	Parallel int             `json:"parallelId,omitempty"`
	Label    string          `json:"label,omitempty"`
	Action   *jsonAction     `json:"action,omitempty"`
	Range    *protocol.Range `json:"range,omitempty"`
}

type jsonAction struct {
	Kind         string          `json:"kind"`
	From         protocol.Role   `json:"from,omitempty"`
	To           []protocol.Role `json:"to,omitempty"`
	Label        string          `json:"label,omitempty"`
	Payload      string          `json:"payload,omitempty"`
	Caller       protocol.Role   `json:"caller,omitempty"`
	Protocol     string          `json:"protocol,omitempty"`
	Participants []protocol.Role `json:"participants,omitempty"`
	Creator      protocol.Role   `json:"creator,omitempty"`
	RoleType     string          `json:"roleType,omitempty"`
	Instance     string          `json:"instance,omitempty"`
	Inviter      protocol.Role   `json:"inviter,omitempty"`
	Invitee      protocol.Role   `json:"invitee,omitempty"`
}

type jsonEdge struct {
	ID   EdgeID   `json:"id"`
	From NodeID   `json:"from"`
	To   NodeID   `json:"to"`
	Type EdgeType `json:"edgeType"`
}

func (g *Graph) toJSON() *jsonGraph {
	out := &jsonGraph{
		ProtocolName: g.Protocol,
		Roles:        g.Roles,
		InitialNode:  g.initial,
		TerminalNode: g.Terminals(),
	}
	for _, n := range g.nodes {
		jn := jsonNode{ID: n.ID, Kind: n.Kind.String(), At: n.At, Parallel: n.Parallel, Label: n.Label}
		if !n.Range.IsZero() {
			r := n.Range
			jn.Range = &r
		}
		if n.Action != nil {
			jn.Action = actionToJSON(n.Action)
		}
		out.Nodes = append(out.Nodes, jn)
	}
	for _, e := range g.edges {
		out.Edges = append(out.Edges, jsonEdge{ID: e.ID, From: e.From, To: e.To, Type: e.Type})
	}
	for _, label := range g.updateOrder {
		if out.Updates == nil {
			out.Updates = map[string]*jsonGraph{}
		}
		out.Updates[label] = g.updates[label].toJSON()
	}
	return out
}

func actionToJSON(a Action) *jsonAction {
	switch act := a.(type) {
	case *MessageAction:
		return &jsonAction{Kind: "message", From: act.From, To: act.To, Label: act.Label, Payload: act.Payload}
	case *CallAction:
		return &jsonAction{Kind: "call", Caller: act.Caller, Protocol: act.Protocol, Participants: act.Participants}
	case *CreateAction:
		return &jsonAction{Kind: "create", Creator: act.Creator, RoleType: act.RoleType, Instance: act.Instance}
	case *InvitationAction:
		return &jsonAction{Kind: "invitation", Inviter: act.Inviter, Invitee: act.Invitee}
	case *UpdateAction:
		return &jsonAction{Kind: "update", Label: act.Label}
	}
	return nil
}

func actionFromJSON(a *jsonAction) (Action, error) {
	switch a.Kind {
	case "message":
		return &MessageAction{From: a.From, To: a.To, Label: a.Label, Payload: a.Payload}, nil
	case "call":
		return &CallAction{Caller: a.Caller, Protocol: a.Protocol, Participants: a.Participants}, nil
	case "create":
		return &CreateAction{Creator: a.Creator, RoleType: a.RoleType, Instance: a.Instance}, nil
	case "invitation":
		return &InvitationAction{Inviter: a.Inviter, Invitee: a.Invitee}, nil
	case "update":
		return &UpdateAction{Label: a.Label}, nil
	}
	return nil, fmt.Errorf("unknown action kind %q", a.Kind)
}

func kindFromString(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

func graphFromJSON(jg *jsonGraph) (*Graph, error) {
	g := New(jg.ProtocolName, jg.Roles)
	for i, jn := range jg.Nodes {
		if jn.ID != NodeID(i) {
			return nil, fmt.Errorf("node ids must be dense and ordered, found %d at index %d", jn.ID, i)
		}
		kind, err := kindFromString(jn.Kind)
		if err != nil {
			return nil, err
		}
		node := Node{Kind: kind, At: jn.At, Parallel: jn.Parallel, Label: jn.Label}
		if jn.Range != nil {
			node.Range = *jn.Range
		}
		if jn.Action != nil {
			action, err := actionFromJSON(jn.Action)
			if err != nil {
				return nil, err
			}
			node.Action = action
		}
		g.AddNode(node)
	}
	g.initial = jg.InitialNode
	g.terminals = nil
	for _, t := range jg.TerminalNode {
		if g.Node(t) == nil || g.Node(t).Kind != KindTerminal {
			return nil, fmt.Errorf("terminal list references node %d which is not a terminal", t)
		}
		g.terminals = append(g.terminals, t)
	}
	for _, je := range jg.Edges {
		if g.Node(je.From) == nil || g.Node(je.To) == nil {
			return nil, fmt.Errorf("edge %d references a missing node", je.ID)
		}
		switch je.Type {
		case EdgeSequence, EdgeBranch, EdgeFork, EdgeContinue:
		default:
			return nil, fmt.Errorf("edge %d has unknown type %q", je.ID, je.Type)
		}
		g.AddEdge(je.From, je.To, je.Type)
	}
	for label, sub := range jg.Updates {
		update, err := graphFromJSON(sub)
		if err != nil {
			return nil, fmt.Errorf("update %q: %w", label, err)
		}
		g.AttachUpdate(label, update)
	}
	return g, nil
}

// MarshalJSON encodes the graph in its canonical JSON form.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.toJSON())
}

// UnmarshalGraph decodes a graph from its canonical JSON form.
func UnmarshalGraph(data []byte) (*Graph, error) {
	var jg jsonGraph
	if err := json.Unmarshal(data, &jg); err != nil {
		return nil, err
	}
	return graphFromJSON(&jg)
}
