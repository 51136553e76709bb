package cfg

import (
	"fmt"

	"github.com/onemanifold/choreo/protocol"
)

// BuildError reports a structural problem in the source protocol that
// prevents lowering to a graph.
type BuildError struct {
	Message string         `json:"message" yaml:"message"`
	Range   protocol.Range `json:"range,omitempty" yaml:"range,omitempty"`
}

func (e *BuildError) Error() string {
	if e.Range.IsZero() {
		return e.Message
	}
	return fmt.Sprintf("%d:%d: %s", e.Range.Line, e.Range.Column, e.Message)
}

// Build lowers a parsed global protocol to its control-flow graph. The
// result satisfies the structural invariants checked by Validate; any
// violation of them indicates a malformed source construct and is returned
// as a *BuildError.
func Build(proto *protocol.Protocol) (*Graph, error) {
	b := &builder{
		g: New(proto.Name, declaredRoles(proto)),
	}
	initial := b.g.AddNode(Node{Kind: KindInitial, Range: proto.Range})
	frag, err := b.lower(proto.Body)
	if err != nil {
		return nil, err
	}
	if frag.empty() {
		terminal := b.g.AddNode(Node{Kind: KindTerminal})
		b.g.AddEdge(initial, terminal, EdgeSequence)
	} else {
		b.connect([]NodeID{initial}, frag, EdgeSequence)
		if len(frag.exits) > 0 {
			terminal := b.g.AddNode(Node{Kind: KindTerminal})
			for _, exit := range frag.exits {
				b.g.AddEdge(exit, terminal, EdgeSequence)
			}
		}
	}
	if len(b.g.terminals) == 0 {
		return nil, &BuildError{Message: fmt.Sprintf("protocol %q never terminates and no terminal could be synthesized", proto.Name)}
	}
	b.g.Roles = appendDynamicRoles(b.g.Roles, proto.Body)
	if err := b.g.Validate(); err != nil {
		return nil, &BuildError{Message: err.Error()}
	}
	return b.g, nil
}

func declaredRoles(proto *protocol.Protocol) []protocol.Role {
	roles := append([]protocol.Role(nil), proto.Roles...)
	return roles
}

// appendDynamicRoles extends the declared role list with roles that first
// occur inside the body (declared dynamic roles among them), in first-seen
// order.
func appendDynamicRoles(declared []protocol.Role, body protocol.Statement) []protocol.Role {
	known := map[protocol.Role]bool{}
	for _, r := range declared {
		known[r] = true
	}
	out := declared
	for _, r := range protocol.Participants(body) {
		if !known[r] {
			known[r] = true
			out = append(out, r)
		}
	}
	return out
}

// fragment is the result of lowering one statement: a single entry node,
// the set of open exit nodes the successor chains from, and the edge type
// the entry must be reached over (continue for jump statements).
type fragment struct {
	entry     NodeID
	entryEdge EdgeType
	exits     []NodeID
}

func (f fragment) empty() bool { return f.entry == NoNode }

// dead reports whether control never falls out of the fragment.
func (f fragment) dead() bool { return !f.empty() && len(f.exits) == 0 }

type recScope struct {
	label string
	head  NodeID
}

type builder struct {
	g           *Graph
	recs        []recScope
	parallelSeq int
}

func (b *builder) findRecursion(label string) (NodeID, bool) {
	for i := len(b.recs) - 1; i >= 0; i-- {
		if b.recs[i].label == label {
			return b.recs[i].head, true
		}
	}
	return NoNode, false
}

// connect wires every node in froms to the fragment entry. Jump fragments
// force the continue edge type regardless of the caller's default.
func (b *builder) connect(froms []NodeID, frag fragment, defaultType EdgeType) {
	edgeType := defaultType
	if frag.entryEdge != "" {
		edgeType = frag.entryEdge
	}
	for _, from := range froms {
		b.g.AddEdge(from, frag.entry, edgeType)
	}
}

func (b *builder) lower(stmt protocol.Statement) (fragment, error) {
	switch s := stmt.(type) {
	case *protocol.Message:
		return b.lowerMessage(s)
	case *protocol.Sequence:
		return b.lowerSequence(s)
	case *protocol.Choice:
		return b.lowerChoice(s)
	case *protocol.Parallel:
		return b.lowerParallel(s)
	case *protocol.Recursion:
		return b.lowerRecursion(s)
	case *protocol.Continue:
		return b.lowerContinue(s.Label, s.Range, nil)
	case *protocol.UpdatableContinue:
		return b.lowerContinue(s.Label, s.Range, s)
	case *protocol.Call:
		node := b.g.AddNode(Node{Kind: KindAction, Range: s.Range, Action: &CallAction{
			Caller:       s.Caller,
			Protocol:     s.Protocol,
			Participants: append([]protocol.Role(nil), s.Arguments...),
		}})
		return fragment{entry: node, exits: []NodeID{node}}, nil
	case *protocol.Create:
		node := b.g.AddNode(Node{Kind: KindAction, Range: s.Range, Action: &CreateAction{
			Creator:  s.Creator,
			RoleType: s.RoleType,
			Instance: s.Instance,
		}})
		return fragment{entry: node, exits: []NodeID{node}}, nil
	case *protocol.Invitation:
		node := b.g.AddNode(Node{Kind: KindAction, Range: s.Range, Action: &InvitationAction{
			Inviter: s.Inviter,
			Invitee: s.Invitee,
		}})
		return fragment{entry: node, exits: []NodeID{node}}, nil
	case *protocol.End:
		node := b.g.AddNode(Node{Kind: KindTerminal, Range: s.Range})
		return fragment{entry: node}, nil
	case nil:
		return fragment{entry: NoNode}, nil
	}
	return fragment{}, &BuildError{Message: fmt.Sprintf("unsupported statement %T", stmt), Range: stmt.Loc()}
}

func (b *builder) lowerMessage(s *protocol.Message) (fragment, error) {
	if len(s.To) == 0 {
		return fragment{}, &BuildError{Message: fmt.Sprintf("message %q has an empty receiver set", s.Label), Range: s.Range}
	}
	node := b.g.AddNode(Node{Kind: KindAction, Range: s.Range, Action: &MessageAction{
		From:    s.From,
		To:      append([]protocol.Role(nil), s.To...),
		Label:   s.Label,
		Payload: s.Payload,
	}})
	return fragment{entry: node, exits: []NodeID{node}}, nil
}

func (b *builder) lowerSequence(s *protocol.Sequence) (fragment, error) {
	var (
		frag fragment = fragment{entry: NoNode}
		prev []NodeID
	)
	for _, stmt := range s.Stmts {
		if frag.dead() {
			return fragment{}, &BuildError{Message: "unreachable statement after continue or end", Range: stmt.Loc()}
		}
		next, err := b.lower(stmt)
		if err != nil {
			return fragment{}, err
		}
		if next.empty() {
			continue
		}
		if frag.empty() {
			frag.entry = next.entry
			frag.entryEdge = next.entryEdge
		} else {
			b.connect(prev, next, EdgeSequence)
		}
		prev = next.exits
		frag.exits = next.exits
	}
	return frag, nil
}

func (b *builder) lowerChoice(s *protocol.Choice) (fragment, error) {
	branch := b.g.AddNode(Node{Kind: KindBranch, At: s.At, Range: s.Range})
	var exiting []fragment
	for _, body := range s.Branches {
		frag, err := b.lower(body)
		if err != nil {
			return fragment{}, err
		}
		if frag.empty() {
			// the empty branch keeps its edge so the verifier can report it
			exiting = append(exiting, fragment{entry: branch})
			continue
		}
		b.connect([]NodeID{branch}, frag, EdgeBranch)
		if len(frag.exits) > 0 {
			exiting = append(exiting, frag)
		}
	}
	if len(exiting) == 0 {
		// every branch jumps back into a recursion; there is no merge point
		return fragment{entry: branch}, nil
	}
	merge := b.g.AddNode(Node{Kind: KindMerge})
	for _, frag := range exiting {
		if len(frag.exits) == 0 && frag.entry == branch {
			b.g.AddEdge(branch, merge, EdgeBranch)
			continue
		}
		for _, exit := range frag.exits {
			b.g.AddEdge(exit, merge, EdgeSequence)
		}
	}
	return fragment{entry: branch, exits: []NodeID{merge}}, nil
}

func (b *builder) lowerParallel(s *protocol.Parallel) (fragment, error) {
	b.parallelSeq++
	id := b.parallelSeq
	fork := b.g.AddNode(Node{Kind: KindFork, Parallel: id, Range: s.Range})
	join := b.g.AddNode(Node{Kind: KindJoin, Parallel: id})
	for _, body := range s.Branches {
		frag, err := b.lower(body)
		if err != nil {
			return fragment{}, err
		}
		if frag.empty() {
			b.g.AddEdge(fork, join, EdgeFork)
			continue
		}
		b.connect([]NodeID{fork}, frag, EdgeFork)
		for _, exit := range frag.exits {
			b.g.AddEdge(exit, join, EdgeSequence)
		}
	}
	return fragment{entry: fork, exits: []NodeID{join}}, nil
}

func (b *builder) lowerRecursion(s *protocol.Recursion) (fragment, error) {
	if _, shadowed := b.findRecursion(s.Label); shadowed {
		return fragment{}, &BuildError{Message: fmt.Sprintf("recursion label %q shadows an enclosing recursion", s.Label), Range: s.Range}
	}
	head := b.g.AddNode(Node{Kind: KindRecursive, Label: s.Label, Range: s.Range})
	b.recs = append(b.recs, recScope{label: s.Label, head: head})
	frag, err := b.lower(s.Body)
	b.recs = b.recs[:len(b.recs)-1]
	if err != nil {
		return fragment{}, err
	}
	if frag.empty() {
		return fragment{entry: head, exits: []NodeID{head}}, nil
	}
	b.connect([]NodeID{head}, frag, EdgeSequence)
	if len(frag.exits) == 0 {
		// the body loops forever: synthesize a terminal and an exit edge
		// from the recursion head so the graph still composes
		terminal := b.g.AddNode(Node{Kind: KindTerminal})
		b.g.AddEdge(head, terminal, EdgeSequence)
		return fragment{entry: head}, nil
	}
	return fragment{entry: head, exits: frag.exits}, nil
}

func (b *builder) lowerContinue(label string, loc protocol.Range, update *protocol.UpdatableContinue) (fragment, error) {
	head, ok := b.findRecursion(label)
	if !ok {
		return fragment{}, &BuildError{Message: fmt.Sprintf("continue %q does not resolve to an enclosing recursion", label), Range: loc}
	}
	if update == nil {
		return fragment{entry: head, entryEdge: EdgeContinue}, nil
	}
	if _, exists := b.g.Update(label); exists {
		return fragment{}, &BuildError{Message: fmt.Sprintf("recursion %q already carries an update body", label), Range: loc}
	}
	node := b.g.AddNode(Node{Kind: KindAction, Range: loc, Action: &UpdateAction{Label: label}})
	b.g.AddEdge(node, head, EdgeContinue)
	updateGraph, err := Build(&protocol.Protocol{
		Name:  b.g.Protocol + "." + label + ".update",
		Roles: nil,
		Body:  update.Update,
		Range: update.Range,
	})
	if err != nil {
		return fragment{}, err
	}
	b.g.AttachUpdate(label, updateGraph)
	return fragment{entry: node}, nil
}
