package cfg

import (
	"fmt"

	"github.com/onemanifold/choreo/protocol"
)

// NodeID indexes a node in the graph arena.
type NodeID int

// EdgeID indexes an edge in the graph arena.
type EdgeID int

// NoNode marks the absence of a node reference.
const NoNode NodeID = -1

// Kind identifies the node variant. The set is closed; switches over Kind
// handle every constant below.
type Kind int

const (
	KindInitial Kind = iota
	KindTerminal
	KindAction
	KindBranch
	KindMerge
	KindFork
	KindJoin
	KindRecursive
)

var kindNames = [...]string{"initial", "terminal", "action", "branch", "merge", "fork", "join", "recursive"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Node is one vertex of the control-flow graph. The populated fields depend
// on Kind: At for Branch, Parallel for Fork/Join, Label for Recursive,
// Action for Action nodes.
type Node struct {
	ID       NodeID
	Kind     Kind
	At       protocol.Role
	Parallel int
	Label    string
	Action   Action
	Range    protocol.Range
}

// EdgeType classifies control-flow edges. The set is closed.
type EdgeType string

const (
	EdgeSequence EdgeType = "sequence"
	EdgeBranch   EdgeType = "branch"
	EdgeFork     EdgeType = "fork"
	EdgeContinue EdgeType = "continue"
)

// Edge connects two nodes.
type Edge struct {
	ID   EdgeID
	From NodeID
	To   NodeID
	Type EdgeType
}

// Graph is the normalized control-flow representation of a global protocol.
// Nodes and edges live in arenas keyed by their ids; produced graphs are
// treated as immutable by every later pipeline stage.
type Graph struct {
	Protocol string
	Roles    []protocol.Role

	nodes     []*Node
	edges     []*Edge
	out       [][]EdgeID
	in        [][]EdgeID
	initial   NodeID
	terminals []NodeID

	updates     map[string]*Graph
	updateOrder []string
}

// New returns an empty graph for the named protocol.
func New(name string, roles []protocol.Role) *Graph {
	return &Graph{
		Protocol: name,
		Roles:    append([]protocol.Role(nil), roles...),
		initial:  NoNode,
	}
}

// AddNode copies n into the arena and returns the assigned id.
func (g *Graph) AddNode(n Node) NodeID {
	id := NodeID(len(g.nodes))
	n.ID = id
	g.nodes = append(g.nodes, &n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	if n.Kind == KindTerminal {
		g.terminals = append(g.terminals, id)
	}
	if n.Kind == KindInitial && g.initial == NoNode {
		g.initial = id
	}
	return id
}

// AddEdge connects from to to with the given type and returns the edge id.
func (g *Graph) AddEdge(from, to NodeID, t EdgeType) EdgeID {
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, &Edge{ID: id, From: from, To: to, Type: t})
	g.out[from] = append(g.out[from], id)
	g.in[to] = append(g.in[to], id)
	return id
}

// AttachUpdate stores the side fragment for an updatable recursion label.
func (g *Graph) AttachUpdate(label string, update *Graph) {
	if g.updates == nil {
		g.updates = map[string]*Graph{}
	}
	if _, ok := g.updates[label]; !ok {
		g.updateOrder = append(g.updateOrder, label)
	}
	g.updates[label] = update
}

// Update returns the update body attached under label, if any.
func (g *Graph) Update(label string) (*Graph, bool) {
	u, ok := g.updates[label]
	return u, ok
}

// UpdateLabels lists attached update labels in attachment order.
func (g *Graph) UpdateLabels() []string {
	return append([]string(nil), g.updateOrder...)
}

// Initial returns the id of the unique initial node.
func (g *Graph) Initial() NodeID { return g.initial }

// Terminals returns terminal node ids in creation order.
func (g *Graph) Terminals() []NodeID { return append([]NodeID(nil), g.terminals...) }

// Node returns the node with the given id, or nil when out of range.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns the node arena in id order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns the edge arena in id order.
func (g *Graph) Edges() []*Edge { return g.edges }

// Edge returns the edge with the given id, or nil when out of range.
func (g *Graph) Edge(id EdgeID) *Edge {
	if id < 0 || int(id) >= len(g.edges) {
		return nil
	}
	return g.edges[id]
}

// Out returns the outgoing edges of a node in creation order.
func (g *Graph) Out(id NodeID) []*Edge {
	edges := make([]*Edge, 0, len(g.out[id]))
	for _, eid := range g.out[id] {
		edges = append(edges, g.edges[eid])
	}
	return edges
}

// In returns the incoming edges of a node in creation order.
func (g *Graph) In(id NodeID) []*Edge {
	edges := make([]*Edge, 0, len(g.in[id]))
	for _, eid := range g.in[id] {
		edges = append(edges, g.edges[eid])
	}
	return edges
}

// NodeCount returns the number of nodes in the arena.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// IsTerminal reports whether id names a terminal node.
func (g *Graph) IsTerminal(id NodeID) bool {
	n := g.Node(id)
	return n != nil && n.Kind == KindTerminal
}

// StructureError reports a violated structural invariant.
type StructureError struct {
	Message string
	Node    NodeID
	Edge    EdgeID
}

func (e *StructureError) Error() string { return e.Message }

// Validate checks the structural invariants every graph must satisfy:
// exactly one initial node, at least one terminal, reachability of every
// node from the initial along non-continue edges, reachability of some
// terminal from every node, continue edges targeting recursive nodes only,
// and edge endpoints referencing existing nodes.
func (g *Graph) Validate() error {
	initials := 0
	for _, n := range g.nodes {
		if n.Kind == KindInitial {
			initials++
		}
	}
	if initials != 1 {
		return &StructureError{Message: fmt.Sprintf("graph %q must have exactly one initial node, found %d", g.Protocol, initials), Node: NoNode, Edge: -1}
	}
	if len(g.terminals) == 0 {
		return &StructureError{Message: fmt.Sprintf("graph %q has no terminal node", g.Protocol), Node: NoNode, Edge: -1}
	}
	for _, e := range g.edges {
		if g.Node(e.From) == nil || g.Node(e.To) == nil {
			return &StructureError{Message: fmt.Sprintf("edge %d references a missing node", e.ID), Node: NoNode, Edge: e.ID}
		}
		if e.Type == EdgeContinue && g.Node(e.To).Kind != KindRecursive {
			return &StructureError{Message: fmt.Sprintf("continue edge %d targets a %s node", e.ID, g.Node(e.To).Kind), Node: e.To, Edge: e.ID}
		}
		if e.Type == EdgeBranch && g.Node(e.From).Kind != KindBranch {
			return &StructureError{Message: fmt.Sprintf("branch edge %d leaves a %s node", e.ID, g.Node(e.From).Kind), Node: e.From, Edge: e.ID}
		}
		if e.Type == EdgeFork && g.Node(e.From).Kind != KindFork {
			return &StructureError{Message: fmt.Sprintf("fork edge %d leaves a %s node", e.ID, g.Node(e.From).Kind), Node: e.From, Edge: e.ID}
		}
	}
	reachable := g.ReachableFrom(g.initial, SkipContinue)
	for _, n := range g.nodes {
		if !reachable[n.ID] {
			return &StructureError{Message: fmt.Sprintf("node %d (%s) is unreachable from the initial node", n.ID, n.Kind), Node: n.ID, Edge: -1}
		}
	}
	reachesTerminal := g.reachesAnyTerminal()
	for _, n := range g.nodes {
		if !reachesTerminal[n.ID] {
			return &StructureError{Message: fmt.Sprintf("node %d (%s) cannot reach a terminal node", n.ID, n.Kind), Node: n.ID, Edge: -1}
		}
	}
	return nil
}

// reachesAnyTerminal computes, over all edges including continue back-edges,
// the set of nodes from which some terminal is reachable.
func (g *Graph) reachesAnyTerminal() map[NodeID]bool {
	seen := map[NodeID]bool{}
	stack := append([]NodeID(nil), g.terminals...)
	for _, t := range g.terminals {
		seen[t] = true
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.In(cur) {
			if !seen[e.From] {
				seen[e.From] = true
				stack = append(stack, e.From)
			}
		}
	}
	return seen
}
