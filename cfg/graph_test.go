package cfg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemanifold/choreo/protocol"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		mutate      func(g *Graph)
		expect      string
	}{
		{
			description: "two initial nodes",
			mutate: func(g *Graph) {
				extra := g.AddNode(Node{Kind: KindInitial})
				g.AddEdge(g.Initial(), extra, EdgeSequence)
				g.AddEdge(extra, g.Terminals()[0], EdgeSequence)
			},
			expect: "exactly one initial",
		},
		{
			description: "continue edge into an action node",
			mutate: func(g *Graph) {
				var action NodeID
				for _, n := range g.Nodes() {
					if n.Kind == KindAction {
						action = n.ID
					}
				}
				g.AddEdge(action, action, EdgeContinue)
			},
			expect: "continue edge",
		},
		{
			description: "unreachable node",
			mutate: func(g *Graph) {
				orphan := g.AddNode(Node{Kind: KindMerge})
				g.AddEdge(orphan, g.Terminals()[0], EdgeSequence)
			},
			expect: "unreachable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			g := build(t, `protocol P(role A, role B) { A -> B: L(); }`)
			tc.mutate(g)
			err := g.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expect)
		})
	}
}

func TestReachability(t *testing.T) {
	g := build(t, `protocol R(role A, role B) {
		rec X {
			A -> B: More();
			choice at A { continue X; } or { A -> B: Stop(); }
		}
	}`)
	var head NodeID
	for _, n := range g.Nodes() {
		if n.Kind == KindRecursive {
			head = n.ID
		}
	}
	withContinue := g.ReachableFrom(head, AllEdges)
	withoutContinue := g.ReachableFrom(head, SkipContinue)
	assert.True(t, len(withoutContinue) <= len(withContinue))
	assert.True(t, withoutContinue[head])
	for _, terminal := range g.Terminals() {
		assert.True(t, g.CanReach(head, terminal, SkipContinue))
	}
}

func TestSCC(t *testing.T) {
	g := build(t, `protocol R(role A, role B) {
		rec X {
			A -> B: More();
			choice at A { continue X; } or { A -> B: Stop(); }
		}
	}`)
	// without continue edges the graph is a DAG
	assert.Empty(t, g.NontrivialSCCs(SkipContinue))
	// with them, the recursion forms a single nontrivial component
	comps := g.NontrivialSCCs(AllEdges)
	require.Len(t, comps, 1)
	hasRecursive := false
	for _, id := range comps[0] {
		if g.Node(id).Kind == KindRecursive {
			hasRecursive = true
		}
	}
	assert.True(t, hasRecursive)
}

func TestDominators(t *testing.T) {
	g := build(t, `protocol C(role A, role B) {
		choice at A { A -> B: L(); } or { A -> B: R(); }
		A -> B: After();
	}`)
	var branch, merge NodeID
	for _, n := range g.Nodes() {
		switch n.Kind {
		case KindBranch:
			branch = n.ID
		case KindMerge:
			merge = n.ID
		}
	}
	idom := g.Dominators()
	// the branch dominates both branch actions and the merge
	seen := map[NodeID]bool{}
	cur := merge
	for cur != g.Initial() && !seen[cur] {
		seen[cur] = true
		cur = idom[cur]
		if cur == branch {
			break
		}
	}
	assert.Equal(t, branch, cur, "branch must dominate its merge")

	pdom := g.PostDominators()
	// the merge post-dominates the branch
	seen = map[NodeID]bool{}
	cur = branch
	for cur != NoNode && !seen[cur] {
		seen[cur] = true
		cur = pdom[cur]
		if cur == merge {
			break
		}
	}
	assert.Equal(t, merge, cur, "merge must post-dominate its branch")
}

func TestChannels(t *testing.T) {
	g := build(t, `protocol P(role A, role B, role C) {
		A -> B, C: Cast();
		B -> A: Ack();
		B -> A: Ack();
	}`)
	assert.Equal(t, []Channel{
		{Sender: "A", Receiver: "B", Label: "Cast"},
		{Sender: "A", Receiver: "C", Label: "Cast"},
		{Sender: "B", Receiver: "A", Label: "Ack"},
	}, g.Channels())

	other := build(t, `protocol Q(role B, role A) { B -> A: Ack(); }`)
	assert.Equal(t, []Channel{{Sender: "B", Receiver: "A", Label: "Ack"}}, ChannelIntersection(g, other))
}

func TestJSONRoundTrip(t *testing.T) {
	g := build(t, `protocol Pipeline(role M, role W, dynamic role W') {
		rec L {
			M -> W: Task();
			W -> M: Result();
			choice at M {
				continue L with { M -> W': Task(); };
			} or {
				M -> W: Done();
			}
		}
	}`)
	data, err := json.Marshal(g)
	require.NoError(t, err)
	restored, err := UnmarshalGraph(data)
	require.NoError(t, err)
	require.NoError(t, restored.Validate())
	assert.Equal(t, g.Protocol, restored.Protocol)
	assert.Equal(t, g.Roles, restored.Roles)
	assert.Equal(t, g.NodeCount(), restored.NodeCount())
	assert.Equal(t, len(g.Edges()), len(restored.Edges()))
	assert.Equal(t, g.Terminals(), restored.Terminals())
	_, hasUpdate := restored.Update("L")
	assert.True(t, hasUpdate)

	fp1, err := g.Fingerprint()
	require.NoError(t, err)
	fp2, err := restored.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestExtract(t *testing.T) {
	g := build(t, `protocol R(role A, role B) {
		rec X {
			A -> B: Work();
			B -> A: Ok();
			choice at A { continue X; } or { A -> B: Stop(); }
		}
	}`)
	var head NodeID
	for _, n := range g.Nodes() {
		if n.Kind == KindRecursive {
			head = n.ID
		}
	}
	sub, err := g.Extract("R.body", head, nil)
	require.NoError(t, err)
	require.NoError(t, sub.Validate())
	assert.Equal(t, []protocol.Role{"A", "B"}, sub.Roles)
	labels := map[string]bool{}
	for _, n := range sub.Nodes() {
		if msg, ok := n.Action.(*MessageAction); ok {
			labels[msg.Label] = true
		}
	}
	assert.True(t, labels["Work"])
	assert.True(t, labels["Ok"])
	assert.True(t, labels["Stop"])
}

func TestDOT(t *testing.T) {
	g := build(t, `protocol One(role A, role B) { A -> B: Ping(); }`)
	dot := g.DOT()
	assert.Contains(t, dot, `digraph "One"`)
	assert.Contains(t, dot, "shape=circle")
	assert.Contains(t, dot, `A -> B: Ping`)
}
