package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemanifold/choreo/protocol"
)

func build(t *testing.T, source string) *Graph {
	t.Helper()
	proto, err := protocol.Parse(source)
	require.NoError(t, err)
	g, err := Build(proto)
	require.NoError(t, err)
	return g
}

func countKind(g *Graph, kind Kind) int {
	n := 0
	for _, node := range g.Nodes() {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

func TestBuild(t *testing.T) {
	tests := []struct {
		description string
		source      string
		validate    func(t *testing.T, g *Graph)
	}{
		{
			description: "empty protocol is initial to terminal",
			source:      `protocol Empty(role A, role B) {}`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, 2, g.NodeCount())
				require.Len(t, g.Edges(), 1)
				assert.Equal(t, g.Initial(), g.Edges()[0].From)
				assert.True(t, g.IsTerminal(g.Edges()[0].To))
			},
		},
		{
			description: "single message is three nodes",
			source:      `protocol One(role A, role B) { A -> B: Ping(); }`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, 3, g.NodeCount())
				assert.Equal(t, 1, countKind(g, KindAction))
			},
		},
		{
			description: "sequence chains actions in order",
			source: `protocol Ping(role A, role B) {
				A -> B: Ping();
				B -> A: Pong();
			}`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, 4, g.NodeCount())
				first := g.Out(g.Initial())
				require.Len(t, first, 1)
				ping := g.Node(first[0].To)
				assert.Equal(t, "A -> B: Ping", ping.Action.String())
				second := g.Out(ping.ID)
				require.Len(t, second, 1)
				pong := g.Node(second[0].To)
				assert.Equal(t, "B -> A: Pong", pong.Action.String())
			},
		},
		{
			description: "choice produces branch and merge",
			source: `protocol C(role A, role B) {
				choice at A { A -> B: L(); } or { A -> B: R(); }
			}`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, 1, countKind(g, KindBranch))
				assert.Equal(t, 1, countKind(g, KindMerge))
				for _, n := range g.Nodes() {
					if n.Kind != KindBranch {
						continue
					}
					assert.Equal(t, protocol.Role("A"), n.At)
					for _, e := range g.Out(n.ID) {
						assert.Equal(t, EdgeBranch, e.Type)
					}
				}
			},
		},
		{
			description: "parallel produces paired fork and join",
			source: `protocol P(role A, role B, role C) {
				par { A -> B: M1(); } and { A -> C: M2(); }
			}`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, 1, countKind(g, KindFork))
				assert.Equal(t, 1, countKind(g, KindJoin))
				var fork, join *Node
				for _, n := range g.Nodes() {
					switch n.Kind {
					case KindFork:
						fork = n
					case KindJoin:
						join = n
					}
				}
				assert.Equal(t, fork.Parallel, join.Parallel)
				for _, e := range g.Out(fork.ID) {
					assert.Equal(t, EdgeFork, e.Type)
				}
			},
		},
		{
			description: "recursion adds back edge of type continue",
			source: `protocol R(role A, role B) {
				rec X {
					A -> B: More();
					choice at A { continue X; } or { A -> B: Stop(); }
				}
			}`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, 1, countKind(g, KindRecursive))
				var continues []*Edge
				for _, e := range g.Edges() {
					if e.Type == EdgeContinue {
						continues = append(continues, e)
					}
				}
				require.Len(t, continues, 1)
				assert.Equal(t, KindRecursive, g.Node(continues[0].To).Kind)
				assert.Equal(t, KindBranch, g.Node(continues[0].From).Kind)
			},
		},
		{
			description: "infinite recursion synthesizes a terminal",
			source: `protocol Forever(role A, role B) {
				rec X { A -> B: Tick(); continue X; }
			}`,
			validate: func(t *testing.T, g *Graph) {
				require.NotEmpty(t, g.Terminals())
				var head NodeID
				for _, n := range g.Nodes() {
					if n.Kind == KindRecursive {
						head = n.ID
					}
				}
				foundExit := false
				for _, e := range g.Out(head) {
					if g.IsTerminal(e.To) {
						foundExit = true
					}
				}
				assert.True(t, foundExit, "recursion head must expose an exit edge to a terminal")
			},
		},
		{
			description: "updatable continue emits update action and side fragment",
			source: `protocol Pipeline(role M, role W, dynamic role W') {
				rec L {
					M -> W: Task();
					W -> M: Result();
					choice at M {
						continue L with { M -> W': Task(); };
					} or {
						M -> W: Done();
					}
				}
			}`,
			validate: func(t *testing.T, g *Graph) {
				var update *Node
				for _, n := range g.Nodes() {
					if _, ok := n.Action.(*UpdateAction); ok {
						update = n
					}
				}
				require.NotNil(t, update)
				out := g.Out(update.ID)
				require.Len(t, out, 1)
				assert.Equal(t, EdgeContinue, out[0].Type)
				body, ok := g.Update("L")
				require.True(t, ok)
				assert.Equal(t, []string{"L"}, g.UpdateLabels())
				assert.Equal(t, 1, countKind(body, KindAction))
				assert.Equal(t, []protocol.Role{"M", "W'"}, body.Roles)
			},
		},
		{
			description: "dynamic role appended on first occurrence",
			source: `protocol D(role M, role W, dynamic role V) {
				M -> W: Go();
				M creates V;
				M invites V;
				M -> V: Task();
			}`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, []protocol.Role{"M", "W", "V"}, g.Roles)
			},
		},
		{
			description: "explicit end yields extra terminal",
			source: `protocol E(role A, role B) {
				choice at A { A -> B: Bye(); end; } or { A -> B: Go(); }
			}`,
			validate: func(t *testing.T, g *Graph) {
				assert.Equal(t, 2, countKind(g, KindTerminal))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			g := build(t, tc.source)
			require.NoError(t, g.Validate())
			tc.validate(t, g)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		description string
		source      string
		expect      string
	}{
		{
			description: "unresolved continue label",
			source:      `protocol P(role A, role B) { rec X { continue Y; } }`,
			expect:      "does not resolve",
		},
		{
			description: "label shadowing",
			source:      `protocol P(role A, role B) { rec X { rec X { A -> B: L(); } } }`,
			expect:      "shadows",
		},
		{
			description: "statement after continue",
			source:      `protocol P(role A, role B) { rec X { continue X; A -> B: L(); } }`,
			expect:      "unreachable",
		},
		{
			description: "duplicate update body",
			source: `protocol P(role A, role B) {
				rec X {
					choice at A {
						continue X with { A -> B: U1(); };
					} or {
						continue X with { A -> B: U2(); };
					} or {
						A -> B: Done();
					}
				}
			}`,
			expect: "already carries an update body",
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			proto, err := protocol.Parse(tc.source)
			require.NoError(t, err)
			_, err = Build(proto)
			require.Error(t, err)
			var buildErr *BuildError
			require.ErrorAs(t, err, &buildErr)
			assert.Contains(t, buildErr.Message, tc.expect)
		})
	}
}

func TestBuildEmptyReceivers(t *testing.T) {
	_, err := Build(&protocol.Protocol{
		Name:  "Bad",
		Roles: []protocol.Role{"A"},
		Body:  &protocol.Message{From: "A", Label: "L"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty receiver set")
}

func TestBuildDeterministic(t *testing.T) {
	source := `protocol P(role A, role B, role C) {
		choice at A {
			A -> B: L1();
			par { B -> C: X(); } and { B -> A: Y(); }
		} or {
			A -> B: L2();
		}
	}`
	first := build(t, source)
	second := build(t, source)
	fp1, err := first.Fingerprint()
	require.NoError(t, err)
	fp2, err := second.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestBuildNodeCountLinear(t *testing.T) {
	// the graph stays linear in the number of source statements
	sources := map[string]int{
		`protocol P1(role A, role B) { A -> B: L(); }`: 1,
		`protocol P2(role A, role B) {
			A -> B: L1(); B -> A: L2(); A -> B: L3();
		}`: 3,
		`protocol P3(role A, role B, role C) {
			choice at A { A -> B: L(); B -> C: F(); } or { A -> B: R(); }
			par { A -> B: M1(); } and { A -> C: M2(); }
			rec X { A -> B: T(); continue X; }
		}`: 8,
	}
	for source, statements := range sources {
		g := build(t, source)
		assert.LessOrEqual(t, g.NodeCount(), 3*statements+4, source)
	}
}
