package projection

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/cfsm"
	"github.com/onemanifold/choreo/protocol"
)

func buildGraph(t *testing.T, source string) *cfg.Graph {
	t.Helper()
	proto, err := protocol.Parse(source)
	require.NoError(t, err)
	g, err := cfg.Build(proto)
	require.NoError(t, err)
	return g
}

// trace walks a machine along its only path and renders the action strings,
// failing when a state branches.
func trace(t *testing.T, m *cfsm.Machine) []string {
	t.Helper()
	var out []string
	cur := m.Initial
	seen := map[cfsm.StateID]bool{}
	for !seen[cur] {
		seen[cur] = true
		transitions := m.From(cur)
		if len(transitions) == 0 {
			break
		}
		require.Len(t, transitions, 1, "state q%d is expected to be linear", cur)
		out = append(out, transitions[0].Action.String())
		cur = transitions[0].To
	}
	return out
}

func TestProjectPingPong(t *testing.T) {
	g := buildGraph(t, `protocol Ping(role A, role B) {
		A -> B: Ping();
		B -> A: Pong();
	}`)

	a, err := Project(g, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"!B.Ping", "?B.Pong"}, trace(t, a))
	assert.Equal(t, 3, a.StateCount())
	assert.Len(t, a.Terminals, 1)

	b, err := Project(g, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"?A.Ping", "!A.Pong"}, trace(t, b))
	assert.Equal(t, 3, b.StateCount())
}

func TestProjectEmptyProtocol(t *testing.T) {
	g := buildGraph(t, `protocol Empty(role A, role B) {}`)
	for _, role := range g.Roles {
		m, err := Project(g, role)
		require.NoError(t, err)
		assert.Equal(t, 1, m.StateCount())
		assert.Empty(t, m.Transitions)
		assert.True(t, m.IsTerminal(m.Initial))
	}
}

func TestProjectChoice(t *testing.T) {
	g := buildGraph(t, `protocol OAuth(role s, role c, role a) {
		choice at s {
			s -> c: login();
			c -> a: passwd(Str);
			a -> s: auth(Bool);
		} or {
			s -> c: cancel();
			c -> a: quit();
		}
	}`)

	// the decider opens with an internal choice of two sends
	s, err := Project(g, "s")
	require.NoError(t, err)
	first := s.From(s.Initial)
	require.Len(t, first, 2)
	labels := map[string]bool{}
	for _, tr := range first {
		send, ok := tr.Action.(*cfsm.Send)
		require.True(t, ok, "decider must open with sends")
		labels[send.Label] = true
	}
	assert.Equal(t, map[string]bool{"login": true, "cancel": true}, labels)

	// the undistinguished role merges into an external choice
	a, err := Project(g, "a")
	require.NoError(t, err)
	first = a.From(a.Initial)
	require.Len(t, first, 2)
	for _, tr := range first {
		recv, ok := tr.Action.(*cfsm.Receive)
		require.True(t, ok, "merged role must open with receives")
		assert.Equal(t, protocol.Role("c"), recv.From)
	}
}

func TestProjectMulticastDistributes(t *testing.T) {
	g := buildGraph(t, `protocol Cast(role A, role B, role C) {
		A -> B, C: Notify();
		B -> A: Ack();
		C -> A: Ack2();
	}`)

	a, err := Project(g, "A")
	require.NoError(t, err)
	sends := 0
	for _, tr := range a.Transitions {
		if _, ok := tr.Action.(*cfsm.Send); ok {
			sends++
		}
	}
	assert.Equal(t, 2, sends, "the multicast contributes one send per receiver")

	b, err := Project(g, "B")
	require.NoError(t, err)
	receives := 0
	for _, tr := range b.Transitions {
		if recv, ok := tr.Action.(*cfsm.Receive); ok && recv.Label == "Notify" {
			receives++
		}
	}
	assert.Equal(t, 1, receives)
}

func TestProjectRecursion(t *testing.T) {
	g := buildGraph(t, `protocol Loop(role A, role B) {
		rec X {
			A -> B: More();
			choice at A { continue X; } or { A -> B: Stop(); }
		}
	}`)

	for _, role := range g.Roles {
		m, err := Project(g, role)
		require.NoError(t, err)
		assert.True(t, hasCycle(m), "role %s must loop", role)
	}
}

func hasCycle(m *cfsm.Machine) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[cfsm.StateID]int{}
	var visit func(cfsm.StateID) bool
	visit = func(s cfsm.StateID) bool {
		color[s] = gray
		for _, tr := range m.From(s) {
			switch color[tr.To] {
			case gray:
				return true
			case white:
				if visit(tr.To) {
					return true
				}
			}
		}
		color[s] = black
		return false
	}
	return visit(m.Initial)
}

func TestProjectParallelIndependentBranches(t *testing.T) {
	g := buildGraph(t, `protocol Par(role A, role B, role C, role D) {
		par { A -> B: M1(); } and { C -> D: M2(); }
	}`)

	a, err := Project(g, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"!B.M1"}, observableTrace(a))

	c, err := Project(g, "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"!D.M2"}, observableTrace(c))
}

// observableTrace collects non-tau actions along the unique path.
func observableTrace(m *cfsm.Machine) []string {
	var out []string
	cur := m.Initial
	seen := map[cfsm.StateID]bool{}
	for !seen[cur] {
		seen[cur] = true
		transitions := m.From(cur)
		if len(transitions) != 1 {
			break
		}
		if !cfsm.IsTau(transitions[0].Action) {
			out = append(out, transitions[0].Action.String())
		}
		cur = transitions[0].To
	}
	return out
}

func TestProjectDynamicActions(t *testing.T) {
	g := buildGraph(t, `protocol Spawn(role M, role W, dynamic role V) {
		M -> W: Go();
		M creates V;
		M invites V;
		M -> V: Task();
	}`)

	m, err := Project(g, "M")
	require.NoError(t, err)
	assert.Equal(t, []string{"!W.Go", "create V", "invite V", "!V.Task"}, trace(t, m))

	v, err := Project(g, "V")
	require.NoError(t, err)
	assert.Equal(t, []string{"invited by M", "?M.Task"}, trace(t, v))
}

func TestProjectErrors(t *testing.T) {
	tests := []struct {
		description string
		source      string
		role        protocol.Role
		expect      string
	}{
		{
			description: "unknown role",
			source:      `protocol P(role A, role B) { A -> B: L(); }`,
			role:        "Z",
			expect:      "not part of protocol",
		},
		{
			description: "duplicate labels block projection",
			source:      `protocol P(role A, role B) { choice at A { A -> B: Req(); } or { A -> B: Req(); } }`,
			role:        "A",
			expect:      "choice-determinism failed",
		},
		{
			description: "unmergeable continuation blocks projection",
			source: `protocol P(role A, role B, role C, role D) {
				choice at A {
					A -> B: L1();
					C -> D: X();
				} or {
					A -> B: L2();
					C -> D: Y();
				}
			}`,
			role:   "C",
			expect: "choice-mergeability failed",
		},
		{
			description: "unsafe update blocks projection",
			source: `protocol Clash(role M, role W) {
				rec L {
					M -> W: Task();
					choice at M {
						continue L with { M -> W: Task(); };
					} or {
						M -> W: Done();
					}
				}
			}`,
			role:   "M",
			expect: "unsafe",
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			_, err := Project(buildGraph(t, tc.source), tc.role)
			require.Error(t, err)
			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.role, perr.Role)
			assert.Contains(t, perr.Message, tc.expect)
		})
	}
}

func TestProjectAll(t *testing.T) {
	g := buildGraph(t, `protocol Ping(role A, role B) {
		A -> B: Ping();
		B -> A: Pong();
	}`)
	result := ProjectAll(g)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Machines, 2)
	assert.Equal(t, protocol.Role("A"), result.Machines["A"].Role)

	bad := buildGraph(t, `protocol Race(role A, role B) {
		par { A -> B: M1(); } and { A -> B: M2(); }
	}`)
	badResult := ProjectAll(bad)
	assert.Empty(t, badResult.Machines)
	require.Len(t, badResult.Errors, 2)
	assert.Contains(t, badResult.Errors[0].Message, "race-conditions")

	blocked := buildGraph(t, `protocol Dup(role A, role B) {
		choice at A { A -> B: Req(); } or { A -> B: Req(); }
	}`)
	blockedResult := ProjectAll(blocked)
	assert.Empty(t, blockedResult.Machines)
	assert.Len(t, blockedResult.Errors, 2)
}

func TestProjectSafeUpdatePipeline(t *testing.T) {
	g := buildGraph(t, `protocol Pipeline(role M, role W, dynamic role W') {
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
	result := ProjectAll(g)
	require.Empty(t, result.Errors)
	assert.True(t, hasCycle(result.Machines["M"]))
	assert.True(t, hasCycle(result.Machines["W"]))
}

func TestProjectMessageCountInvariant(t *testing.T) {
	sources := []string{
		`protocol Ping(role A, role B) { A -> B: Ping(); B -> A: Pong(); }`,
		`protocol Three(role A, role B, role C) { A -> B: One(); B -> C: Two(); C -> A: Three(); }`,
	}
	for i, source := range sources {
		t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
			g := buildGraph(t, source)
			result := ProjectAll(g)
			require.Empty(t, result.Errors)
			for _, n := range g.Nodes() {
				msg, ok := n.Action.(*cfg.MessageAction)
				if !ok {
					continue
				}
				sends := countActions(result.Machines[msg.From], func(a cfsm.Action) bool {
					send, ok := a.(*cfsm.Send)
					return ok && send.Label == msg.Label
				})
				assert.Equal(t, len(msg.To), sends, "sends of %s", msg.Label)
				for _, to := range msg.To {
					receives := countActions(result.Machines[to], func(a cfsm.Action) bool {
						recv, ok := a.(*cfsm.Receive)
						return ok && recv.Label == msg.Label
					})
					assert.Equal(t, 1, receives, "receives of %s by %s", msg.Label, to)
				}
			}
		})
	}
}

func countActions(m *cfsm.Machine, match func(cfsm.Action) bool) int {
	n := 0
	for _, tr := range m.Transitions {
		if match(tr.Action) {
			n++
		}
	}
	return n
}

func TestProjectionJSONRoundTrip(t *testing.T) {
	g := buildGraph(t, `protocol Ping(role A, role B) {
		A -> B: Ping();
		B -> A: Pong();
	}`)
	m, err := Project(g, "A")
	require.NoError(t, err)
	data, err := json.Marshal(m)
	require.NoError(t, err)
	restored, err := cfsm.Unmarshal(data)
	require.NoError(t, err)
	again, err := json.Marshal(restored)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}
