package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemanifold/choreo/cfg"
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

func TestRun(t *testing.T) {
	tests := []struct {
		description string
		source      string
		validate    func(t *testing.T, report *Report)
	}{
		{
			description: "ping pong verifies all green",
			source: `protocol Ping(role A, role B) {
				A -> B: Ping();
				B -> A: Pong();
			}`,
			validate: func(t *testing.T, report *Report) {
				assert.False(t, report.HasErrors())
				assert.False(t, report.HasWarnings())
				assert.True(t, report.ProjectionReady())
				for _, res := range report.Results {
					assert.True(t, res.Pass, string(res.Check))
				}
			},
		},
		{
			description: "oauth choice is deterministic and mergeable",
			source: `protocol OAuth(role s, role c, role a) {
				choice at s {
					s -> c: login();
					c -> a: passwd(Str);
					a -> s: auth(Bool);
				} or {
					s -> c: cancel();
					c -> a: quit();
				}
			}`,
			validate: func(t *testing.T, report *Report) {
				assert.True(t, report.Passed(CheckChoiceDeterminism))
				assert.True(t, report.Passed(CheckChoiceMergeability))
				assert.True(t, report.ProjectionReady())
				assert.False(t, report.HasErrors())
			},
		},
		{
			description: "parallel race on the same channel",
			source: `protocol Race(role A, role B) {
				par { A -> B: M1(); } and { A -> B: M2(); }
			}`,
			validate: func(t *testing.T, report *Report) {
				res := report.Result(CheckRaceConditions)
				require.NotNil(t, res)
				require.False(t, res.Pass)
				assert.Contains(t, res.Violations[0].Message, "(A, B)")
				assert.True(t, report.HasErrors())
			},
		},
		{
			description: "cross-branch wait cycle is a deadlock",
			source: `protocol Deadlock(role A, role B) {
				par {
					A -> B: M1();
					B -> A: M2();
				} and {
					B -> A: M3();
					A -> B: M4();
				}
			}`,
			validate: func(t *testing.T, report *Report) {
				assert.False(t, report.Passed(CheckDeadlock))
				assert.False(t, report.Passed(CheckParallelDeadlock))
				res := report.Result(CheckParallelDeadlock)
				assert.Contains(t, res.Violations[0].Message, "cycle")
			},
		},
		{
			description: "duplicate labels break determinism",
			source: `protocol Dup(role A, role B) {
				choice at A { A -> B: Req(); } or { A -> B: Req(); }
			}`,
			validate: func(t *testing.T, report *Report) {
				res := report.Result(CheckChoiceDeterminism)
				require.False(t, res.Pass)
				assert.Contains(t, res.Violations[0].Message, `"Req"`)
				assert.False(t, report.ProjectionReady())
			},
		},
		{
			description: "orphaned role fails connectedness",
			source: `protocol Orphan(role A, role B, role C) {
				A -> B: L();
			}`,
			validate: func(t *testing.T, report *Report) {
				res := report.Result(CheckConnectedness)
				require.False(t, res.Pass)
				assert.Contains(t, res.Violations[0].Message, `"C"`)
				assert.False(t, report.ProjectionReady())
			},
		},
		{
			description: "self communication is an error",
			source: `protocol Selfie(role A, role B) {
				A -> A: Echo();
				A -> B: Done();
			}`,
			validate: func(t *testing.T, report *Report) {
				res := report.Result(CheckSelfCommunication)
				require.False(t, res.Pass)
				assert.True(t, report.HasErrors())
			},
		},
		{
			description: "multicast is only a warning",
			source: `protocol Cast(role A, role B, role C) {
				A -> B, C: Notify();
				B -> A: Ack();
				C -> A: Ack2();
			}`,
			validate: func(t *testing.T, report *Report) {
				res := report.Result(CheckMulticast)
				require.False(t, res.Pass)
				assert.Equal(t, SeverityWarning, res.Violations[0].Severity)
				assert.True(t, report.HasWarnings())
				assert.False(t, report.HasErrors())
			},
		},
		{
			description: "recursion with exit passes every check",
			source: `protocol Loop(role A, role B) {
				rec X {
					A -> B: More();
					choice at A { continue X; } or { A -> B: Stop(); }
				}
			}`,
			validate: func(t *testing.T, report *Report) {
				assert.False(t, report.HasErrors())
				assert.True(t, report.Passed(CheckDeadlock))
				assert.True(t, report.Passed(CheckNestedRecursion))
				assert.True(t, report.Passed(CheckRecursionInParallel))
			},
		},
		{
			description: "independent parallel channels are clean",
			source: `protocol Par(role A, role B, role C, role D) {
				par { A -> B: M1(); } and { C -> D: M2(); }
			}`,
			validate: func(t *testing.T, report *Report) {
				assert.True(t, report.Passed(CheckRaceConditions))
				assert.True(t, report.Passed(CheckParallelDeadlock))
				assert.True(t, report.Passed(CheckForkJoinMatch))
				assert.False(t, report.HasErrors())
			},
		},
		{
			description: "non-receiving role with divergent continuations fails mergeability",
			source: `protocol Unmergeable(role A, role B, role C, role D) {
				choice at A {
					A -> B: L1();
					C -> D: X();
				} or {
					A -> B: L2();
					C -> D: Y();
				}
			}`,
			validate: func(t *testing.T, report *Report) {
				res := report.Result(CheckChoiceMergeability)
				require.False(t, res.Pass)
				assert.Contains(t, res.Violations[0].Message, `"C"`)
				assert.False(t, report.ProjectionReady())
			},
		},
		{
			description: "receiver distinguishing by label stays mergeable",
			source: `protocol Distinguish(role A, role B, role C) {
				choice at A {
					A -> B: L1();
					B -> C: X();
					C -> B: Xok();
				} or {
					A -> B: L2();
					B -> C: Y();
					C -> B: Yok();
				}
			}`,
			validate: func(t *testing.T, report *Report) {
				assert.True(t, report.Passed(CheckChoiceMergeability))
				assert.False(t, report.HasErrors())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			report := Run(buildGraph(t, tc.source))
			tc.validate(t, report)
		})
	}
}

func TestRunDeterministic(t *testing.T) {
	g := buildGraph(t, `protocol P(role A, role B, role C) {
		par { A -> B: M1(); } and { A -> B: M2(); }
		choice at A { A -> C: L(); } or { A -> C: L(); }
	}`)
	first := Run(g)
	second := Run(g)
	assert.Equal(t, first, second)
}

func TestReportRollups(t *testing.T) {
	g := buildGraph(t, `protocol Cast(role A, role B, role C) {
		A -> B, C: Notify();
		B -> A: Ack();
		C -> A: Ack2();
	}`)
	report := Run(g)
	assert.True(t, report.HasWarnings())
	assert.False(t, report.HasErrors())
	assert.Empty(t, report.Errors())
	assert.Nil(t, report.Result(CheckID("nonexistent")))
	assert.False(t, report.Passed(CheckID("nonexistent")))
}

func TestEveryCheckPresent(t *testing.T) {
	report := Run(buildGraph(t, `protocol P(role A, role B) { A -> B: L(); }`))
	expected := []CheckID{
		CheckConnectedness, CheckChoiceDeterminism, CheckChoiceMergeability,
		CheckDeadlock, CheckLiveness, CheckParallelDeadlock, CheckRaceConditions,
		CheckNestedRecursion, CheckRecursionInParallel, CheckForkJoinMatch,
		CheckMulticast, CheckSelfCommunication, CheckEmptyBranch, CheckMergeReachability,
	}
	require.Len(t, report.Results, len(expected))
	for i, id := range expected {
		assert.Equal(t, id, report.Results[i].Check)
	}
}
