package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		description string
		source      string
		validate    func(t *testing.T, proto *Protocol)
	}{
		{
			description: "two message exchange",
			source: `protocol Ping(role A, role B) {
				A -> B: Ping();
				B -> A: Pong();
			}`,
			validate: func(t *testing.T, proto *Protocol) {
				assert.Equal(t, "Ping", proto.Name)
				assert.Equal(t, []Role{"A", "B"}, proto.Roles)
				seq, ok := proto.Body.(*Sequence)
				require.True(t, ok)
				require.Len(t, seq.Stmts, 2)
				msg := seq.Stmts[0].(*Message)
				assert.Equal(t, Role("A"), msg.From)
				assert.Equal(t, []Role{"B"}, msg.To)
				assert.Equal(t, "Ping", msg.Label)
				assert.Equal(t, 2, msg.Range.Line)
			},
		},
		{
			description: "choice with payload types",
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
			validate: func(t *testing.T, proto *Protocol) {
				choice, ok := proto.Body.(*Choice)
				require.True(t, ok)
				assert.Equal(t, Role("s"), choice.At)
				require.Len(t, choice.Branches, 2)
				first := choice.Branches[0].(*Sequence)
				assert.Equal(t, "Str", first.Stmts[1].(*Message).Payload)
			},
		},
		{
			description: "parallel branches",
			source: `protocol Par(role A, role B, role C) {
				par { A -> B: M1(); } and { A -> C: M2(); }
			}`,
			validate: func(t *testing.T, proto *Protocol) {
				par, ok := proto.Body.(*Parallel)
				require.True(t, ok)
				assert.Len(t, par.Branches, 2)
			},
		},
		{
			description: "recursion with plain continue",
			source: `protocol Loop(role A, role B) {
				rec X {
					A -> B: More();
					continue X;
				}
			}`,
			validate: func(t *testing.T, proto *Protocol) {
				rec, ok := proto.Body.(*Recursion)
				require.True(t, ok)
				assert.Equal(t, "X", rec.Label)
				body := rec.Body.(*Sequence)
				_, ok = body.Stmts[1].(*Continue)
				assert.True(t, ok)
			},
		},
		{
			description: "updatable continue with primed role",
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
			validate: func(t *testing.T, proto *Protocol) {
				assert.Equal(t, []Role{"M", "W"}, proto.Roles)
				assert.Equal(t, []Role{"W'"}, proto.Dynamic)
				rec := proto.Body.(*Recursion)
				choice := rec.Body.(*Sequence).Stmts[2].(*Choice)
				upd, ok := choice.Branches[0].(*UpdatableContinue)
				require.True(t, ok)
				assert.Equal(t, "L", upd.Label)
				msg := upd.Update.(*Message)
				assert.Equal(t, []Role{"W'"}, msg.To)
			},
		},
		{
			description: "dynamic participant lifecycle",
			source: `protocol Spawn(role M, dynamic role W) {
				M creates W as worker;
				M invites W;
				M -> W: Task();
				M calls Cleanup(M, W);
				end;
			}`,
			validate: func(t *testing.T, proto *Protocol) {
				seq := proto.Body.(*Sequence)
				require.Len(t, seq.Stmts, 5)
				create := seq.Stmts[0].(*Create)
				assert.Equal(t, "worker", create.Instance)
				invite := seq.Stmts[1].(*Invitation)
				assert.Equal(t, Role("W"), invite.Invitee)
				call := seq.Stmts[3].(*Call)
				assert.Equal(t, "Cleanup", call.Protocol)
				assert.Equal(t, []Role{"M", "W"}, call.Arguments)
				_, ok := seq.Stmts[4].(*End)
				assert.True(t, ok)
			},
		},
		{
			description: "multicast receivers",
			source: `protocol Cast(role A, role B, role C) {
				A -> B, C: Notify();
			}`,
			validate: func(t *testing.T, proto *Protocol) {
				msg := proto.Body.(*Message)
				assert.Equal(t, []Role{"B", "C"}, msg.To)
			},
		},
		{
			description: "comments are skipped",
			source: `// choreography
			protocol C(role A, role B) {
				/* exchange */
				A -> B: Go();
			}`,
			validate: func(t *testing.T, proto *Protocol) {
				msg := proto.Body.(*Message)
				assert.Equal(t, "Go", msg.Label)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			proto, err := Parse(tc.source)
			require.NoError(t, err)
			tc.validate(t, proto)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		description string
		source      string
		expect      string
	}{
		{
			description: "single branch choice",
			source:      `protocol P(role A, role B) { choice at A { A -> B: L(); } }`,
			expect:      "choice requires at least two branches",
		},
		{
			description: "single branch par",
			source:      `protocol P(role A, role B) { par { A -> B: L(); } }`,
			expect:      "par requires at least two branches",
		},
		{
			description: "missing semicolon",
			source:      `protocol P(role A, role B) { A -> B: L() }`,
			expect:      "expected ';'",
		},
		{
			description: "unterminated block",
			source:      `protocol P(role A, role B) { A -> B: L();`,
			expect:      "unterminated block",
		},
		{
			description: "stray token after body",
			source:      `protocol P(role A, role B) { A -> B: L(); } extra`,
			expect:      "unexpected identifier",
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			_, err := Parse(tc.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expect)
		})
	}
}

func TestParticipants(t *testing.T) {
	proto, err := Parse(`protocol P(role A, role B, role C) {
		choice at A {
			A -> B: L1();
			B -> C: L2();
		} or {
			A -> B: L3();
		}
	}`)
	require.NoError(t, err)
	assert.Equal(t, []Role{"A", "B", "C"}, Participants(proto.Body))
}
