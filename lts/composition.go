package lts

import (
	"fmt"
	"strings"

	"github.com/onemanifold/choreo/cfsm"
	"github.com/onemanifold/choreo/protocol"
)

// Composition is the synchronous product of projected machines: a message
// fires when its sender's send and its receiver's receive are jointly
// available, an invitation when both ends are ready, a call when every
// participating machine is at its call step. Silent machine steps and
// participant creation interleave freely as τ.
type Composition struct {
	LTS       *LTS
	Truncated bool
}

// Compose builds the product system over the machines, in role order. The
// exploration stops at maxStates product states; the Truncated flag then
// reports that the system is only a prefix.
func Compose(roles []protocol.Role, machines map[protocol.Role]*cfsm.Machine, maxStates int) *Composition {
	var order []protocol.Role
	for _, r := range roles {
		if machines[r] != nil {
			order = append(order, r)
		}
	}
	index := map[protocol.Role]int{}
	for i, r := range order {
		index[r] = i
	}
	c := &composer{
		order:    order,
		index:    index,
		machines: machines,
		l:        New("composition"),
		states:   map[string]int{},
	}
	result := c.explore(maxStates)
	return result
}

type composer struct {
	order    []protocol.Role
	index    map[protocol.Role]int
	machines map[protocol.Role]*cfsm.Machine
	l        *LTS
	states   map[string]int
}

type product []cfsm.StateID

func (c *composer) key(p product) string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", s)
	}
	return b.String()
}

func (c *composer) stateFor(p product) (int, bool) {
	k := c.key(p)
	if id, ok := c.states[k]; ok {
		return id, false
	}
	id := c.l.AddState()
	c.states[k] = id
	if c.allTerminal(p) {
		c.l.MarkTerminal(id)
	}
	return id, true
}

func (c *composer) allTerminal(p product) bool {
	for i, r := range c.order {
		if !c.machines[r].IsTerminal(p[i]) {
			return false
		}
	}
	return true
}

func (c *composer) explore(maxStates int) *Composition {
	initial := make(product, len(c.order))
	for i, r := range c.order {
		initial[i] = c.machines[r].Initial
	}
	id, _ := c.stateFor(initial)
	c.l.Initial = id
	queue := []product{initial}
	truncated := false
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		from := c.states[c.key(cur)]
		for _, step := range c.steps(cur) {
			if c.l.StateCount() >= maxStates {
				if _, exists := c.states[c.key(step.next)]; !exists {
					truncated = true
					continue
				}
			}
			to, fresh := c.stateFor(step.next)
			c.l.AddTransition(from, step.label, to)
			if fresh {
				queue = append(queue, step.next)
			}
		}
	}
	return &Composition{LTS: c.l, Truncated: truncated}
}

type productStep struct {
	label Label
	next  product
}

// steps enumerates the enabled product transitions in deterministic order:
// machines in role order, transitions in machine order.
func (c *composer) steps(p product) []productStep {
	var out []productStep
	for i, r := range c.order {
		m := c.machines[r]
		for _, tr := range m.From(p[i]) {
			switch a := tr.Action.(type) {
			case *cfsm.Tau:
				out = append(out, productStep{label: TauLabel, next: c.advance(p, i, tr.To)})
			case *cfsm.Create:
				// creation is silent in the product
				out = append(out, productStep{label: TauLabel, next: c.advance(p, i, tr.To)})
			case *cfsm.Send:
				j, ok := c.index[a.To]
				if !ok {
					continue
				}
				for _, recv := range c.machines[a.To].From(p[j]) {
					match, okRecv := recv.Action.(*cfsm.Receive)
					if !okRecv || match.From != r || match.Label != a.Label {
						continue
					}
					next := c.advance(p, i, tr.To)
					next[j] = recv.To
					out = append(out, productStep{
						label: Label{Kind: LabelMessage, From: r, To: a.To, Name: a.Label, Payload: a.Payload},
						next:  next,
					})
				}
			case *cfsm.Invite:
				j, ok := c.index[a.Invitee]
				if !ok {
					continue
				}
				for _, recv := range c.machines[a.Invitee].From(p[j]) {
					match, okRecv := recv.Action.(*cfsm.InviteReceive)
					if !okRecv || match.Inviter != r {
						continue
					}
					next := c.advance(p, i, tr.To)
					next[j] = recv.To
					out = append(out, productStep{
						label: Label{Kind: LabelInvite, From: r, To: a.Invitee},
						next:  next,
					})
				}
			case *cfsm.Call:
				if !c.firstParticipant(r, a) {
					continue
				}
				next, ok := c.advanceCall(p, a)
				if !ok {
					continue
				}
				out = append(out, productStep{label: Label{Kind: LabelCall, Name: a.Protocol, Args: JoinRoles(a.Participants)}, next: next})
			case *cfsm.Receive, *cfsm.InviteReceive:
				// passive: the sending side drives the step
			}
		}
	}
	return out
}

func (c *composer) advance(p product, i int, to cfsm.StateID) product {
	next := make(product, len(p))
	copy(next, p)
	next[i] = to
	return next
}

// firstParticipant reports whether r is the first composed participant of
// the call, so each call fires once.
func (c *composer) firstParticipant(r protocol.Role, call *cfsm.Call) bool {
	for _, participant := range call.Participants {
		if _, ok := c.index[participant]; ok {
			return participant == r
		}
	}
	return true
}

// advanceCall moves every composed participant over its call step; the
// call is disabled while any participant is not ready.
func (c *composer) advanceCall(p product, call *cfsm.Call) (product, bool) {
	next := make(product, len(p))
	copy(next, p)
	for _, participant := range call.Participants {
		j, ok := c.index[participant]
		if !ok {
			continue
		}
		ready := false
		for _, tr := range c.machines[participant].From(p[j]) {
			if a, okCall := tr.Action.(*cfsm.Call); okCall && a.Protocol == call.Protocol {
				next[j] = tr.To
				ready = true
				break
			}
		}
		if !ready {
			return nil, false
		}
	}
	return next, true
}
