package lts

import (
	"fmt"
	"strings"

	"github.com/onemanifold/choreo/cfsm"
	"github.com/onemanifold/choreo/protocol"
)

// Orphan is a send with no matching receive anywhere in the receiver's
// machine.
type Orphan struct {
	Sender   protocol.Role `json:"sender" yaml:"sender"`
	Receiver protocol.Role `json:"receiver" yaml:"receiver"`
	Label    string        `json:"label" yaml:"label"`
}

func (o Orphan) String() string {
	return fmt.Sprintf("%s -> %s: %s has no receiver", o.Sender, o.Receiver, o.Label)
}

// StuckState is a reachable configuration where some machine can neither
// finish nor act.
type StuckState struct {
	Description string `json:"description" yaml:"description"`
}

// UnboundedBuffer is a channel whose queue outgrew the simulation bound.
type UnboundedBuffer struct {
	Sender   protocol.Role `json:"sender" yaml:"sender"`
	Receiver protocol.Role `json:"receiver" yaml:"receiver"`
	Size     int           `json:"size" yaml:"size"`
}

// LivenessResult aggregates the three liveness sub-properties; Live is
// their conjunction. Well-formedness implies liveness, so failures here
// point at projection or composition defects.
type LivenessResult struct {
	Live      bool              `json:"live" yaml:"live"`
	Orphans   []Orphan          `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Stuck     []StuckState      `json:"stuck,omitempty" yaml:"stuck,omitempty"`
	Unbounded []UnboundedBuffer `json:"unbounded,omitempty" yaml:"unbounded,omitempty"`
}

// CheckLiveness verifies orphan freedom over the machines' transition
// relations and then simulates the asynchronous execution with per-channel
// FIFO queues, watching for configurations that can neither finish nor
// act and for queues growing past bufferBound. The simulation explores at
// most maxStates configurations.
func CheckLiveness(roles []protocol.Role, machines map[protocol.Role]*cfsm.Machine, bufferBound, maxStates int) LivenessResult {
	result := LivenessResult{}
	result.Orphans = findOrphans(roles, machines)
	stuck, unbounded := simulate(roles, machines, bufferBound, maxStates)
	result.Stuck = stuck
	result.Unbounded = unbounded
	result.Live = len(result.Orphans) == 0 && len(result.Stuck) == 0 && len(result.Unbounded) == 0
	return result
}

func findOrphans(roles []protocol.Role, machines map[protocol.Role]*cfsm.Machine) []Orphan {
	var out []Orphan
	seen := map[Orphan]bool{}
	for _, role := range roles {
		m := machines[role]
		if m == nil {
			continue
		}
		for _, tr := range m.Transitions {
			send, ok := tr.Action.(*cfsm.Send)
			if !ok {
				continue
			}
			receiver := machines[send.To]
			orphan := Orphan{Sender: role, Receiver: send.To, Label: send.Label}
			if receiver == nil {
				if !seen[orphan] {
					seen[orphan] = true
					out = append(out, orphan)
				}
				continue
			}
			matched := false
			for _, rt := range receiver.Transitions {
				if recv, okRecv := rt.Action.(*cfsm.Receive); okRecv && recv.From == role && recv.Label == send.Label {
					matched = true
					break
				}
			}
			if !matched && !seen[orphan] {
				seen[orphan] = true
				out = append(out, orphan)
			}
		}
	}
	return out
}

// channelKey identifies one directed FIFO buffer.
type channelKey struct {
	sender   protocol.Role
	receiver protocol.Role
}

// config is one asynchronous configuration: machine states plus queue
// contents.
type config struct {
	states []cfsm.StateID
	queues map[channelKey][]string
}

func (c *config) key(order []protocol.Role) string {
	var b strings.Builder
	for _, s := range c.states {
		fmt.Fprintf(&b, "%d,", s)
	}
	b.WriteByte('|')
	for _, sender := range order {
		for _, receiver := range order {
			q := c.queues[channelKey{sender: sender, receiver: receiver}]
			if len(q) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s>%s:%s;", sender, receiver, strings.Join(q, ","))
		}
	}
	return b.String()
}

func (c *config) clone() *config {
	next := &config{states: append([]cfsm.StateID(nil), c.states...), queues: map[channelKey][]string{}}
	for k, q := range c.queues {
		next.queues[k] = append([]string(nil), q...)
	}
	return next
}

func simulate(roles []protocol.Role, machines map[protocol.Role]*cfsm.Machine, bufferBound, maxStates int) ([]StuckState, []UnboundedBuffer) {
	var order []protocol.Role
	for _, r := range roles {
		if machines[r] != nil {
			order = append(order, r)
		}
	}
	if len(order) == 0 {
		return nil, nil
	}
	initial := &config{states: make([]cfsm.StateID, len(order)), queues: map[channelKey][]string{}}
	for i, r := range order {
		initial.states[i] = machines[r].Initial
	}

	var stuck []StuckState
	var unbounded []UnboundedBuffer
	seenUnbounded := map[channelKey]bool{}
	seenStuck := map[string]bool{}

	visited := map[string]bool{initial.key(order): true}
	queue := []*config{initial}
	for len(queue) > 0 && len(visited) < maxStates {
		cur := queue[0]
		queue = queue[1:]

		var successors []*config
		for i, r := range order {
			m := machines[r]
			for _, tr := range m.From(cur.states[i]) {
				switch a := tr.Action.(type) {
				case *cfsm.Send:
					ch := channelKey{sender: r, receiver: a.To}
					if len(cur.queues[ch]) >= bufferBound {
						if !seenUnbounded[ch] {
							seenUnbounded[ch] = true
							unbounded = append(unbounded, UnboundedBuffer{Sender: r, Receiver: a.To, Size: len(cur.queues[ch])})
						}
						continue
					}
					next := cur.clone()
					next.states[i] = tr.To
					next.queues[ch] = append(next.queues[ch], a.Label)
					successors = append(successors, next)
				case *cfsm.Receive:
					ch := channelKey{sender: a.From, receiver: r}
					q := cur.queues[ch]
					if len(q) == 0 || q[0] != a.Label {
						continue
					}
					next := cur.clone()
					next.states[i] = tr.To
					next.queues[ch] = next.queues[ch][1:]
					if len(next.queues[ch]) == 0 {
						delete(next.queues, ch)
					}
					successors = append(successors, next)
				default:
					// silent steps, creation, invitations and calls do not
					// touch the buffers
					next := cur.clone()
					next.states[i] = tr.To
					successors = append(successors, next)
				}
			}
		}

		if len(successors) == 0 {
			allDone := true
			for i, r := range order {
				if !machines[r].IsTerminal(cur.states[i]) {
					allDone = false
					break
				}
			}
			queuesEmpty := len(cur.queues) == 0
			if !allDone || !queuesEmpty {
				desc := describeStuck(order, machines, cur)
				if !seenStuck[desc] {
					seenStuck[desc] = true
					stuck = append(stuck, StuckState{Description: desc})
				}
			}
			continue
		}
		for _, next := range successors {
			k := next.key(order)
			if visited[k] {
				continue
			}
			visited[k] = true
			queue = append(queue, next)
		}
	}
	return stuck, unbounded
}

func describeStuck(order []protocol.Role, machines map[protocol.Role]*cfsm.Machine, cur *config) string {
	var waiting []string
	for i, r := range order {
		if !machines[r].IsTerminal(cur.states[i]) {
			waiting = append(waiting, fmt.Sprintf("%s at q%d", r, cur.states[i]))
		}
	}
	var pending []string
	for _, sender := range order {
		for _, receiver := range order {
			ch := channelKey{sender: sender, receiver: receiver}
			if q := cur.queues[ch]; len(q) > 0 {
				pending = append(pending, fmt.Sprintf("%s>%s(%d)", sender, receiver, len(q)))
			}
		}
	}
	switch {
	case len(waiting) > 0 && len(pending) > 0:
		return fmt.Sprintf("stuck: %s; undelivered %s", strings.Join(waiting, ", "), strings.Join(pending, ", "))
	case len(waiting) > 0:
		return "stuck: " + strings.Join(waiting, ", ")
	default:
		return "undelivered " + strings.Join(pending, ", ")
	}
}
