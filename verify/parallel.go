package verify

import (
	"fmt"
	"sort"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/protocol"
)

// directedChannel is a (sender, receiver) pair; ordering constraints and
// races across parallel branches are analyzed per directed channel,
// irrespective of labels.
type directedChannel struct {
	sender   protocol.Role
	receiver protocol.Role
}

func (c directedChannel) String() string {
	return "(" + string(c.sender) + ", " + string(c.receiver) + ")"
}

// forkRegion captures one fork/join pair and, per branch, the messages it
// drives in program order.
type forkRegion struct {
	fork     cfg.NodeID
	join     cfg.NodeID
	branches []branchSlice
}

type branchSlice struct {
	messages []*cfg.MessageAction
}

// forkRegions slices every parallel region of the graph and keeps each
// branch's messages in program order. Mismatched fork/join pairs surface
// through the fork-join check; here the branch simply extends to wherever
// the flow ends.
func (v *verifier) forkRegions() []forkRegion {
	if v.regionsDone {
		return v.regions
	}
	v.regionsDone = true
	for _, region := range v.g.ForkRegions() {
		slice := forkRegion{fork: region.Fork, join: region.Join}
		for _, branch := range region.Branches {
			var messages []*cfg.MessageAction
			for _, id := range branch {
				if msg, ok := v.g.Node(id).Action.(*cfg.MessageAction); ok {
					messages = append(messages, msg)
				}
			}
			slice.branches = append(slice.branches, branchSlice{messages: messages})
		}
		v.regions = append(v.regions, slice)
	}
	return v.regions
}

// raceConditions reports parallel branches that drive the same directed
// channel with no ordering constraint between them.
func (v *verifier) raceConditions() []Violation {
	var out []Violation
	for _, region := range v.forkRegions() {
		perBranch := make([]map[directedChannel]bool, len(region.branches))
		for i, branch := range region.branches {
			perBranch[i] = map[directedChannel]bool{}
			for _, msg := range branch.messages {
				for _, to := range msg.To {
					perBranch[i][directedChannel{sender: msg.From, receiver: to}] = true
				}
			}
		}
		reported := map[directedChannel]bool{}
		for i := 0; i < len(perBranch); i++ {
			for j := i + 1; j < len(perBranch); j++ {
				for ch := range perBranch[i] {
					if perBranch[j][ch] && !reported[ch] {
						reported[ch] = true
					}
				}
			}
		}
		var channels []directedChannel
		for ch := range reported {
			channels = append(channels, ch)
		}
		sort.Slice(channels, func(i, j int) bool {
			if channels[i].sender != channels[j].sender {
				return channels[i].sender < channels[j].sender
			}
			return channels[i].receiver < channels[j].receiver
		})
		for _, ch := range channels {
			out = append(out, Violation{
				Message: fmt.Sprintf("parallel branches race on channel %s", ch),
				Node:    region.fork,
				Edge:    -1,
			})
		}
	}
	return out
}

// crossBranchCycles detects wait-for cycles that span parallel branches:
// within each branch, an earlier message on one directed channel orders a
// later message on another; a cycle in that order across branches is a
// deadlock.
func (v *verifier) crossBranchCycles() []Violation {
	var out []Violation
	for _, region := range v.forkRegions() {
		succ := map[directedChannel]map[directedChannel]bool{}
		var order []directedChannel
		note := func(ch directedChannel) {
			if _, ok := succ[ch]; !ok {
				succ[ch] = map[directedChannel]bool{}
				order = append(order, ch)
			}
		}
		for _, branch := range region.branches {
			var prev []directedChannel
			for _, msg := range branch.messages {
				var current []directedChannel
				for _, to := range msg.To {
					ch := directedChannel{sender: msg.From, receiver: to}
					note(ch)
					current = append(current, ch)
				}
				for _, p := range prev {
					for _, c := range current {
						if p != c {
							succ[p][c] = true
						}
					}
				}
				prev = current
			}
		}
		if cycle := findChannelCycle(order, succ); len(cycle) > 0 {
			names := make([]string, 0, len(cycle))
			for _, ch := range cycle {
				names = append(names, ch.String())
			}
			out = append(out, Violation{
				Message: fmt.Sprintf("cross-branch ordering cycle over channels %v", names),
				Node:    region.fork,
				Edge:    -1,
			})
		}
	}
	return out
}

// findChannelCycle looks for any cycle in the channel precedence relation
// with an iterative coloring walk; it returns one witness cycle.
func findChannelCycle(order []directedChannel, succ map[directedChannel]map[directedChannel]bool) []directedChannel {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[directedChannel]int{}
	parent := map[directedChannel]directedChannel{}
	for _, root := range order {
		if color[root] != white {
			continue
		}
		type frame struct {
			ch   directedChannel
			next []directedChannel
		}
		successors := func(ch directedChannel) []directedChannel {
			var out []directedChannel
			for _, cand := range order {
				if succ[ch][cand] {
					out = append(out, cand)
				}
			}
			return out
		}
		stack := []frame{{ch: root, next: successors(root)}}
		color[root] = gray
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if len(f.next) == 0 {
				color[f.ch] = black
				stack = stack[:len(stack)-1]
				continue
			}
			n := f.next[0]
			f.next = f.next[1:]
			switch color[n] {
			case white:
				color[n] = gray
				parent[n] = f.ch
				stack = append(stack, frame{ch: n, next: successors(n)})
			case gray:
				// unwind the witness
				cycle := []directedChannel{n}
				for cur := f.ch; cur != n; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
		}
	}
	return nil
}

// parallelDeadlock reports cross-branch wait-for cycles per fork/join pair.
func (v *verifier) parallelDeadlock() []Violation {
	return v.crossBranchCycles()
}

// multicast flags multi-receiver sends; they project but deserve review.
func (v *verifier) multicast() []Violation {
	var out []Violation
	for _, n := range v.g.Nodes() {
		if msg, ok := n.Action.(*cfg.MessageAction); ok && len(msg.To) > 1 {
			out = append(out, Violation{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("message %q multicasts to %d receivers", msg.Label, len(msg.To)),
				Node:     n.ID,
				Edge:     -1,
			})
		}
	}
	return out
}

// selfCommunication flags messages whose sender is also a receiver.
func (v *verifier) selfCommunication() []Violation {
	var out []Violation
	for _, n := range v.g.Nodes() {
		msg, ok := n.Action.(*cfg.MessageAction)
		if !ok {
			continue
		}
		for _, to := range msg.To {
			if to == msg.From {
				out = append(out, Violation{
					Message: fmt.Sprintf("role %q sends message %q to itself", msg.From, msg.Label),
					Node:    n.ID,
					Edge:    -1,
				})
				break
			}
		}
	}
	return out
}
