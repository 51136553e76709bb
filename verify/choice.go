package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/protocol"
)

const (
	// bounds for the per-branch path enumeration behind mergeability
	mergePathLimit  = 64
	mergePathLength = 512
)

// choiceBranch is one alternative of a branch node: the entry node (NoNode
// for jump branches) and the first messages reachable on it.
type choiceBranch struct {
	entry cfg.NodeID
	jump  bool
	first []*cfg.MessageAction
}

func (v *verifier) choiceBranches(branch cfg.NodeID) []choiceBranch {
	var out []choiceBranch
	for _, e := range v.g.Out(branch) {
		if e.Type == cfg.EdgeContinue {
			out = append(out, choiceBranch{entry: e.To, jump: true})
			continue
		}
		// an updatable-continue branch jumps back into its recursion the
		// same way a plain continue does
		if _, ok := v.g.Node(e.To).Action.(*cfg.UpdateAction); ok {
			out = append(out, choiceBranch{entry: e.To, jump: true})
			continue
		}
		out = append(out, choiceBranch{entry: e.To, first: v.firstMessages(e.To)})
	}
	return out
}

// firstMessages walks one branch and returns the first message action along
// every alternative, without crossing merge nodes or continue edges.
func (v *verifier) firstMessages(entry cfg.NodeID) []*cfg.MessageAction {
	var out []*cfg.MessageAction
	seen := map[cfg.NodeID]bool{entry: true}
	queue := []cfg.NodeID{entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := v.g.Node(cur)
		if msg, ok := node.Action.(*cfg.MessageAction); ok {
			out = append(out, msg)
			continue
		}
		if node.Kind == cfg.KindMerge {
			continue
		}
		for _, e := range v.g.Out(cur) {
			if e.Type == cfg.EdgeContinue || seen[e.To] {
				continue
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return out
}

// choiceDeterminism verifies that the alternatives of every choice are
// distinguishable by their first message labels, globally and per receiver.
func (v *verifier) choiceDeterminism() []Violation {
	var out []Violation
	for _, n := range v.g.Nodes() {
		if n.Kind != cfg.KindBranch {
			continue
		}
		branches := v.choiceBranches(n.ID)
		for i := 0; i < len(branches); i++ {
			for j := i + 1; j < len(branches); j++ {
				for _, a := range branches[i].first {
					for _, b := range branches[j].first {
						if a.Label == b.Label {
							out = append(out, Violation{
								Message: fmt.Sprintf("choice at %q uses label %q on more than one branch", n.At, a.Label),
								Node:    n.ID,
								Edge:    -1,
							})
						}
					}
				}
			}
		}
	}
	return out
}

// roleEvent is one observable step of a role inside a branch continuation.
type roleEvent struct {
	kind  string
	peer  protocol.Role
	label string
}

func (e roleEvent) String() string {
	return e.kind + " " + string(e.peer) + " " + e.label
}

// roleEvents extracts r's events from a node path.
func (v *verifier) roleEvents(r protocol.Role, path []cfg.NodeID) []roleEvent {
	var out []roleEvent
	for _, id := range path {
		switch a := v.g.Node(id).Action.(type) {
		case *cfg.MessageAction:
			if a.From == r {
				for _, to := range a.To {
					out = append(out, roleEvent{kind: "send", peer: to, label: a.Label})
				}
				continue
			}
			for _, to := range a.To {
				if to == r {
					out = append(out, roleEvent{kind: "receive", peer: a.From, label: a.Label})
				}
			}
		case *cfg.CallAction:
			if a.Caller == r {
				out = append(out, roleEvent{kind: "call", peer: "", label: a.Protocol})
				continue
			}
			for _, p := range a.Participants {
				if p == r {
					out = append(out, roleEvent{kind: "call", peer: "", label: a.Protocol})
					break
				}
			}
		case *cfg.CreateAction:
			if a.Creator == r {
				out = append(out, roleEvent{kind: "create", peer: "", label: a.RoleType})
			}
		case *cfg.InvitationAction:
			if a.Inviter == r {
				out = append(out, roleEvent{kind: "invite", peer: a.Invitee, label: ""})
			} else if a.Invitee == r {
				out = append(out, roleEvent{kind: "invited", peer: a.Inviter, label: ""})
			}
		}
	}
	return out
}

// branchSequences enumerates r's event sequences along every path of one
// branch, up to the choice's convergence nodes.
func (v *verifier) branchSequences(r protocol.Role, entry cfg.NodeID, convergence map[cfg.NodeID]bool) map[string][]roleEvent {
	stop := func(id cfg.NodeID) bool {
		if convergence[id] {
			return true
		}
		for _, e := range v.g.Out(id) {
			if e.Type != cfg.EdgeContinue {
				return false
			}
		}
		return true
	}
	out := map[string][]roleEvent{}
	for _, path := range v.g.Paths(entry, stop, cfg.SkipContinue, mergePathLimit, mergePathLength) {
		events := v.roleEvents(r, path)
		keys := make([]string, 0, len(events))
		for _, ev := range events {
			keys = append(keys, ev.String())
		}
		out[strings.Join(keys, " · ")] = events
	}
	return out
}

// choiceMergeability verifies the merge condition: a role that cannot tell
// the alternatives of a choice apart by its first received label must
// behave identically on all of them.
func (v *verifier) choiceMergeability() []Violation {
	var out []Violation
	for _, n := range v.g.Nodes() {
		if n.Kind != cfg.KindBranch {
			continue
		}
		branches := v.choiceBranches(n.ID)
		var entries []cfg.NodeID
		for _, b := range branches {
			if !b.jump {
				entries = append(entries, b.entry)
			}
		}
		if len(entries) < 2 {
			continue
		}
		convergence := v.convergenceNodes(entries)
		for _, role := range v.g.Roles {
			if role == n.At {
				continue
			}
			if v.distinguishes(role, branches) {
				continue
			}
			if viol := v.checkMergeable(role, n, entries, convergence); viol != nil {
				out = append(out, *viol)
			}
		}
	}
	return out
}

// distinguishes reports whether r receives one of the first messages on
// every branch, with pairwise distinct labels across the branches.
func (v *verifier) distinguishes(r protocol.Role, branches []choiceBranch) bool {
	var labelSets []map[string]bool
	for _, b := range branches {
		if b.jump {
			continue
		}
		labels := map[string]bool{}
		for _, msg := range b.first {
			for _, to := range msg.To {
				if to == r {
					labels[msg.Label] = true
				}
			}
		}
		if len(labels) == 0 {
			return false
		}
		labelSets = append(labelSets, labels)
	}
	for i := 0; i < len(labelSets); i++ {
		for j := i + 1; j < len(labelSets); j++ {
			for label := range labelSets[i] {
				if labelSets[j][label] {
					return false
				}
			}
		}
	}
	return len(labelSets) > 0
}

// convergenceNodes finds the nodes reachable from every branch entry; path
// enumeration stops there.
func (v *verifier) convergenceNodes(entries []cfg.NodeID) map[cfg.NodeID]bool {
	common := map[cfg.NodeID]bool{}
	first := v.g.ReachableFrom(entries[0], cfg.SkipContinue)
	for id := range first {
		if id == entries[0] {
			continue
		}
		shared := true
		for _, e := range entries[1:] {
			if !v.g.ReachableFrom(e, cfg.SkipContinue)[id] {
				shared = false
				break
			}
		}
		if shared {
			common[id] = true
		}
	}
	return common
}

func (v *verifier) checkMergeable(r protocol.Role, branch *cfg.Node, entries []cfg.NodeID, convergence map[cfg.NodeID]bool) *Violation {
	var all []map[string][]roleEvent
	for _, entry := range entries {
		all = append(all, v.branchSequences(r, entry, convergence))
	}
	// identical behavior on every alternative merges trivially
	identical := true
	for _, seqs := range all[1:] {
		if !sameKeys(all[0], seqs) {
			identical = false
			break
		}
	}
	if identical {
		return nil
	}
	// otherwise r must start every alternative with a receive, and the
	// receive labels must not overlap between alternatives
	var firstLabels []map[string]bool
	for i, seqs := range all {
		labels := map[string]bool{}
		for _, events := range seqs {
			if len(events) == 0 {
				return &Violation{
					Message: fmt.Sprintf("role %q is silent on one alternative of choice at %q but active on another", r, branch.At),
					Node:    branch.ID,
					Edge:    -1,
				}
			}
			if events[0].kind != "receive" {
				return &Violation{
					Message: fmt.Sprintf("role %q starts alternative %d of choice at %q with %s %q, not a receive; continuations cannot merge", r, i+1, branch.At, events[0].kind, events[0].label),
					Node:    branch.ID,
					Edge:    -1,
				}
			}
			labels[events[0].label] = true
		}
		firstLabels = append(firstLabels, labels)
	}
	var overlapping []string
	for i := 0; i < len(firstLabels); i++ {
		for j := i + 1; j < len(firstLabels); j++ {
			for label := range firstLabels[i] {
				if firstLabels[j][label] {
					overlapping = append(overlapping, label)
				}
			}
		}
	}
	if len(overlapping) > 0 {
		sort.Strings(overlapping)
		return &Violation{
			Message: fmt.Sprintf("role %q cannot distinguish alternatives of choice at %q: both start by receiving %q", r, branch.At, overlapping[0]),
			Node:    branch.ID,
			Edge:    -1,
		}
	}
	return nil
}

func sameKeys(a, b map[string][]roleEvent) bool {
	if len(a) != len(b) {
		return false
	}
	keysA := make([]string, 0, len(a))
	for k := range a {
		keysA = append(keysA, k)
	}
	sort.Strings(keysA)
	for _, k := range keysA {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// emptyBranch flags choice alternatives and parallel branches with no
// statements at all.
func (v *verifier) emptyBranch() []Violation {
	var out []Violation
	for _, e := range v.g.Edges() {
		from := v.g.Node(e.From)
		to := v.g.Node(e.To)
		if from.Kind == cfg.KindBranch && to.Kind == cfg.KindMerge && e.Type == cfg.EdgeBranch {
			out = append(out, Violation{
				Message: fmt.Sprintf("choice at %q has an empty branch", from.At),
				Node:    from.ID,
				Edge:    e.ID,
			})
		}
		if from.Kind == cfg.KindFork && to.Kind == cfg.KindJoin && e.Type == cfg.EdgeFork {
			out = append(out, Violation{
				Message: "parallel region has an empty branch",
				Node:    from.ID,
				Edge:    e.ID,
			})
		}
	}
	return out
}
