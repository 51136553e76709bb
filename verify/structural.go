package verify

import (
	"fmt"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/protocol"
)

// connectedness verifies that every declared role takes part in some
// action. A role nobody messages, invites, creates or calls with is
// orphaned and cannot be projected meaningfully.
func (v *verifier) connectedness() []Violation {
	participates := map[protocol.Role]bool{}
	for _, n := range v.g.Nodes() {
		switch a := n.Action.(type) {
		case *cfg.MessageAction:
			participates[a.From] = true
			for _, to := range a.To {
				participates[to] = true
			}
		case *cfg.CallAction:
			participates[a.Caller] = true
			for _, p := range a.Participants {
				participates[p] = true
			}
		case *cfg.CreateAction:
			participates[a.Creator] = true
			participates[protocol.Role(a.RoleType)] = true
			if a.Instance != "" {
				participates[protocol.Role(a.Instance)] = true
			}
		case *cfg.InvitationAction:
			participates[a.Inviter] = true
			participates[a.Invitee] = true
		}
	}
	var out []Violation
	for _, role := range v.g.Roles {
		if !participates[role] {
			out = append(out, Violation{
				Message: fmt.Sprintf("role %q participates in no action", role),
				Node:    cfg.NoNode,
				Edge:    -1,
			})
		}
	}
	return out
}

// deadlock reports structural cycles: a nontrivial strongly connected
// component of the non-continue graph can never make progress, and so can
// a cyclic component that closes without a recursion head. Cross-branch
// wait-for cycles inside parallel regions count as deadlocks as well.
func (v *verifier) deadlock() []Violation {
	var out []Violation
	for _, comp := range v.g.NontrivialSCCs(cfg.SkipContinue) {
		out = append(out, Violation{
			Message: fmt.Sprintf("cycle of %d nodes outside any recursion, entered at %s", len(comp), v.g.Describe(comp[0])),
			Node:    comp[0],
			Edge:    -1,
		})
	}
	for _, comp := range v.g.NontrivialSCCs(cfg.AllEdges) {
		hasHead := false
		for _, id := range comp {
			if v.g.Node(id).Kind == cfg.KindRecursive {
				hasHead = true
				break
			}
		}
		if !hasHead {
			out = append(out, Violation{
				Message: fmt.Sprintf("cycle of %d nodes without a recursion head, entered at %s", len(comp), v.g.Describe(comp[0])),
				Node:    comp[0],
				Edge:    -1,
			})
		}
	}
	out = append(out, v.crossBranchCycles()...)
	return out
}

// liveness verifies that every node can still reach a terminal when
// continue back-edges are taken into account.
func (v *verifier) liveness() []Violation {
	live := map[cfg.NodeID]bool{}
	for _, t := range v.g.Terminals() {
		for id := range v.g.ReachableTo(t, cfg.AllEdges) {
			live[id] = true
		}
	}
	var out []Violation
	for _, n := range v.g.Nodes() {
		if !live[n.ID] {
			out = append(out, Violation{
				Message: fmt.Sprintf("%s cannot reach any terminal", v.g.Describe(n.ID)),
				Node:    n.ID,
				Edge:    -1,
			})
		}
	}
	return out
}

// nestedRecursion verifies that every continue edge targets a recursion
// head whose body encloses the edge's source.
func (v *verifier) nestedRecursion() []Violation {
	var out []Violation
	for _, e := range v.g.Edges() {
		if e.Type != cfg.EdgeContinue {
			continue
		}
		head := v.g.Node(e.To)
		if head.Kind != cfg.KindRecursive {
			out = append(out, Violation{
				Message: fmt.Sprintf("continue edge %d targets %s instead of a recursion head", e.ID, v.g.Describe(e.To)),
				Node:    e.To,
				Edge:    e.ID,
			})
			continue
		}
		if !v.g.CanReach(head.ID, e.From, cfg.SkipContinue) {
			out = append(out, Violation{
				Message: fmt.Sprintf("continue to %q escapes its recursion body at %s", head.Label, v.g.Describe(e.From)),
				Node:    e.From,
				Edge:    e.ID,
			})
		}
	}
	return out
}

// parallelContexts assigns each node the stack of open parallel regions on
// the way from the initial node, as a canonical string key.
func (v *verifier) parallelContexts() map[cfg.NodeID]string {
	ctx := map[cfg.NodeID]string{}
	initial := v.g.Initial()
	ctx[initial] = ""
	queue := []cfg.NodeID{initial}
	seen := map[cfg.NodeID]bool{initial: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := v.g.Node(cur)
		for _, e := range v.g.Out(cur) {
			if e.Type == cfg.EdgeContinue {
				continue
			}
			next := ctx[cur]
			if node.Kind == cfg.KindFork && e.Type == cfg.EdgeFork {
				next = fmt.Sprintf("%s/%d", ctx[cur], node.Parallel)
			}
			target := v.g.Node(e.To)
			if target.Kind == cfg.KindJoin {
				// leaving the innermost region
				if idx := lastSlash(next); idx >= 0 {
					next = next[:idx]
				}
			}
			if _, ok := ctx[e.To]; !ok {
				ctx[e.To] = next
			}
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return ctx
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// recursionInParallel verifies that no recursion spans a fork/join pair: a
// continue edge must close inside the same parallel context its head
// opened in.
func (v *verifier) recursionInParallel() []Violation {
	ctx := v.parallelContexts()
	var out []Violation
	for _, e := range v.g.Edges() {
		if e.Type != cfg.EdgeContinue {
			continue
		}
		from, fromOK := ctx[e.From]
		to, toOK := ctx[e.To]
		if fromOK && toOK && from != to {
			out = append(out, Violation{
				Message: fmt.Sprintf("recursion at %s spans a parallel region (continue from %s)", v.g.Describe(e.To), v.g.Describe(e.From)),
				Node:    e.From,
				Edge:    e.ID,
			})
		}
	}
	return out
}

// forkJoinMatch verifies the pairing discipline: every fork has exactly
// one join with the same parallel id, every join a fork, every branch of a
// fork reaches its join, and the fork dominates it.
func (v *verifier) forkJoinMatch() []Violation {
	var out []Violation
	forks := map[int][]cfg.NodeID{}
	joins := map[int][]cfg.NodeID{}
	for _, n := range v.g.Nodes() {
		switch n.Kind {
		case cfg.KindFork:
			forks[n.Parallel] = append(forks[n.Parallel], n.ID)
		case cfg.KindJoin:
			joins[n.Parallel] = append(joins[n.Parallel], n.ID)
		}
	}
	for id, f := range forks {
		if len(f) > 1 {
			out = append(out, Violation{
				Message: fmt.Sprintf("parallel id %d has %d fork nodes", id, len(f)),
				Node:    f[1],
				Edge:    -1,
			})
		}
		j := joins[id]
		if len(j) != 1 {
			out = append(out, Violation{
				Message: fmt.Sprintf("fork %d has %d matching joins", id, len(j)),
				Node:    f[0],
				Edge:    -1,
			})
			continue
		}
		fork, join := f[0], j[0]
		for _, e := range v.g.Out(fork) {
			if e.Type != cfg.EdgeFork || e.To == join {
				continue
			}
			if !v.g.CanReach(e.To, join, cfg.SkipContinue) {
				out = append(out, Violation{
					Message: fmt.Sprintf("branch %s of fork %d never reaches its join", v.g.Describe(e.To), id),
					Node:    e.To,
					Edge:    e.ID,
				})
			}
		}
		if !dominates(v.g.Dominators(), fork, join) {
			out = append(out, Violation{
				Message: fmt.Sprintf("fork %d does not dominate its join", id),
				Node:    fork,
				Edge:    -1,
			})
		}
	}
	for id, j := range joins {
		if len(forks[id]) == 0 {
			out = append(out, Violation{
				Message: fmt.Sprintf("join %d has no matching fork", id),
				Node:    j[0],
				Edge:    -1,
			})
		}
	}
	return out
}

func dominates(idom map[cfg.NodeID]cfg.NodeID, a, b cfg.NodeID) bool {
	seen := map[cfg.NodeID]bool{}
	for cur := b; cur != cfg.NoNode && !seen[cur]; cur = idom[cur] {
		if cur == a {
			return true
		}
		seen[cur] = true
		if idom[cur] == cur {
			return cur == a
		}
	}
	return false
}

// mergeReachability verifies that every non-jumping branch of a choice
// reaches a common merge node. Branches that jump back into a recursion
// are exempt: their continuation is the recursion head.
func (v *verifier) mergeReachability() []Violation {
	var out []Violation
	for _, n := range v.g.Nodes() {
		if n.Kind != cfg.KindBranch {
			continue
		}
		var reaches []map[cfg.NodeID]bool
		for _, e := range v.g.Out(n.ID) {
			if e.Type == cfg.EdgeContinue {
				continue
			}
			if _, ok := v.g.Node(e.To).Action.(*cfg.UpdateAction); ok {
				continue
			}
			reaches = append(reaches, v.g.ReachableFrom(e.To, cfg.SkipContinue))
		}
		if len(reaches) == 0 {
			continue
		}
		common := map[cfg.NodeID]bool{}
		for id := range reaches[0] {
			if v.g.Node(id).Kind != cfg.KindMerge {
				continue
			}
			shared := true
			for _, r := range reaches[1:] {
				if !r[id] {
					shared = false
					break
				}
			}
			if shared {
				common[id] = true
			}
		}
		if len(common) == 0 {
			out = append(out, Violation{
				Message: fmt.Sprintf("branches of %s do not converge on a merge node", v.g.Describe(n.ID)),
				Node:    n.ID,
				Edge:    -1,
			})
		}
	}
	return out
}
