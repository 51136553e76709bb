package compose

import (
	"fmt"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/verify"
)

// UpdateCheck is the verdict for one updatable recursion label.
type UpdateCheck struct {
	Label  string     `json:"label" yaml:"label"`
	Safe   bool       `json:"safe" yaml:"safe"`
	Reason string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	Node   cfg.NodeID `json:"node,omitempty" yaml:"node,omitempty"`
}

// SafeUpdateResult aggregates the verdicts over every updatable recursion
// of a graph.
type SafeUpdateResult struct {
	Safe   bool          `json:"safe" yaml:"safe"`
	Checks []UpdateCheck `json:"checks" yaml:"checks"`
}

// Unsafe lists the failing checks.
func (r *SafeUpdateResult) Unsafe() []UpdateCheck {
	var out []UpdateCheck
	for _, c := range r.Checks {
		if !c.Safe {
			out = append(out, c)
		}
	}
	return out
}

// CheckSafeUpdate decides, for every updatable recursion in the graph,
// whether its one-step unfolding is well formed: the recursion body and
// the update body must combine on disjoint channels and the combination
// must be connected, deadlock free and race free. Safety of the single
// unfolding extends inductively to every iteration.
func CheckSafeUpdate(g *cfg.Graph) *SafeUpdateResult {
	result := &SafeUpdateResult{Safe: true}
	for _, label := range g.UpdateLabels() {
		check := checkLabel(g, label)
		if !check.Safe {
			result.Safe = false
		}
		result.Checks = append(result.Checks, check)
	}
	return result
}

func checkLabel(g *cfg.Graph, label string) UpdateCheck {
	head, update := cfg.NoNode, cfg.NoNode
	for _, n := range g.Nodes() {
		switch {
		case n.Kind == cfg.KindRecursive && n.Label == label:
			head = n.ID
		case n.Kind == cfg.KindAction:
			if a, ok := n.Action.(*cfg.UpdateAction); ok && a.Label == label {
				update = n.ID
			}
		}
	}
	if head == cfg.NoNode {
		return UpdateCheck{Label: label, Reason: fmt.Sprintf("no recursion head %q in the graph", label), Node: cfg.NoNode}
	}
	if update == cfg.NoNode {
		return UpdateCheck{Label: label, Reason: fmt.Sprintf("no update action for %q in the graph", label), Node: head}
	}
	updateBody, ok := g.Update(label)
	if !ok {
		return UpdateCheck{Label: label, Reason: fmt.Sprintf("no update body attached under %q", label), Node: update}
	}

	body, err := g.Extract(g.Protocol+"."+label+".body", head, map[cfg.NodeID]bool{update: true})
	if err != nil {
		return UpdateCheck{Label: label, Reason: fmt.Sprintf("recursion body extraction failed: %v", err), Node: head}
	}

	unfolding := Combine(body, updateBody)
	if !unfolding.Success {
		reason := unfolding.Err.Message
		if len(unfolding.Err.Conflicts) > 0 {
			reason = fmt.Sprintf("update channels overlap the recursion body: %v", unfolding.Err.Conflicts)
		}
		return UpdateCheck{Label: label, Reason: reason, Node: update}
	}

	report := verify.Run(unfolding.Combined)
	for _, id := range []verify.CheckID{
		verify.CheckConnectedness,
		verify.CheckDeadlock,
		verify.CheckParallelDeadlock,
		verify.CheckRaceConditions,
	} {
		res := report.Result(id)
		if res == nil || res.Pass {
			continue
		}
		return UpdateCheck{
			Label:  label,
			Reason: fmt.Sprintf("one-step unfolding fails %s: %s", id, res.Violations[0].Message),
			Node:   update,
		}
	}
	return UpdateCheck{Label: label, Safe: true, Node: update}
}
