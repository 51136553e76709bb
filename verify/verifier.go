package verify

import (
	"github.com/onemanifold/choreo/cfg"
)

// Run executes every check against the graph and aggregates the report.
// Checks are independent; a failing check never suppresses a later one.
// Run is deterministic and idempotent for a fixed graph.
func Run(g *cfg.Graph) *Report {
	v := &verifier{g: g}
	report := &Report{Protocol: g.Protocol}
	checks := []struct {
		id   CheckID
		band Band
		run  func() []Violation
	}{
		{CheckConnectedness, P0, v.connectedness},
		{CheckChoiceDeterminism, P0, v.choiceDeterminism},
		{CheckChoiceMergeability, P0, v.choiceMergeability},
		{CheckDeadlock, P1, v.deadlock},
		{CheckLiveness, P1, v.liveness},
		{CheckParallelDeadlock, P1, v.parallelDeadlock},
		{CheckRaceConditions, P1, v.raceConditions},
		{CheckNestedRecursion, P1, v.nestedRecursion},
		{CheckRecursionInParallel, P1, v.recursionInParallel},
		{CheckForkJoinMatch, P1, v.forkJoinMatch},
		{CheckMulticast, P2, v.multicast},
		{CheckSelfCommunication, P2, v.selfCommunication},
		{CheckEmptyBranch, P2, v.emptyBranch},
		{CheckMergeReachability, P3, v.mergeReachability},
	}
	for _, check := range checks {
		violations := check.run()
		for i := range violations {
			violations[i].Check = check.id
			if violations[i].Severity == "" {
				violations[i].Severity = SeverityError
			}
		}
		report.Results = append(report.Results, Result{
			Check:      check.id,
			Band:       check.band,
			Pass:       len(violations) == 0,
			Violations: violations,
		})
	}
	return report
}

type verifier struct {
	g *cfg.Graph

	// lazily computed fork regions, shared by the parallel checks
	regions     []forkRegion
	regionsDone bool
}
