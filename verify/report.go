package verify

import (
	"fmt"

	"github.com/onemanifold/choreo/cfg"
)

// CheckID names one verification check.
type CheckID string

const (
	CheckConnectedness       CheckID = "connectedness"
	CheckChoiceDeterminism   CheckID = "choice-determinism"
	CheckChoiceMergeability  CheckID = "choice-mergeability"
	CheckDeadlock            CheckID = "deadlock"
	CheckLiveness            CheckID = "liveness"
	CheckParallelDeadlock    CheckID = "parallel-deadlock"
	CheckRaceConditions      CheckID = "race-conditions"
	CheckNestedRecursion     CheckID = "nested-recursion"
	CheckRecursionInParallel CheckID = "recursion-in-parallel"
	CheckForkJoinMatch       CheckID = "fork-join-match"
	CheckMulticast           CheckID = "multicast"
	CheckSelfCommunication   CheckID = "self-communication"
	CheckEmptyBranch         CheckID = "empty-branch"
	CheckMergeReachability   CheckID = "merge-reachability"
)

// Band is the priority band a check belongs to. P0 checks gate projection.
type Band int

const (
	P0 Band = iota
	P1
	P2
	P3
)

func (b Band) String() string { return fmt.Sprintf("P%d", int(b)) }

// Severity distinguishes hard errors from stylistic warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one finding of a check, pointing at the offending node or
// edge when one exists.
type Violation struct {
	Check    CheckID    `json:"check" yaml:"check"`
	Severity Severity   `json:"severity" yaml:"severity"`
	Message  string     `json:"message" yaml:"message"`
	Node     cfg.NodeID `json:"node,omitempty" yaml:"node,omitempty"`
	Edge     cfg.EdgeID `json:"edge,omitempty" yaml:"edge,omitempty"`
}

// Result is the outcome of a single check.
type Result struct {
	Check      CheckID     `json:"check" yaml:"check"`
	Band       Band        `json:"band" yaml:"band"`
	Pass       bool        `json:"pass" yaml:"pass"`
	Violations []Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// Report aggregates every check over one graph. Checks never short-circuit:
// a report always contains one result per check, in a fixed order.
type Report struct {
	Protocol string   `json:"protocol" yaml:"protocol"`
	Results  []Result `json:"results" yaml:"results"`
}

// Result returns the result for the given check, or nil when absent.
func (r *Report) Result(id CheckID) *Result {
	for i := range r.Results {
		if r.Results[i].Check == id {
			return &r.Results[i]
		}
	}
	return nil
}

// Passed reports whether the given check passed.
func (r *Report) Passed(id CheckID) bool {
	res := r.Result(id)
	return res != nil && res.Pass
}

// HasErrors reports whether any check produced an error-severity violation.
func (r *Report) HasErrors() bool {
	for _, res := range r.Results {
		for _, v := range res.Violations {
			if v.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}

// HasWarnings reports whether any check produced a warning.
func (r *Report) HasWarnings() bool {
	for _, res := range r.Results {
		for _, v := range res.Violations {
			if v.Severity == SeverityWarning {
				return true
			}
		}
	}
	return false
}

// ProjectionReady reports whether every P0 check passed; projection is
// undefined otherwise.
func (r *Report) ProjectionReady() bool {
	for _, res := range r.Results {
		if res.Band == P0 && !res.Pass {
			return false
		}
	}
	return true
}

// Errors flattens every error-severity violation across checks.
func (r *Report) Errors() []Violation {
	var out []Violation
	for _, res := range r.Results {
		for _, v := range res.Violations {
			if v.Severity == SeverityError {
				out = append(out, v)
			}
		}
	}
	return out
}
