package lts

import (
	"sort"
	"strconv"
	"strings"
)

// Traces enumerates the observable trace prefixes of the system up to the
// given number of events, as rendered label sequences. The set is prefix
// closed, which makes two systems comparable by plain set equality.
func Traces(l *LTS, depth int) []string {
	set := map[string]bool{"": true}
	type frame struct {
		state int
		trace string
	}
	// states revisited at the same depth contribute nothing new
	seen := map[string]bool{}
	stack := []frame{{state: l.Initial}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		depthSoFar := 0
		if f.trace != "" {
			depthSoFar = strings.Count(f.trace, "\n") + 1
		}
		if depthSoFar >= depth {
			continue
		}
		enabled, _ := l.WeakEnabled(f.state)
		for _, label := range SortedLabels(enabled) {
			next := label.String()
			if f.trace != "" {
				next = f.trace + "\n" + next
			}
			set[next] = true
			for _, target := range enabled[label] {
				key := next + "|" + strconv.Itoa(target)
				if seen[key] {
					continue
				}
				seen[key] = true
				stack = append(stack, frame{state: target, trace: next})
			}
		}
	}
	out := make([]string, 0, len(set))
	for trace := range set {
		if trace != "" {
			out = append(out, trace)
		}
	}
	sort.Strings(out)
	return out
}

// TraceEquivalenceResult compares bounded trace sets of the global system
// and the composition.
type TraceEquivalenceResult struct {
	Equivalent   bool     `json:"equivalent" yaml:"equivalent"`
	Depth        int      `json:"depth" yaml:"depth"`
	OnlyGlobal   []string `json:"onlyGlobal,omitempty" yaml:"onlyGlobal,omitempty"`
	OnlyComposed []string `json:"onlyComposed,omitempty" yaml:"onlyComposed,omitempty"`
}

// TraceEquivalence enumerates both systems' trace prefixes up to depth and
// reports the symmetric difference. For protocols with updatable
// recursions the bounded enumeration underapproximates; bisimulation is
// the authoritative check there.
func TraceEquivalence(global, composed *LTS, depth int) TraceEquivalenceResult {
	result := TraceEquivalenceResult{Depth: depth}
	gTraces := Traces(global, depth)
	cTraces := Traces(composed, depth)
	inComposed := map[string]bool{}
	for _, t := range cTraces {
		inComposed[t] = true
	}
	inGlobal := map[string]bool{}
	for _, t := range gTraces {
		inGlobal[t] = true
	}
	for _, t := range gTraces {
		if !inComposed[t] {
			result.OnlyGlobal = append(result.OnlyGlobal, strings.ReplaceAll(t, "\n", " · "))
		}
	}
	for _, t := range cTraces {
		if !inGlobal[t] {
			result.OnlyComposed = append(result.OnlyComposed, strings.ReplaceAll(t, "\n", " · "))
		}
	}
	result.Equivalent = len(result.OnlyGlobal) == 0 && len(result.OnlyComposed) == 0
	return result
}
