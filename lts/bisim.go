package lts

import (
	"encoding/binary"
	"fmt"

	"github.com/minio/highwayhash"
)

// Verdict is the outcome of a bisimulation run.
type Verdict string

const (
	Bisimilar    Verdict = "bisimilar"
	NotBisimilar Verdict = "not-bisimilar"
	Undecided    Verdict = "undecided"
)

// DivergencePoint pins the state pair and the action one side could not
// answer.
type DivergencePoint struct {
	GlobalState     int    `json:"globalState" yaml:"globalState"`
	ComposedState   int    `json:"composedState" yaml:"composedState"`
	UnmatchedAction string `json:"unmatchedAction" yaml:"unmatchedAction"`
	Message         string `json:"message" yaml:"message"`
}

// Counterexample witnesses a failed equivalence: the observable prefix
// both systems agreed on, and the step where they diverged.
type Counterexample struct {
	GlobalTrace   []string        `json:"globalTrace" yaml:"globalTrace"`
	ComposedTrace []string        `json:"composedTrace" yaml:"composedTrace"`
	Divergence    DivergencePoint `json:"divergencePoint" yaml:"divergencePoint"`
}

// BisimulationResult reports the verdict, the witness when the systems
// differ, and the size of the explored product.
type BisimulationResult struct {
	Verdict        Verdict         `json:"verdict" yaml:"verdict"`
	Counterexample *Counterexample `json:"counterexample,omitempty" yaml:"counterexample,omitempty"`
	ExploredPairs  int             `json:"exploredPairs" yaml:"exploredPairs"`
}

var visitedKey = []byte("fedcba9876543210FEDCBA9876543210")

// WeakBisimilar decides weak bisimulation between two systems by on-the-fly
// exploration of the pair space: every observable weak step of one side
// must be answered by the other, termination included. The worklist is
// seeded with the initial pair; confirmed pairs accumulate in a visited
// table keyed by a 64-bit highway hash of the pair. Exploration beyond
// maxPairs yields Undecided rather than an unbounded run.
func WeakBisimilar(global, composed *LTS, maxPairs int) BisimulationResult {
	type pair struct {
		g, c int
	}
	hash := func(p pair) uint64 {
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[:8], uint64(p.g))
		binary.LittleEndian.PutUint64(buf[8:], uint64(p.c))
		sum, err := highwayhash.Sum64(buf[:], visitedKey)
		if err != nil {
			// the key is fixed and valid; Sum64 cannot fail on it
			panic(err)
		}
		return sum
	}

	start := pair{g: global.Initial, c: composed.Initial}
	visited := map[uint64]bool{hash(start): true}
	parents := map[pair]struct {
		prev  pair
		label string
	}{}
	queue := []pair{start}
	explored := 0

	traceTo := func(p pair) []string {
		var rev []string
		for p != start {
			step, ok := parents[p]
			if !ok {
				break
			}
			rev = append(rev, step.label)
			p = step.prev
		}
		out := make([]string, 0, len(rev))
		for i := len(rev) - 1; i >= 0; i-- {
			out = append(out, rev[i])
		}
		return out
	}
	fail := func(p pair, action, message string) BisimulationResult {
		trace := traceTo(p)
		return BisimulationResult{
			Verdict:       NotBisimilar,
			ExploredPairs: explored,
			Counterexample: &Counterexample{
				GlobalTrace:   trace,
				ComposedTrace: trace,
				Divergence: DivergencePoint{
					GlobalState:     p.g,
					ComposedState:   p.c,
					UnmatchedAction: action,
					Message:         message,
				},
			},
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		explored++
		if explored > maxPairs {
			return BisimulationResult{Verdict: Undecided, ExploredPairs: explored}
		}

		gEnabled, gEnds := global.WeakEnabled(cur.g)
		cEnabled, cEnds := composed.WeakEnabled(cur.c)

		if gEnds != cEnds {
			side := "global protocol"
			if cEnds {
				side = "composition"
			}
			return fail(cur, "end", fmt.Sprintf("only the %s can terminate here", side))
		}
		for _, label := range SortedLabels(gEnabled) {
			if len(cEnabled[label]) == 0 {
				return fail(cur, label.String(), fmt.Sprintf("the composition cannot answer %s", label))
			}
		}
		for _, label := range SortedLabels(cEnabled) {
			if len(gEnabled[label]) == 0 {
				return fail(cur, label.String(), fmt.Sprintf("the global protocol cannot answer %s", label))
			}
		}
		for _, label := range SortedLabels(gEnabled) {
			for _, gNext := range gEnabled[label] {
				for _, cNext := range cEnabled[label] {
					next := pair{g: gNext, c: cNext}
					h := hash(next)
					if visited[h] {
						continue
					}
					visited[h] = true
					parents[next] = struct {
						prev  pair
						label string
					}{prev: cur, label: label.String()}
					queue = append(queue, next)
				}
			}
		}
	}
	return BisimulationResult{Verdict: Bisimilar, ExploredPairs: explored}
}
