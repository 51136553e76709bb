// Package choreo verifies global protocols and projects them to per-role
// communicating finite state machines. The pipeline is feed-forward:
// parse, build the control-flow graph, verify, project, and optionally
// decide behavioral equivalence and liveness of the projection. Every
// stage consumes the previous stage's immutable output, so concurrent
// analyses share no state.
package choreo

import (
	"github.com/hashicorp/go-hclog"

	"github.com/onemanifold/choreo/cfg"
	"github.com/onemanifold/choreo/cfsm"
	"github.com/onemanifold/choreo/compose"
	"github.com/onemanifold/choreo/lts"
	"github.com/onemanifold/choreo/projection"
	"github.com/onemanifold/choreo/protocol"
	"github.com/onemanifold/choreo/verify"
)

const (
	// DefaultTraceDepth bounds trace enumeration during equivalence runs.
	DefaultTraceDepth = 2
	// DefaultPairCap bounds the bisimulation pair space; beyond it the
	// verdict is Undecided rather than an unbounded run.
	DefaultPairCap = 100000
	// DefaultStateCap bounds product and simulation state spaces.
	DefaultStateCap = 100000
	// DefaultBufferBound is the FIFO queue length the liveness simulation
	// treats as unbounded growth.
	DefaultBufferBound = 8
)

// Pipeline runs the analysis stages under one set of bounds. Build one
// with New, which applies the default bounds and a silent logger; options
// adjust the caps and attach a logger.
type Pipeline struct {
	traceDepth  int
	pairCap     int
	stateCap    int
	bufferBound int
	logger      hclog.Logger
}

// Option adjusts a Pipeline.
type Option func(*Pipeline)

// WithTraceDepth sets the bounded-trace enumeration depth.
func WithTraceDepth(depth int) Option {
	return func(p *Pipeline) {
		if depth > 0 {
			p.traceDepth = depth
		}
	}
}

// WithPairCap sets the bisimulation pair budget.
func WithPairCap(limit int) Option {
	return func(p *Pipeline) {
		if limit > 0 {
			p.pairCap = limit
		}
	}
}

// WithStateCap sets the product exploration budget.
func WithStateCap(limit int) Option {
	return func(p *Pipeline) {
		if limit > 0 {
			p.stateCap = limit
		}
	}
}

// WithBufferBound sets the FIFO queue length treated as unbounded.
func WithBufferBound(bound int) Option {
	return func(p *Pipeline) {
		if bound > 0 {
			p.bufferBound = bound
		}
	}
}

// WithLogger attaches a logger; stages report at Debug level.
func WithLogger(logger hclog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns a pipeline with the default bounds.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		traceDepth:  DefaultTraceDepth,
		pairCap:     DefaultPairCap,
		stateCap:    DefaultStateCap,
		bufferBound: DefaultBufferBound,
		logger:      hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildCFG lowers a parsed protocol to its control-flow graph.
func (p *Pipeline) BuildCFG(proto *protocol.Protocol) (*cfg.Graph, error) {
	g, err := cfg.Build(proto)
	if err != nil {
		p.logger.Debug("build failed", "protocol", proto.Name, "error", err)
		return nil, err
	}
	p.logger.Debug("built graph", "protocol", proto.Name, "nodes", g.NodeCount(), "edges", len(g.Edges()))
	return g, nil
}

// Verify runs the full check battery over a graph.
func (p *Pipeline) Verify(g *cfg.Graph) *verify.Report {
	report := verify.Run(g)
	p.logger.Debug("verified graph", "protocol", g.Protocol, "errors", report.HasErrors(), "warnings", report.HasWarnings())
	return report
}

// Project derives one role's machine.
func (p *Pipeline) Project(g *cfg.Graph, role protocol.Role) (*cfsm.Machine, error) {
	return projection.Project(g, role)
}

// ProjectAll derives every role's machine.
func (p *Pipeline) ProjectAll(g *cfg.Graph) *projection.ProjectAllResult {
	result := projection.ProjectAll(g)
	p.logger.Debug("projected graph", "protocol", g.Protocol, "machines", len(result.Machines), "failures", len(result.Errors))
	return result
}

// Combine composes two graphs with the channel-disjointness check.
func (p *Pipeline) Combine(g1, g2 *cfg.Graph) compose.Result {
	return compose.Combine(g1, g2)
}

// CheckSafeUpdate decides the one-step unfolding of every updatable
// recursion in the graph.
func (p *Pipeline) CheckSafeUpdate(g *cfg.Graph) *compose.SafeUpdateResult {
	return compose.CheckSafeUpdate(g)
}

// Bisimilar decides weak bisimulation between the graph's global behavior
// and the composition of the projected machines.
func (p *Pipeline) Bisimilar(g *cfg.Graph, machines map[protocol.Role]*cfsm.Machine) lts.BisimulationResult {
	global := lts.FromCFG(g)
	comp := lts.Compose(g.Roles, machines, p.stateCap)
	if comp.Truncated {
		p.logger.Debug("composition truncated", "protocol", g.Protocol, "cap", p.stateCap)
		return lts.BisimulationResult{Verdict: lts.Undecided}
	}
	result := lts.WeakBisimilar(global, comp.LTS, p.pairCap)
	p.logger.Debug("bisimulation decided", "protocol", g.Protocol, "verdict", result.Verdict, "pairs", result.ExploredPairs)
	return result
}

// VerifyTraceEquivalence compares bounded trace sets of the global
// behavior and the composition.
func (p *Pipeline) VerifyTraceEquivalence(g *cfg.Graph, machines map[protocol.Role]*cfsm.Machine, depth int) lts.TraceEquivalenceResult {
	if depth <= 0 {
		depth = p.traceDepth
	}
	global := lts.FromCFG(g)
	comp := lts.Compose(g.Roles, machines, p.stateCap)
	return lts.TraceEquivalence(global, comp.LTS, depth)
}

// VerifyLiveness checks orphan freedom, stuck states and buffer growth
// over the projected machines.
func (p *Pipeline) VerifyLiveness(g *cfg.Graph, machines map[protocol.Role]*cfsm.Machine) lts.LivenessResult {
	return lts.CheckLiveness(g.Roles, machines, p.bufferBound, p.stateCap)
}

// Analysis is the aggregate outcome of a full pipeline run over one
// protocol source.
type Analysis struct {
	Protocol         *protocol.Protocol
	Graph            *cfg.Graph
	Report           *verify.Report
	Machines         map[protocol.Role]*cfsm.Machine
	ProjectionErrors []*projection.Error
	SafeUpdate       *compose.SafeUpdateResult
	Bisimulation     *lts.BisimulationResult
	TraceEquivalence *lts.TraceEquivalenceResult
	Liveness         *lts.LivenessResult
}

// Analyze runs the whole pipeline over protocol source text. Verification
// always completes; the behavioral stages run only when every role
// projected.
func (p *Pipeline) Analyze(source string) (*Analysis, error) {
	proto, err := protocol.Parse(source)
	if err != nil {
		return nil, err
	}
	g, err := p.BuildCFG(proto)
	if err != nil {
		return nil, err
	}
	analysis := &Analysis{Protocol: proto, Graph: g}
	analysis.Report = p.Verify(g)
	if len(g.UpdateLabels()) > 0 {
		analysis.SafeUpdate = p.CheckSafeUpdate(g)
	}
	projected := p.ProjectAll(g)
	analysis.Machines = projected.Machines
	analysis.ProjectionErrors = projected.Errors
	if len(projected.Errors) == 0 {
		bisim := p.Bisimilar(g, projected.Machines)
		analysis.Bisimulation = &bisim
		traces := p.VerifyTraceEquivalence(g, projected.Machines, 0)
		analysis.TraceEquivalence = &traces
		liveness := p.VerifyLiveness(g, projected.Machines)
		analysis.Liveness = &liveness
	}
	return analysis, nil
}

// The package-level entry points run on a shared default pipeline.

var defaultPipeline = New()

// BuildCFG lowers a parsed protocol with the default bounds.
func BuildCFG(proto *protocol.Protocol) (*cfg.Graph, error) { return defaultPipeline.BuildCFG(proto) }

// Verify runs the full check battery with the default bounds.
func Verify(g *cfg.Graph) *verify.Report { return defaultPipeline.Verify(g) }

// Project derives one role's machine with the default bounds.
func Project(g *cfg.Graph, role protocol.Role) (*cfsm.Machine, error) {
	return defaultPipeline.Project(g, role)
}

// ProjectAll derives every role's machine with the default bounds.
func ProjectAll(g *cfg.Graph) *projection.ProjectAllResult { return defaultPipeline.ProjectAll(g) }

// Combine composes two graphs with the default bounds.
func Combine(g1, g2 *cfg.Graph) compose.Result { return defaultPipeline.Combine(g1, g2) }

// CheckSafeUpdate decides every updatable recursion with the default
// bounds.
func CheckSafeUpdate(g *cfg.Graph) *compose.SafeUpdateResult {
	return defaultPipeline.CheckSafeUpdate(g)
}

// Bisimilar decides weak bisimulation with the default bounds.
func Bisimilar(g *cfg.Graph, machines map[protocol.Role]*cfsm.Machine) lts.BisimulationResult {
	return defaultPipeline.Bisimilar(g, machines)
}

// VerifyTraceEquivalence compares bounded traces with the default bounds.
func VerifyTraceEquivalence(g *cfg.Graph, machines map[protocol.Role]*cfsm.Machine, depth int) lts.TraceEquivalenceResult {
	return defaultPipeline.VerifyTraceEquivalence(g, machines, depth)
}

// VerifyLiveness checks the liveness sub-properties with the default
// bounds.
func VerifyLiveness(g *cfg.Graph, machines map[protocol.Role]*cfsm.Machine) lts.LivenessResult {
	return defaultPipeline.VerifyLiveness(g, machines)
}
