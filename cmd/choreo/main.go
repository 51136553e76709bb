// Command choreo analyzes global protocol sources: it verifies them,
// projects per-role state machines, checks updatable recursions, and
// decides behavioral equivalence of the projection.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/onemanifold/choreo"
	"github.com/onemanifold/choreo/lts"
	"github.com/onemanifold/choreo/protocol"
	"github.com/onemanifold/choreo/verify"
	"github.com/onemanifold/choreo/workspace"
)

type cli struct {
	Verbose bool   `help:"Enable debug logging." short:"v"`
	Config  string `help:"YAML file with analysis bounds." type:"path"`

	Verify      verifyCmd      `cmd:"" help:"Run the verification battery over protocol sources."`
	Project     projectCmd     `cmd:"" help:"Project a protocol to per-role state machines."`
	Graph       graphCmd       `cmd:"" help:"Emit a protocol's control-flow graph as DOT or JSON."`
	CheckUpdate checkUpdateCmd `cmd:"" name:"check-update" help:"Check the safety of updatable recursions."`
	Equiv       equivCmd       `cmd:"" help:"Decide equivalence between a protocol and its projection."`
}

// bounds is the YAML shape of the --config file.
type bounds struct {
	TraceDepth  int `yaml:"traceDepth"`
	PairCap     int `yaml:"pairCap"`
	StateCap    int `yaml:"stateCap"`
	BufferBound int `yaml:"bufferBound"`
}

type app struct {
	pipeline *choreo.Pipeline
	ws       *workspace.Workspace
	logger   hclog.Logger
	runID    string
}

func newApp(c *cli) (*app, error) {
	level := hclog.Info
	if c.Verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "choreo", Level: level})

	options := []choreo.Option{choreo.WithLogger(logger)}
	if c.Config != "" {
		data, err := os.ReadFile(c.Config)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var b bounds
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		options = append(options,
			choreo.WithTraceDepth(b.TraceDepth),
			choreo.WithPairCap(b.PairCap),
			choreo.WithStateCap(b.StateCap),
			choreo.WithBufferBound(b.BufferBound),
		)
	}
	return &app{
		pipeline: choreo.New(options...),
		ws:       workspace.New(),
		logger:   logger,
		runID:    uuid.NewString(),
	}, nil
}

func (a *app) analyzeSources(ctx context.Context, root string) (map[string]*choreo.Analysis, error) {
	sources, err := a.ws.Discover(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no protocol sources under %q", root)
	}
	out := map[string]*choreo.Analysis{}
	for _, source := range sources {
		text, err := a.ws.Load(ctx, source)
		if err != nil {
			return nil, err
		}
		analysis, err := a.pipeline.Analyze(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		out[source] = analysis
	}
	return out, nil
}

type verifyCmd struct {
	Path string `arg:"" help:"Protocol source file or directory."`
	JSON bool   `help:"Emit the reports as JSON."`
}

func (c *verifyCmd) Run(a *app) error {
	ctx := context.Background()
	analyses, err := a.analyzeSources(ctx, c.Path)
	if err != nil {
		return err
	}
	failed := false
	for _, source := range sortedKeys(analyses) {
		analysis := analyses[source]
		if c.JSON {
			data, err := json.MarshalIndent(struct {
				RunID  string         `json:"runId"`
				Source string         `json:"source"`
				Report *verify.Report `json:"report"`
			}{RunID: a.runID, Source: source, Report: analysis.Report}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			renderReport(source, analysis.Report)
		}
		if analysis.Report.HasErrors() {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("verification failed")
	}
	return nil
}

func renderReport(source string, report *verify.Report) {
	fmt.Printf("%s — protocol %q\n", source, report.Protocol)
	for _, result := range report.Results {
		status := "ok"
		if !result.Pass {
			status = "FAIL"
		}
		fmt.Printf("  [%s] %-22s %s\n", result.Band, result.Check, status)
		for _, violation := range result.Violations {
			fmt.Printf("        %s: %s\n", violation.Severity, violation.Message)
		}
	}
}

type projectCmd struct {
	Path string `arg:"" help:"Protocol source file."`
	Role string `help:"Project a single role instead of all of them."`
	Out  string `help:"Directory to write machine artifacts into." default:"."`
	DOT  bool   `help:"Write DOT renderings next to the JSON."`
}

func (c *projectCmd) Run(a *app) error {
	ctx := context.Background()
	analyses, err := a.analyzeSources(ctx, c.Path)
	if err != nil {
		return err
	}
	for _, source := range sortedKeys(analyses) {
		analysis := analyses[source]
		if len(analysis.ProjectionErrors) > 0 {
			for _, perr := range analysis.ProjectionErrors {
				a.logger.Error("projection failed", "source", source, "role", perr.Role, "error", perr.Message)
			}
			return fmt.Errorf("projection failed for %s", source)
		}
		roles := analysis.Graph.Roles
		if c.Role != "" {
			roles = []protocol.Role{protocol.Role(c.Role)}
		}
		for _, role := range roles {
			machine, ok := analysis.Machines[role]
			if !ok {
				return fmt.Errorf("role %q is not part of %s", c.Role, source)
			}
			data, err := json.MarshalIndent(machine, "", "  ")
			if err != nil {
				return err
			}
			target := fmt.Sprintf("%s/%s_%s.json", strings.TrimSuffix(c.Out, "/"), analysis.Protocol.Name, role)
			if err := a.ws.Store(ctx, target, data); err != nil {
				return err
			}
			a.logger.Info("wrote machine", "role", role, "target", target, "run", a.runID)
			if c.DOT {
				dotTarget := strings.TrimSuffix(target, ".json") + ".dot"
				if err := a.ws.Store(ctx, dotTarget, []byte(machine.DOT())); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type graphCmd struct {
	Path   string `arg:"" help:"Protocol source file."`
	Format string `help:"Output format." enum:"dot,json" default:"dot"`
}

func (c *graphCmd) Run(a *app) error {
	ctx := context.Background()
	analyses, err := a.analyzeSources(ctx, c.Path)
	if err != nil {
		return err
	}
	for _, source := range sortedKeys(analyses) {
		g := analyses[source].Graph
		switch c.Format {
		case "json":
			data, err := json.MarshalIndent(g, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		default:
			fmt.Print(g.DOT())
		}
	}
	return nil
}

type checkUpdateCmd struct {
	Path string `arg:"" help:"Protocol source file or directory."`
}

func (c *checkUpdateCmd) Run(a *app) error {
	ctx := context.Background()
	analyses, err := a.analyzeSources(ctx, c.Path)
	if err != nil {
		return err
	}
	unsafe := false
	for _, source := range sortedKeys(analyses) {
		analysis := analyses[source]
		if analysis.SafeUpdate == nil {
			fmt.Printf("%s: no updatable recursions\n", source)
			continue
		}
		for _, check := range analysis.SafeUpdate.Checks {
			if check.Safe {
				fmt.Printf("%s: update %q is safe\n", source, check.Label)
				continue
			}
			unsafe = true
			fmt.Printf("%s: update %q is UNSAFE: %s\n", source, check.Label, check.Reason)
		}
	}
	if unsafe {
		return fmt.Errorf("unsafe updates found")
	}
	return nil
}

type equivCmd struct {
	Path  string `arg:"" help:"Protocol source file."`
	Depth int    `help:"Trace depth for the bounded comparison." default:"2"`
}

func (c *equivCmd) Run(a *app) error {
	ctx := context.Background()
	analyses, err := a.analyzeSources(ctx, c.Path)
	if err != nil {
		return err
	}
	for _, source := range sortedKeys(analyses) {
		analysis := analyses[source]
		if analysis.Bisimulation == nil {
			return fmt.Errorf("%s: projection failed, nothing to compare", source)
		}
		traces := a.pipeline.VerifyTraceEquivalence(analysis.Graph, analysis.Machines, c.Depth)
		fmt.Printf("%s: bisimulation %s, traces(depth=%d) equivalent=%v\n",
			source, analysis.Bisimulation.Verdict, c.Depth, traces.Equivalent)
		switch analysis.Bisimulation.Verdict {
		case lts.NotBisimilar:
			ce := analysis.Bisimulation.Counterexample
			fmt.Printf("  diverges after %v at action %s: %s\n",
				ce.GlobalTrace, ce.Divergence.UnmatchedAction, ce.Divergence.Message)
			return fmt.Errorf("not bisimilar")
		case lts.Undecided:
			return fmt.Errorf("undecided within the pair budget")
		}
	}
	return nil
}

func sortedKeys(m map[string]*choreo.Analysis) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("choreo"),
		kong.Description("Static verifier and projection engine for global protocols."),
		kong.UsageOnError(),
	)
	a, err := newApp(&c)
	ctx.FatalIfErrorf(err)
	err = ctx.Run(a)
	if err != nil {
		// exit code 2 distinguishes an undecided equivalence from failure
		if strings.Contains(err.Error(), "undecided") {
			a.logger.Warn(err.Error())
			os.Exit(2)
		}
	}
	ctx.FatalIfErrorf(err)
}
