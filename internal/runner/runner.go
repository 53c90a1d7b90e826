// Package runner executes run definitions: every listed experiment against
// every listed model, n_iterations times, writing each result table to a sink.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/haasonsaas/llmexperiment/internal/config"
	"github.com/haasonsaas/llmexperiment/internal/experiments"
	"github.com/haasonsaas/llmexperiment/internal/llm"
	"github.com/haasonsaas/llmexperiment/internal/llm/providers"
	"github.com/haasonsaas/llmexperiment/internal/observability"
	"github.com/haasonsaas/llmexperiment/internal/parsers"
	"github.com/haasonsaas/llmexperiment/internal/results"
)

// ErrNoSink is returned when a runner has nowhere to write results.
var ErrNoSink = errors.New("runner: no results sink configured")

// EndpointFactory builds the endpoint a model definition talks to.
type EndpointFactory func(ctx context.Context, cfg providers.Config) (llm.Endpoint, error)

// Runner executes run definitions from a catalog.
type Runner struct {
	Catalog *config.Catalog
	Sink    results.Sink
	Parsers *parsers.Registry
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Clock stamps result files. Defaults to time.Now.
	Clock func() time.Time
	// NewEndpoint defaults to providers.New.
	NewEndpoint EndpointFactory
	// Progress receives one line per iteration. When nil, progress goes to
	// stderr if stderr is a terminal.
	Progress io.Writer
}

// Summary counts what a run produced.
type Summary struct {
	Runs        int
	Tables      int
	Rows        int
	AbsentCells int
	// Skipped counts experiment and model entries that could not be resolved.
	Skipped int
}

func (s *Summary) add(other Summary) {
	s.Runs += other.Runs
	s.Tables += other.Tables
	s.Rows += other.Rows
	s.AbsentCells += other.AbsentCells
	s.Skipped += other.Skipped
}

func (s Summary) String() string {
	return fmt.Sprintf("%d run(s), %d table(s), %d row(s), %d absent cell(s), %d skipped", s.Runs, s.Tables, s.Rows, s.AbsentCells, s.Skipped)
}

// RunAll executes every run in the catalog in declared order.
func (r *Runner) RunAll(ctx context.Context) (Summary, error) {
	var total Summary
	if r.Catalog == nil {
		return total, nil
	}
	for _, def := range r.Catalog.Runs {
		s, err := r.Run(ctx, def)
		total.add(s)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Run executes one run definition. Unknown experiment or model ids are
// logged and skipped. Sink failures and cancellation stop the run.
func (r *Runner) Run(ctx context.Context, def config.RunDefinition) (Summary, error) {
	summary := Summary{Runs: 1}
	if r.Sink == nil {
		return summary, ErrNoSink
	}
	if r.Catalog == nil {
		return summary, errors.New("runner: no catalog")
	}

	ctx = observability.WithRunID(ctx, def.ID)
	ctx, span := r.Tracer.TraceRun(ctx, def.ID)
	defer span.End()

	bar := strings.Repeat("=", 40)
	r.Logger.Info(ctx, fmt.Sprintf("%s %s %s", bar, def, bar))
	start := time.Now()

	for _, entry := range def.Experiments {
		spec, ok := r.Catalog.Experiment(entry.ExperimentID)
		if !ok {
			r.Logger.Warn(ctx, "experiment not found", "experiment_id", entry.ExperimentID)
			summary.Skipped++
			continue
		}
		exp, err := experiments.New(spec, experiments.Options{
			Parsers: r.Parsers,
			Logger:  r.Logger,
			Metrics: r.Metrics,
			Tracer:  r.Tracer,
		})
		if err != nil {
			r.Logger.Warn(ctx, "experiment skipped", "experiment_id", entry.ExperimentID, "error", err)
			summary.Skipped++
			continue
		}

		expCtx := observability.WithExperimentID(ctx, exp.ID())
		for _, m := range entry.Models {
			if err := r.runModel(expCtx, def, exp, m, &summary); err != nil {
				r.Tracer.RecordError(span, err)
				return summary, err
			}
		}
	}

	r.Logger.Info(ctx, "run finished",
		"tables", summary.Tables,
		"rows", summary.Rows,
		"absent_cells", summary.AbsentCells,
		"skipped", summary.Skipped,
		"duration", time.Since(start).String(),
	)
	return summary, nil
}

func (r *Runner) runModel(ctx context.Context, def config.RunDefinition, exp *experiments.Experiment, entry config.RunModel, summary *Summary) error {
	model, ok := r.Catalog.Model(entry.ModelID)
	if !ok {
		r.Logger.Warn(ctx, "model not found", "model_id", entry.ModelID)
		summary.Skipped++
		return nil
	}
	agent, err := r.agent(ctx, model)
	if err != nil {
		r.Logger.Warn(ctx, "model skipped", "model_id", entry.ModelID, "error", err)
		summary.Skipped++
		return nil
	}

	iterations := entry.Iterations()
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.progress(fmt.Sprintf("%s -> %s -> Iteration %d/%d", exp, agent, i+1, iterations))

		table := exp.Run(ctx, agent, r.Catalog.Participants)
		target := results.Target{
			RunID:        def.ID,
			ExperimentID: exp.ID(),
			ModelID:      model.ID,
			Iteration:    i + 1,
			Timestamp:    r.now(),
		}
		if err := r.Sink.Write(ctx, target, table); err != nil {
			return fmt.Errorf("write results for %s/%s/%s: %w", def.ID, exp.ID(), model.ID, err)
		}
		r.Metrics.RowsWrittenTo(r.Sink.Name(), table.Len())

		summary.Tables++
		summary.Rows += table.Len()
		summary.AbsentCells += table.AbsentCells()
		r.Logger.Info(ctx, "iteration written",
			"model_id", model.ID,
			"iteration", i+1,
			"rows", table.Len(),
			"absent_cells", table.AbsentCells(),
		)
	}
	r.progressDone()
	return nil
}

func (r *Runner) agent(ctx context.Context, model config.ModelDefinition) (*llm.Agent, error) {
	factory := r.NewEndpoint
	if factory == nil {
		factory = providers.New
	}
	cfg := model.ProviderConfig()
	endpoint, err := factory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if ignored := providers.IgnoredParams(cfg.Provider, model.Params); len(ignored) > 0 {
		r.Logger.Warn(ctx, "generation parameters not sent to provider",
			"model_id", model.ID,
			"provider", cfg.Provider,
			"params", strings.Join(ignored, ","),
		)
	}
	return llm.NewAgent(model.AgentSpec(), endpoint,
		llm.WithLogger(r.Logger),
		llm.WithMetrics(r.Metrics),
		llm.WithTracer(r.Tracer),
	)
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Runner) progressWriter() (io.Writer, bool) {
	if r.Progress != nil {
		return r.Progress, false
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return os.Stderr, true
	}
	return nil, false
}

// progress prints line, rewriting the current line on a terminal.
func (r *Runner) progress(line string) {
	w, tty := r.progressWriter()
	switch {
	case w == nil:
	case tty:
		fmt.Fprintf(w, "\r\033[K%s", line)
	default:
		fmt.Fprintln(w, line)
	}
}

func (r *Runner) progressDone() {
	if w, tty := r.progressWriter(); tty {
		fmt.Fprintln(w)
	}
}
