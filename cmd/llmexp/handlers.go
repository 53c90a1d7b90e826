package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/haasonsaas/llmexperiment/internal/config"
	"github.com/haasonsaas/llmexperiment/internal/llm/providers"
	"github.com/haasonsaas/llmexperiment/internal/observability"
	"github.com/haasonsaas/llmexperiment/internal/parsers"
	"github.com/haasonsaas/llmexperiment/internal/results"
	"github.com/haasonsaas/llmexperiment/internal/runner"
	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// =============================================================================
// Shared setup
// =============================================================================

// loadAppConfig loads llmexp.yaml, applies flag overrides and installs the
// configured logger as the slog default.
func loadAppConfig(flags *globalFlags) (*config.AppConfig, *observability.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.configsDir != "" {
		cfg.ConfigsDir = flags.configsDir
	}
	if flags.resultsDir != "" {
		cfg.Results.Dir = flags.resultsDir
	}
	if flags.debug {
		cfg.Logging.Level = "debug"
	}
	logger := observability.NewLogger(cfg.LogConfig())
	slog.SetDefault(logger.Slog())
	return cfg, logger, nil
}

func loadCatalog(flags *globalFlags) (*config.AppConfig, *config.Catalog, []config.Warning, *observability.Logger, error) {
	cfg, logger, err := loadAppConfig(flags)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	catalog, warnings, err := config.LoadCatalog(cfg.ConfigsDir, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, catalog, warnings, logger, nil
}

// =============================================================================
// Run Command Handler
// =============================================================================

// runRun executes the selected runs, or all of them when none are named.
func runRun(ctx context.Context, out io.Writer, flags *globalFlags, runIDs []string, dryRun bool) error {
	cfg, catalog, _, logger, err := loadCatalog(flags)
	if err != nil {
		return err
	}

	selected, err := selectRuns(catalog, runIDs)
	if err != nil {
		return err
	}
	if dryRun {
		return printPlan(out, catalog, selected)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	tracer, shutdown, err := observability.NewTracer(ctx, cfg.TraceConfig(version))
	if err != nil {
		logger.Warn(ctx, "tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
		}
	}()

	csvSink, sink, closeSinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	r := &runner.Runner{
		Catalog: catalog,
		Sink:    sink,
		Parsers: parsers.Default(),
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	}

	var summary runner.Summary
	var runErr error
	for _, def := range selected {
		s, err := r.Run(ctx, def)
		summary.Runs += s.Runs
		summary.Tables += s.Tables
		summary.Rows += s.Rows
		summary.AbsentCells += s.AbsentCells
		summary.Skipped += s.Skipped
		if err != nil {
			runErr = err
			break
		}
	}

	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn(ctx, "metrics textfile not written", "path", cfg.Metrics.Textfile, "error", err)
	}

	fmt.Fprintf(out, "Summary: %s\n", summary)
	for _, path := range csvSink.Written() {
		fmt.Fprintf(out, "  %s\n", path)
	}
	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("interrupted: %w", runErr)
	}
	return runErr
}

func selectRuns(catalog *config.Catalog, ids []string) ([]config.RunDefinition, error) {
	if len(ids) == 0 {
		return catalog.Runs, nil
	}
	selected := make([]config.RunDefinition, 0, len(ids))
	for _, id := range ids {
		def, ok := catalog.Run(id)
		if !ok {
			return nil, fmt.Errorf("run %q not found in %s", id, catalog.Dir)
		}
		selected = append(selected, def)
	}
	return selected, nil
}

// buildSinks returns the CSV sink, the combined sink and a closer for any
// database handles.
func buildSinks(ctx context.Context, cfg *config.AppConfig) (*results.CSVSink, results.Sink, func(), error) {
	csvSink := results.NewCSVSink(cfg.Results.Dir)
	sinks := results.MultiSink{csvSink}
	closer := func() {}

	if cfg.SQLEnabled() {
		sqlSink, err := results.OpenSQLSink(ctx, cfg.SQLSinkConfig())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sql sink: %w", err)
		}
		sinks = append(sinks, sqlSink)
		closer = func() { _ = sqlSink.Close() }
	}
	if cfg.S3Enabled() {
		s3Sink, err := results.NewS3Sink(ctx, cfg.S3SinkConfig())
		if err != nil {
			closer()
			return nil, nil, nil, fmt.Errorf("create s3 sink: %w", err)
		}
		sinks = append(sinks, s3Sink)
	}

	if len(sinks) == 1 {
		return csvSink, csvSink, closer, nil
	}
	return csvSink, sinks, closer, nil
}

func printPlan(out io.Writer, catalog *config.Catalog, runs []config.RunDefinition) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tEXPERIMENT\tMODEL\tITERATIONS\tSTATUS")
	for _, def := range runs {
		for _, e := range def.Experiments {
			_, expOK := catalog.Experiment(e.ExperimentID)
			for _, m := range e.Models {
				_, modelOK := catalog.Model(m.ModelID)
				status := "ok"
				switch {
				case !expOK:
					status = "experiment not found"
				case !modelOK:
					status = "model not found"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", def.ID, e.ExperimentID, m.ModelID, m.Iterations(), status)
			}
		}
	}
	return w.Flush()
}

// =============================================================================
// List Command Handler
// =============================================================================

func runList(out io.Writer, flags *globalFlags) error {
	_, catalog, _, _, err := loadCatalog(flags)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXPERIMENTS")
	for _, e := range catalog.Experiments {
		conditions := make([]string, 0, len(e.Conditions))
		for _, c := range e.Conditions {
			conditions = append(conditions, c.ID)
		}
		fmt.Fprintf(w, "  %s\t%s\tturns=%d\tmeasures=%s\tconditions=%s\n",
			e.ID, e.Title, len(e.Scenario), strings.Join(e.Scenario.Measures(), ","), strings.Join(conditions, ","))
	}
	fmt.Fprintln(w, "MODELS")
	for _, m := range catalog.Models {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", m.ID, m.Name, m.ProviderConfig().Provider, m.ProviderModelName)
	}
	fmt.Fprintln(w, "PARTICIPANTS")
	for _, p := range catalog.Participants {
		fmt.Fprintf(w, "  %s\t%s\tassignments=%d\n", p.ID(), p, len(p.Assignments()))
	}
	fmt.Fprintln(w, "RUNS")
	for _, r := range catalog.Runs {
		fmt.Fprintf(w, "  %s\t%s\texperiments=%d\n", r.ID, r, len(r.Experiments))
	}
	return w.Flush()
}

// =============================================================================
// Validate Command Handler
// =============================================================================

func runValidate(out io.Writer, flags *globalFlags) error {
	_, catalog, warnings, _, err := loadCatalog(flags)
	if err != nil {
		return err
	}

	problems := make([]string, 0, len(warnings))
	for _, w := range warnings {
		problems = append(problems, w.String())
	}
	problems = append(problems, checkCatalog(catalog, parsers.Default())...)

	if len(problems) == 0 {
		fmt.Fprintf(out, "%s: %d experiment(s), %d model(s), %d participant(s), %d run(s); no problems found\n",
			catalog.Dir, len(catalog.Experiments), len(catalog.Models), len(catalog.Participants), len(catalog.Runs))
		return nil
	}
	for _, p := range problems {
		fmt.Fprintf(out, "- %s\n", p)
	}
	return fmt.Errorf("%d problem(s) found", len(problems))
}

// checkCatalog reports problems that loading alone does not catch.
func checkCatalog(catalog *config.Catalog, registry *parsers.Registry) []string {
	var problems []string
	for _, e := range catalog.Experiments {
		for _, p := range e.Scenario.Check(registry) {
			problems = append(problems, fmt.Sprintf("experiment %q: %s", e.ID, p))
		}
		declared := make([]string, 0, len(e.Conditions))
		for _, c := range e.Conditions {
			declared = append(declared, c.ID)
		}
		for _, tag := range e.Scenario.Conditions() {
			if !slices.Contains(declared, tag) {
				problems = append(problems, fmt.Sprintf("experiment %q: scenario uses undeclared condition %q", e.ID, tag))
			}
		}
	}

	known := providers.Names()
	for _, m := range catalog.Models {
		if p := m.ProviderConfig().Provider; !slices.Contains(known, strings.ToLower(p)) {
			problems = append(problems, fmt.Sprintf("model %q: unknown provider %q (known: %s)", m.ID, p, strings.Join(known, ", ")))
		}
	}

	for _, r := range catalog.Runs {
		for _, e := range r.Experiments {
			if _, ok := catalog.Experiment(e.ExperimentID); !ok {
				problems = append(problems, fmt.Sprintf("run %q: experiment %q not found", r.ID, e.ExperimentID))
			}
			for _, m := range e.Models {
				if _, ok := catalog.Model(m.ModelID); !ok {
					problems = append(problems, fmt.Sprintf("run %q: model %q not found", r.ID, m.ModelID))
				}
			}
		}
	}
	return problems
}

// =============================================================================
// Parse Command Handler
// =============================================================================

func runParse(out io.Writer, name, text string, rawParams []string) error {
	registry := parsers.Default()
	if _, err := registry.Lookup(name); err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(registry.Names(), ", "))
	}
	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}

	v := registry.Apply(name, models.Present(text), params)
	if got, ok := v.Get(); ok {
		fmt.Fprintf(out, "%v\n", got)
		return nil
	}
	fmt.Fprintf(out, "absent: %v\n", v.Reason())
	return nil
}

// parseParams turns key=value pairs into parser params, reading integers,
// floats and booleans where the value parses as one.
func parseParams(raw []string) (parsers.Params, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := parsers.Params{}
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("param %q must be key=value", kv)
		}
		params[key] = scalar(value)
	}
	return params, nil
}

func scalar(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// =============================================================================
// Version Command Handler
// =============================================================================

func runVersion(out io.Writer) error {
	_, err := fmt.Fprintf(out, "llmexp %s (commit: %s, built: %s)\n", version, commit, date)
	return err
}
