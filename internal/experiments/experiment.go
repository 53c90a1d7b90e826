// Package experiments runs experiment conditions over participants and
// accumulates their result tables.
package experiments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/llmexperiment/internal/observability"
	"github.com/haasonsaas/llmexperiment/internal/parsers"
	"github.com/haasonsaas/llmexperiment/internal/results"
	"github.com/haasonsaas/llmexperiment/internal/scenario"
	"github.com/haasonsaas/llmexperiment/pkg/models"
)

var (
	// ErrModelNotIsolated is the reason recorded for every measure of a
	// participant whose model could not be duplicated.
	ErrModelNotIsolated = errors.New("model could not be isolated for participant")
	// ErrSessionPanic is the reason recorded when a session panicked.
	ErrSessionPanic = errors.New("session panicked")
)

// Options configure how an experiment runs.
type Options struct {
	// SharedContext falls back to the caller's model instance when it cannot
	// be duplicated, so participants share one conversation history.
	SharedContext bool
	Parsers       *parsers.Registry
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
}

// Experiment owns a base scenario, its conditions, and the accumulated
// results of every run.
type Experiment struct {
	id          string
	title       string
	description string
	scenario    scenario.Scenario
	conditions  []*Condition
	opts        Options

	mu      sync.Mutex
	results *results.Table
}

// New creates an experiment and derives each condition's scenario.
func New(spec Spec, opts Options) (*Experiment, error) {
	if spec.ID == "" {
		return nil, errors.New("experiment id is required")
	}
	opts.SharedContext = opts.SharedContext || spec.SharedContext
	if opts.Parsers == nil {
		opts.Parsers = parsers.Default()
	}

	e := &Experiment{
		id:          spec.ID,
		title:       spec.Title,
		description: spec.Description,
		scenario:    append(scenario.Scenario(nil), spec.Scenario...),
		opts:        opts,
		results:     results.NewTable(),
	}

	seen := map[string]bool{}
	for _, cs := range spec.Conditions {
		if cs.ID == "" {
			return nil, fmt.Errorf("experiment %q: condition id is required", spec.ID)
		}
		if seen[cs.ID] {
			return nil, fmt.Errorf("experiment %q: duplicate condition %q", spec.ID, cs.ID)
		}
		seen[cs.ID] = true
		e.conditions = append(e.conditions, &Condition{
			id:          cs.ID,
			title:       cs.Title,
			description: cs.Description,
			experiment:  e,
			scenario:    spec.Scenario.ForCondition(cs.ID),
			results:     results.NewTable(),
		})
	}
	return e, nil
}

func (e *Experiment) ID() string          { return e.id }
func (e *Experiment) Title() string       { return e.title }
func (e *Experiment) Description() string { return e.description }

// Scenario returns a copy of the base scenario.
func (e *Experiment) Scenario() scenario.Scenario {
	return append(scenario.Scenario(nil), e.scenario...)
}

// Conditions returns the conditions in declared order.
func (e *Experiment) Conditions() []*Condition {
	return append([]*Condition(nil), e.conditions...)
}

// Condition returns the condition with the given id.
func (e *Experiment) Condition(id string) (*Condition, bool) {
	for _, c := range e.conditions {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// Run runs every condition, in order, for the participants assigned to this
// experiment. Rows gain experiment_id and experiment_title, are appended to
// the accumulated results, and are returned.
func (e *Experiment) Run(ctx context.Context, model models.Model, participants []*Participant) *results.Table {
	ctx = observability.WithExperimentID(ctx, e.id)
	e.opts.Logger.Info(ctx, "running experiment", "experiment", e.String())

	eligible := make([]*Participant, 0, len(participants))
	for _, p := range participants {
		if p != nil && p.InExperiment(e.id) {
			eligible = append(eligible, p)
		}
	}

	table := results.NewTable()
	for _, c := range e.conditions {
		if ctx.Err() != nil {
			break
		}
		table.Concat(c.Run(ctx, model, eligible))
	}
	table.WithColumn("experiment_id", models.Present(e.id))
	table.WithColumn("experiment_title", models.Present(e.title))

	e.mu.Lock()
	e.results.Concat(table)
	e.mu.Unlock()
	return table
}

// Results returns a copy of every row produced since the last clear.
func (e *Experiment) Results() *results.Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results.Clone()
}

// ClearResults drops the accumulated rows.
func (e *Experiment) ClearResults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = results.NewTable()
}

func (e *Experiment) String() string {
	if e.title == "" {
		return e.id
	}
	return e.title
}
