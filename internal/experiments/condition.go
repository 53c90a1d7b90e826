package experiments

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/llmexperiment/internal/observability"
	"github.com/haasonsaas/llmexperiment/internal/results"
	"github.com/haasonsaas/llmexperiment/internal/scenario"
	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// Condition is one variant of an experiment's scenario.
type Condition struct {
	id          string
	title       string
	description string
	experiment  *Experiment
	scenario    scenario.Scenario

	mu      sync.Mutex
	results *results.Table
}

func (c *Condition) ID() string              { return c.id }
func (c *Condition) Title() string           { return c.title }
func (c *Condition) Description() string     { return c.description }
func (c *Condition) Experiment() *Experiment { return c.experiment }

// Scenario returns a copy of the condition's derived scenario.
func (c *Condition) Scenario() scenario.Scenario {
	return append(scenario.Scenario(nil), c.scenario...)
}

// Run runs a session for every participant assigned to this condition, in
// order, each against its own duplicate of model. Rows gain condition_id and
// condition_title, are appended to the accumulated results, and are
// returned. Failures show up as absent cells; Run never panics.
func (c *Condition) Run(ctx context.Context, model models.Model, participants []*Participant) *results.Table {
	ctx = observability.WithConditionID(ctx, c.id)
	logger := c.experiment.opts.Logger
	logger.Info(ctx, "running condition", "condition", c.String())

	table := results.NewTable()
	for _, p := range participants {
		if p == nil || !p.InCondition(c.id) {
			continue
		}
		if ctx.Err() != nil {
			logger.Warn(ctx, "condition interrupted", "error", ctx.Err())
			break
		}
		table.Append(c.runParticipant(ctx, model, p))
	}
	table.WithColumn("condition_id", models.Present(c.id))
	table.WithColumn("condition_title", models.Present(c.title))

	c.mu.Lock()
	c.results.Concat(table)
	c.mu.Unlock()
	return table
}

func (c *Condition) runParticipant(ctx context.Context, model models.Model, p *Participant) (row models.Record) {
	opts := c.experiment.opts
	ctx = observability.WithParticipantID(ctx, p.ID())

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrSessionPanic, rec)
			opts.Logger.Error(ctx, "session panicked", "error", err)
			row = c.absentRow(nil, p, err)
		}
	}()

	instance, err := c.isolate(ctx, model)
	if err != nil {
		opts.Logger.Warn(ctx, "participant skipped: model not isolated", "error", err)
		return c.absentRow(model, p, err)
	}

	ctx, span := opts.Tracer.TraceSession(ctx, c.experiment.id, c.id, p.ID())
	defer span.End()

	session := &scenario.Session{
		Model:    instance,
		Subject:  p,
		Scenario: c.scenario,
		Parsers:  opts.Parsers,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	}
	return session.Run(ctx)
}

// isolate returns a duplicate of model. When duplication is unavailable the
// shared instance is returned only under Options.SharedContext.
func (c *Condition) isolate(ctx context.Context, model models.Model) (models.Model, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: no model", ErrModelNotIsolated)
	}

	var err error
	if d, ok := model.(models.Duplicable); ok {
		dup, dupErr := d.Duplicate()
		switch {
		case dupErr != nil:
			err = fmt.Errorf("%w: %w", ErrModelNotIsolated, dupErr)
		case dup == nil:
			err = fmt.Errorf("%w: duplicate is nil", ErrModelNotIsolated)
		default:
			return dup, nil
		}
	} else {
		err = fmt.Errorf("%w: %T cannot be duplicated", ErrModelNotIsolated, model)
	}

	if c.experiment.opts.SharedContext {
		c.experiment.opts.Logger.Warn(ctx, "sharing model conversation across participants", "error", err)
		return model, nil
	}
	return nil, err
}

// absentRow is the row of a participant whose session could not run: the
// identifying metadata plus every measure absent with reason.
func (c *Condition) absentRow(model models.Describable, p *Participant, reason error) models.Record {
	row := models.NewRecord()
	if model != nil {
		row.Merge(model.Metadata())
	}
	row.Merge(p.Metadata())
	for _, m := range c.scenario.Measures() {
		row.Set(m+"_raw", models.Absent(reason))
		row.Set(m, models.Absent(reason))
	}
	return row
}

// Results returns a copy of every row produced since the last clear.
func (c *Condition) Results() *results.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results.Clone()
}

// ClearResults drops the accumulated rows.
func (c *Condition) ClearResults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = results.NewTable()
}

func (c *Condition) String() string {
	return fmt.Sprintf("%s: %s", c.experiment, c.title)
}
