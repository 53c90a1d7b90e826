package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/llmexperiment/internal/observability"
	"github.com/haasonsaas/llmexperiment/internal/parsers"
	"github.com/haasonsaas/llmexperiment/pkg/models"
)

var (
	// ErrNoModel is the reason recorded when a session has no model.
	ErrNoModel = errors.New("session has no model")
	// ErrModelPanic is the reason recorded when the model panicked.
	ErrModelPanic = errors.New("model panicked")
)

// Measure outcomes reported to metrics.
const (
	OutcomeParsed  = "parsed"
	OutcomeRawOnly = "raw_only"
	OutcomeAbsent  = "absent"
)

// Session runs one scenario for one subject against one model.
type Session struct {
	Model    models.Model
	Subject  models.Subject
	Scenario Scenario
	// Parsers resolves parser names. Defaults to parsers.Default().
	Parsers *parsers.Registry

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Run walks the scenario and returns the result row. Every turn, empty ones
// included, adds a line to a rolling prompt; each measured turn sends the prompt,
// records <measure>_raw and <measure>, and starts a new prompt. Failures
// never escape: they are recorded as absent values.
func (s *Session) Run(ctx context.Context) models.Record {
	record := models.NewRecord()
	if s.Model != nil {
		record.Merge(s.Model.Metadata())
	}
	if s.Subject != nil {
		record.Merge(s.Subject.Metadata())
	}

	registry := s.Parsers
	if registry == nil {
		registry = parsers.Default()
	}
	subject := s.subjectLabel()

	var prompt strings.Builder
	for _, turn := range s.Scenario {
		if turn.Role != "" {
			prompt.WriteString(turn.Role)
			prompt.WriteString(": ")
		}
		prompt.WriteString(turn.Content)
		prompt.WriteByte('\n')

		if turn.Measure == "" {
			continue
		}

		raw := s.generate(ctx, strings.ReplaceAll(prompt.String(), SubjectToken, subject))
		record.Set(turn.Measure+"_raw", raw)

		parsed := raw
		outcome := OutcomeRawOnly
		if turn.Parser != nil && turn.Parser.Name != "" {
			parsed = registry.Apply(turn.Parser.Name, raw, parsers.Params(turn.Parser.Params))
			outcome = OutcomeParsed
		}
		record.Set(turn.Measure, parsed)

		if !parsed.IsPresent() {
			outcome = OutcomeAbsent
			s.Logger.Debug(ctx, "measure absent",
				"measure", turn.Measure,
				"reason", parsed.Reason(),
			)
		}
		s.Metrics.MeasureRecorded(turn.Measure, outcome)

		prompt.Reset()
	}
	return record
}

func (s *Session) generate(ctx context.Context, prompt string) (out models.Value) {
	if s.Model == nil {
		return models.Absent(ErrNoModel)
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = models.Absent(fmt.Errorf("%w: %v", ErrModelPanic, rec))
		}
	}()
	return s.Model.Generate(ctx, prompt)
}

// subjectLabel returns the subject's display string, falling back to its
// raw representation when String panics.
func (s *Session) subjectLabel() (label string) {
	if s.Subject == nil {
		return ""
	}
	defer func() {
		if rec := recover(); rec != nil {
			label = fmt.Sprintf("%#v", s.Subject)
		}
	}()
	return s.Subject.String()
}
