// Package llm holds the model invocation client: an Agent that keeps a
// conversation history and calls a backend Endpoint with bounded retry.
package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/haasonsaas/llmexperiment/internal/observability"
	"github.com/haasonsaas/llmexperiment/internal/retry"
	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// DefaultSystemPrompt opens every conversation unless a model overrides it.
const DefaultSystemPrompt = "Respond only as the character, continuing their line or filling gaps (___). No extra words."

var (
	// ErrGenerationFailed is the reason attached to replies that could not be
	// obtained within the configured attempts.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEndpointPanic marks an endpoint that panicked during a call.
	ErrEndpointPanic = errors.New("endpoint panicked")
)

// Spec identifies a model and how to call it.
type Spec struct {
	ID            string
	Name          string
	Provider      string
	ProviderModel string
	Params        map[string]any
	Settings      Settings
}

// Settings are operational knobs for an agent.
type Settings struct {
	// Retries is the total number of attempts per Generate call. Defaults to 1.
	Retries int
	// RetryDelay is the pause between attempts. Zero retries immediately.
	RetryDelay time.Duration
	// RetryBackoff multiplies the pause after each failure when above one.
	RetryBackoff float64
	// MaxRetryDelay caps a growing pause. Zero means no cap.
	MaxRetryDelay time.Duration
	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string
}

// Agent is a model client with its own conversation history. An Agent is not
// safe for concurrent use; Clone it instead.
type Agent struct {
	spec     Spec
	endpoint Endpoint
	history  History

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *observability.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithMetrics sets the metrics sink for generation attempts.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithTracer sets the tracer for generation spans.
func WithTracer(t *observability.Tracer) Option {
	return func(a *Agent) { a.tracer = t }
}

// NewAgent creates an agent whose history holds only the system turn.
func NewAgent(spec Spec, endpoint Endpoint, opts ...Option) (*Agent, error) {
	if spec.ID == "" {
		return nil, errors.New("llm: model id is required")
	}
	if endpoint == nil {
		return nil, fmt.Errorf("llm: model %q has no endpoint", spec.ID)
	}
	if spec.Settings.Retries <= 0 {
		spec.Settings.Retries = 1
	}
	if spec.Settings.RetryDelay < 0 {
		spec.Settings.RetryDelay = 0
	}
	if spec.Settings.SystemPrompt == "" {
		spec.Settings.SystemPrompt = DefaultSystemPrompt
	}
	spec.Params = maps.Clone(spec.Params)

	a := &Agent{spec: spec, endpoint: endpoint}
	for _, opt := range opts {
		opt(a)
	}
	a.history = a.initialHistory()
	return a, nil
}

func (a *Agent) initialHistory() History {
	return NewHistory(Turn{Role: RoleDeveloper, Content: a.spec.Settings.SystemPrompt})
}

// Generate sends prompt as a user turn and returns the reply. A failed
// attempt leaves no trace in the history. When every attempt fails the
// result is absent and its reason wraps ErrGenerationFailed and the last
// error.
func (a *Agent) Generate(ctx context.Context, prompt string) models.Value {
	ctx, span := a.tracer.TraceGenerate(ctx, a.spec.Provider, a.spec.ProviderModel)
	defer span.End()

	settings := a.spec.Settings
	config := retry.Backoff(settings.Retries, settings.RetryDelay, settings.RetryBackoff, settings.MaxRetryDelay)
	config.OnRetry = func(attempt int, err error) {
		a.logger.Warn(ctx, "generation attempt failed",
			"model_id", a.spec.ID,
			"attempt", attempt,
			"max_attempts", a.spec.Settings.Retries,
			"error", err,
		)
	}

	reply, result := retry.DoWithValue(ctx, config, func(int) (string, error) {
		a.history.Append(Turn{Role: RoleUser, Content: prompt})
		start := time.Now()
		text, err := a.complete(ctx)
		status := "success"
		if err != nil {
			status = "error"
			a.history.Pop()
		}
		a.metrics.GenerateDone(a.spec.Provider, a.spec.ProviderModel, status, time.Since(start).Seconds())
		return text, err
	})
	a.tracer.SetAttributes(span, "llm.attempts", result.Attempts)

	if result.Err != nil {
		a.tracer.RecordError(span, result.Err)
		a.logger.Warn(ctx, "generation gave up",
			"model_id", a.spec.ID,
			"attempts", result.Attempts,
			"error", result.Err,
		)
		return models.Absent(fmt.Errorf("%w after %d attempt(s): %w", ErrGenerationFailed, result.Attempts, result.Err))
	}

	a.history.Append(Turn{Role: RoleAssistant, Content: reply})
	return models.Present(reply)
}

func (a *Agent) complete(ctx context.Context) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrEndpointPanic, rec)
		}
	}()
	return a.endpoint.Complete(ctx, Request{
		Model:    a.spec.ProviderModel,
		Messages: a.history.Turns(),
		Params:   maps.Clone(a.spec.Params),
	})
}

// Clone returns an agent with the same identity, parameters, endpoint and
// instrumentation, and a history reset to the system turn.
func (a *Agent) Clone() *Agent {
	spec := a.spec
	spec.Params = maps.Clone(a.spec.Params)
	clone := &Agent{
		spec:     spec,
		endpoint: a.endpoint,
		logger:   a.logger,
		metrics:  a.metrics,
		tracer:   a.tracer,
	}
	clone.history = clone.initialHistory()
	return clone
}

// Duplicate implements models.Duplicable.
func (a *Agent) Duplicate() (models.Model, error) {
	return a.Clone(), nil
}

// Metadata implements models.Describable.
func (a *Agent) Metadata() models.Record {
	r := models.NewRecord()
	r.Set("model_id", models.Present(a.spec.ID))
	r.Set("model_name", models.Present(a.spec.Name))
	r.Set("model_provider", models.Present(a.spec.Provider))
	return r
}

// History returns a copy of the conversation so far.
func (a *Agent) History() History {
	return a.history.Clone()
}

// Spec returns the agent's spec.
func (a *Agent) Spec() Spec {
	spec := a.spec
	spec.Params = maps.Clone(a.spec.Params)
	return spec
}

func (a *Agent) String() string {
	return fmt.Sprintf("%s (%s)", a.spec.Name, a.spec.Provider)
}
