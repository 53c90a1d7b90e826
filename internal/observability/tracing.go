package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "llmexp"

// Tracer wraps an OpenTelemetry tracer. Runs, sessions and generation
// attempts each get a span, so a slow or failing model call can be located
// within its experiment and condition.
//
// Usage:
//
//	tracer, shutdown, err := observability.NewTracer(ctx, observability.TraceConfig{
//	    Endpoint: "localhost:4317",
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceGenerate(ctx, "openai", "gpt-4o")
//	defer span.End()
//
// A nil *Tracer starts no-op spans.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
}

// TraceConfig configures the distributed tracing behavior.
type TraceConfig struct {
	// ServiceName identifies this service in traces
	ServiceName string

	// ServiceVersion identifies the service version
	ServiceVersion string

	// Endpoint is the OTLP collector endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled
	Endpoint string

	// SamplingRate controls what fraction of traces are recorded (0.0 to 1.0)
	// Defaults to 1.0 if not specified
	SamplingRate float64

	// Attributes are additional resource attributes to include in all spans
	Attributes map[string]string

	// Insecure disables TLS for the OTLP connection
	Insecure bool
}

// NewTracer builds a tracer exporting over OTLP gRPC and returns a shutdown
// function that flushes pending spans. Without an endpoint the tracer is a
// no-op and the error is always nil.
func NewTracer(ctx context.Context, config TraceConfig) (*Tracer, func(context.Context) error, error) {
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}
	noop := &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}
	if config.Endpoint == "" {
		return noop, func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return noop, func(context.Context) error { return nil }, fmt.Errorf("otlp exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(config.SamplingRate)),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
	}, provider.Shutdown, nil
}

// samplerFor maps a sampling rate onto a sampler. Zero means sample
// everything; a tracer with an endpoint and nothing sampled is pointless.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0 || rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Start creates a new span and returns a context containing it.
func (t *Tracer) Start(ctx context.Context, name string, keyvals ...any) (context.Context, trace.Span) {
	var tr trace.Tracer
	if t == nil || t.tracer == nil {
		tr = otel.Tracer(defaultServiceName)
	} else {
		tr = t.tracer
	}
	return tr.Start(ctx, name, trace.WithAttributes(attributes(keyvals)...))
}

// TraceRun starts the span covering one run definition.
func (t *Tracer) TraceRun(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.Start(ctx, "run", "run.id", runID)
}

// TraceSession starts the span covering one participant's scenario.
func (t *Tracer) TraceSession(ctx context.Context, experimentID, conditionID, participantID string) (context.Context, trace.Span) {
	return t.Start(ctx, "scenario.session",
		"experiment.id", experimentID,
		"condition.id", conditionID,
		"participant.id", participantID,
	)
}

// TraceGenerate starts the span covering one generation call, retries included.
func (t *Tracer) TraceGenerate(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, "llm.generate",
		"llm.provider", provider,
		"llm.model", model,
	)
}

// RecordError records an error on the span and sets the span status to error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets key/value pairs on a span.
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...any) {
	span.SetAttributes(attributes(keyvals)...)
}

func attributes(keyvals []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attributeFromValue(key, keyvals[i+1]))
	}
	return attrs
}

func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
