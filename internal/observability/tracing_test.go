package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return &Tracer{provider: provider, tracer: provider.Tracer("test")}, recorder
}

func TestNewTracerWithoutEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(context.Background(), TraceConfig{})
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if tracer == nil || tracer.tracer == nil {
		t.Fatal("expected a no-op tracer")
	}
	if tracer.config.ServiceName != defaultServiceName {
		t.Errorf("ServiceName = %q, want %q", tracer.config.ServiceName, defaultServiceName)
	}
}

func TestTraceGenerateAttributes(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	_, span := tracer.TraceGenerate(context.Background(), "anthropic", "claude")
	tracer.RecordError(span, errors.New("overloaded"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "llm.generate" {
		t.Errorf("span name = %q", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", got.Status().Code)
	}

	want := map[attribute.Key]string{"llm.provider": "anthropic", "llm.model": "claude"}
	for _, kv := range got.Attributes() {
		if v, ok := want[kv.Key]; ok && kv.Value.AsString() != v {
			t.Errorf("%s = %q, want %q", kv.Key, kv.Value.AsString(), v)
		}
		delete(want, kv.Key)
	}
	if len(want) != 0 {
		t.Errorf("missing attributes: %v", want)
	}
}

func TestTraceSessionNesting(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	ctx, run := tracer.TraceRun(context.Background(), "pilot")
	_, session := tracer.TraceSession(ctx, "exp", "control", "p1")
	session.End()
	run.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("session span should be a child of the run span")
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	_, span := tracer.TraceGenerate(context.Background(), "openai", "gpt")
	tracer.RecordError(span, errors.New("x"))
	tracer.SetAttributes(span, "attempts", 2)
	span.End()
}

func TestAttributeFromValue(t *testing.T) {
	tests := []struct {
		val  any
		want attribute.Type
	}{
		{"s", attribute.STRING},
		{1, attribute.INT64},
		{int64(2), attribute.INT64},
		{1.5, attribute.FLOAT64},
		{true, attribute.BOOL},
		{[]string{"a"}, attribute.STRINGSLICE},
		{struct{}{}, attribute.STRING},
	}
	for _, tt := range tests {
		if got := attributeFromValue("k", tt.val).Value.Type(); got != tt.want {
			t.Errorf("attributeFromValue(%v) type = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); got != tt.want {
			t.Errorf("samplerFor(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
