package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedEndpoint struct {
	replies  []string
	errs     []error
	requests []Request
}

func (s *scriptedEndpoint) Complete(_ context.Context, req Request) (string, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("script exhausted")
}

func testSpec() Spec {
	return Spec{
		ID:            "gpt",
		Name:          "GPT",
		Provider:      "openai",
		ProviderModel: "gpt-4o-mini",
		Params:        map[string]any{"temperature": 0.0},
	}
}

func countRole(turns []Turn, role Role) int {
	n := 0
	for _, t := range turns {
		if t.Role == role {
			n++
		}
	}
	return n
}

func TestGenerate_RetryLeavesNoResidue(t *testing.T) {
	fail := errors.New("503 service unavailable")
	endpoint := &scriptedEndpoint{
		errs:    []error{fail, fail, nil},
		replies: []string{"", "", "42"},
	}
	spec := testSpec()
	spec.Settings.Retries = 3

	agent, err := NewAgent(spec, endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	got := agent.Generate(context.Background(), "How old are you?")
	if text, ok := got.Text(); !ok || text != "42" {
		t.Fatalf("Generate() = %v (reason %v), want 42", got, got.Reason())
	}

	turns := agent.History().Turns()
	if len(turns) != 3 {
		t.Fatalf("history has %d turns, want 3: %+v", len(turns), turns)
	}
	if countRole(turns, RoleUser) != 1 || countRole(turns, RoleAssistant) != 1 {
		t.Errorf("history = %+v, want one user and one assistant turn", turns)
	}
	if turns[0].Role != RoleDeveloper || turns[0].Content != DefaultSystemPrompt {
		t.Errorf("first turn = %+v, want default developer turn", turns[0])
	}

	if len(endpoint.requests) != 3 {
		t.Fatalf("endpoint called %d times, want 3", len(endpoint.requests))
	}
	for i, req := range endpoint.requests {
		if n := countRole(req.Messages, RoleUser); n != 1 {
			t.Errorf("attempt %d sent %d user turns, want 1", i+1, n)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("attempt %d model = %q", i+1, req.Model)
		}
	}
}

func TestGenerate_ExhaustedIsAbsent(t *testing.T) {
	fail := errors.New("connection refused")
	endpoint := &scriptedEndpoint{errs: []error{fail, fail}}
	spec := testSpec()
	spec.Settings.Retries = 2

	agent, err := NewAgent(spec, endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	got := agent.Generate(context.Background(), "hello")
	if got.IsPresent() {
		t.Fatalf("expected absent, got %v", got)
	}
	if !errors.Is(got.Reason(), ErrGenerationFailed) || !errors.Is(got.Reason(), fail) {
		t.Errorf("reason = %v, want ErrGenerationFailed wrapping the last error", got.Reason())
	}
	if n := agent.History().Len(); n != 1 {
		t.Errorf("history has %d turns after failure, want 1", n)
	}
	if len(endpoint.requests) != 2 {
		t.Errorf("endpoint called %d times, want 2", len(endpoint.requests))
	}
}

func TestGenerate_DefaultsToSingleAttempt(t *testing.T) {
	endpoint := &scriptedEndpoint{errs: []error{errors.New("boom")}}
	agent, err := NewAgent(testSpec(), endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	agent.Generate(context.Background(), "x")
	if len(endpoint.requests) != 1 {
		t.Errorf("endpoint called %d times, want 1", len(endpoint.requests))
	}
}

func TestGenerate_PanicIsAbsent(t *testing.T) {
	endpoint := EndpointFunc(func(context.Context, Request) (string, error) {
		panic("nil map")
	})
	agent, err := NewAgent(testSpec(), endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	got := agent.Generate(context.Background(), "x")
	if got.IsPresent() || !errors.Is(got.Reason(), ErrEndpointPanic) {
		t.Errorf("got %v, reason %v; want absent ErrEndpointPanic", got, got.Reason())
	}
	if agent.History().Len() != 1 {
		t.Error("panicking attempt should not leave a user turn")
	}
}

func TestGenerate_ConversationAccumulates(t *testing.T) {
	endpoint := &scriptedEndpoint{replies: []string{"first", "second"}}
	agent, err := NewAgent(testSpec(), endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	agent.Generate(context.Background(), "one")
	agent.Generate(context.Background(), "two")

	second := endpoint.requests[1].Messages
	if len(second) != 4 {
		t.Fatalf("second request carried %d turns, want 4", len(second))
	}
	if second[2].Content != "first" || second[3].Content != "two" {
		t.Errorf("second request = %+v", second)
	}
}

func TestGenerate_ZeroDelayIsImmediate(t *testing.T) {
	fail := errors.New("x")
	endpoint := &scriptedEndpoint{errs: []error{fail, fail, fail, fail, fail}}
	spec := testSpec()
	spec.Settings.Retries = 5

	agent, err := NewAgent(spec, endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	start := time.Now()
	agent.Generate(context.Background(), "x")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("zero delay retries took %v", elapsed)
	}
}

func TestClone_ResetsHistory(t *testing.T) {
	endpoint := &scriptedEndpoint{replies: []string{"a", "b"}}
	spec := testSpec()
	spec.Settings.SystemPrompt = "Stay in character."
	agent, err := NewAgent(spec, endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	agent.Generate(context.Background(), "hi")

	clone := agent.Clone()
	if clone.History().Len() != 1 {
		t.Fatalf("clone history has %d turns, want 1", clone.History().Len())
	}
	if first, _ := clone.History().Last(); first.Content != "Stay in character." {
		t.Errorf("clone system turn = %q", first.Content)
	}

	clone.Generate(context.Background(), "again")
	if agent.History().Len() != 3 {
		t.Errorf("original history changed to %d turns", agent.History().Len())
	}

	clone.spec.Params["temperature"] = 1.0
	if agent.Spec().Params["temperature"] != 0.0 {
		t.Error("clone shares params with original")
	}

	if clone.Metadata().Len() != 3 {
		t.Errorf("clone metadata = %v", clone.Metadata().Keys())
	}
}

func TestDuplicate(t *testing.T) {
	agent, err := NewAgent(testSpec(), &scriptedEndpoint{})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	dup, err := agent.Duplicate()
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if dup == agent {
		t.Error("Duplicate returned the same instance")
	}
}

func TestMetadataAndString(t *testing.T) {
	agent, err := NewAgent(testSpec(), &scriptedEndpoint{})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	md := agent.Metadata()
	want := map[string]string{"model_id": "gpt", "model_name": "GPT", "model_provider": "openai"}
	for k, v := range want {
		got, ok := md.Get(k)
		if !ok || got.String() != v {
			t.Errorf("%s = %v, want %q", k, got, v)
		}
	}
	if agent.String() != "GPT (openai)" {
		t.Errorf("String() = %q", agent.String())
	}
}

func TestNewAgent_Validation(t *testing.T) {
	if _, err := NewAgent(Spec{}, &scriptedEndpoint{}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := NewAgent(testSpec(), nil); err == nil {
		t.Error("expected error for missing endpoint")
	}
}

// authLikeError reads like a credentials failure, which a flaky proxy can
// also produce.
type authLikeError struct{}

func (authLikeError) Error() string { return "status 401: prompt has 4030 tokens, upstream reset" }

func TestGenerate_RetriesEveryFailure(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		retries   int
		wantCalls int
		want      string
	}{
		{"auth-like error then success", []error{authLikeError{}, nil}, 3, 2, "42"},
		{"every attempt fails", []error{authLikeError{}, authLikeError{}, authLikeError{}, authLikeError{}}, 4, 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := &scriptedEndpoint{errs: tt.errs, replies: []string{"", "42"}}
			spec := testSpec()
			spec.Settings.Retries = tt.retries

			agent, err := NewAgent(spec, endpoint)
			if err != nil {
				t.Fatalf("NewAgent: %v", err)
			}
			v := agent.Generate(context.Background(), "hello")
			if len(endpoint.requests) != tt.wantCalls {
				t.Errorf("endpoint called %d times, want %d", len(endpoint.requests), tt.wantCalls)
			}
			if tt.want == "" {
				var ae authLikeError
				if v.IsPresent() || !errors.As(v.Reason(), &ae) {
					t.Errorf("Generate() = %v (reason %v), want absent auth-like error", v, v.Reason())
				}
				return
			}
			if text, ok := v.Text(); !ok || text != tt.want {
				t.Errorf("Generate() = %v (reason %v), want %q", v, v.Reason(), tt.want)
			}
		})
	}
}

func TestGenerate_StopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	endpoint := EndpointFunc(func(context.Context, Request) (string, error) {
		cancel()
		return "", context.Canceled
	})
	spec := testSpec()
	spec.Settings.Retries = 5
	spec.Settings.RetryDelay = time.Hour

	agent, err := NewAgent(spec, endpoint)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	v := agent.Generate(ctx, "hello")
	if v.IsPresent() || !errors.Is(v.Reason(), context.Canceled) {
		t.Errorf("Generate() = %v (reason %v), want absent and canceled", v, v.Reason())
	}
}
