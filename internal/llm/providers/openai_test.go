package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

// captureServer answers every request with reply and stores the decoded
// request body in *body.
func captureServer(t *testing.T, path, reply string, body *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("path = %q, want %q", r.URL.Path, path)
		}
		if err := json.NewDecoder(r.Body).Decode(body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)
	return server
}

const openAIReply = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "42"}, "finish_reason": "stop"}]
}`

func TestOpenAICompleteSendsParams(t *testing.T) {
	var body map[string]any
	server := captureServer(t, "/v1/chat/completions", openAIReply, &body)

	p, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	reply, err := p.Complete(context.Background(), llm.Request{
		Model:    "gpt-4o-mini",
		Messages: []llm.Turn{{Role: llm.RoleDeveloper, Content: "stay in character"}, {Role: llm.RoleUser, Content: "How old?"}},
		Params: map[string]any{
			"temperature":       0.0,
			"top_p":             0,
			"presence_penalty":  0.5,
			"max_tokens":        16,
			"seed":              7,
			"n":                 2,
			"logit_bias":        map[string]any{"1639": -100},
			"logprobs":          true,
			"response_format":   "json_object",
			"frequency_penalty": 0.0,
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "42" {
		t.Errorf("reply = %q, want 42", reply)
	}

	for _, key := range []string{"temperature", "top_p", "frequency_penalty"} {
		v, ok := body[key].(float64)
		if !ok {
			t.Errorf("%s missing from request body: %v", key, body)
			continue
		}
		if v <= 0 || v > 1e-30 {
			t.Errorf("%s = %v, want a value indistinguishable from zero", key, v)
		}
	}
	want := map[string]any{
		"presence_penalty": 0.5,
		"max_tokens":       float64(16),
		"seed":             float64(7),
		"n":                float64(2),
		"logprobs":         true,
	}
	for key, v := range want {
		if body[key] != v {
			t.Errorf("%s = %v, want %v", key, body[key], v)
		}
	}
	if bias, _ := body["logit_bias"].(map[string]any); bias["1639"] != float64(-100) {
		t.Errorf("logit_bias = %v", body["logit_bias"])
	}
	if format, _ := body["response_format"].(map[string]any); format["type"] != "json_object" {
		t.Errorf("response_format = %v", body["response_format"])
	}
}

func TestOpenAICompleteOmitsUnsetParams(t *testing.T) {
	var body map[string]any
	server := captureServer(t, "/chat/completions", openAIReply, &body)
	p, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.Request{
		Model:    "gpt-4o-mini",
		Messages: []llm.Turn{{Role: llm.RoleUser, Content: "hi"}},
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	for _, key := range []string{"temperature", "top_p", "seed", "response_format"} {
		if _, ok := body[key]; ok {
			t.Errorf("%s sent without being configured: %v", key, body[key])
		}
	}
}

const anthropicReply = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-haiku",
  "content": [{"type": "text", "text": "42"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 3, "output_tokens": 1}
}`

func TestAnthropicCompleteSendsParams(t *testing.T) {
	var body map[string]any
	server := captureServer(t, "/v1/messages", anthropicReply, &body)

	p, err := NewAnthropic(AnthropicConfig{APIKey: "test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}
	reply, err := p.Complete(context.Background(), llm.Request{
		Model:    "claude-3-haiku",
		Messages: []llm.Turn{{Role: llm.RoleDeveloper, Content: "stay in character"}, {Role: llm.RoleUser, Content: "How old?"}},
		Params:   map[string]any{"temperature": 0.0, "top_k": 40, "max_tokens": 32, "stop": "END"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "42" {
		t.Errorf("reply = %q, want 42", reply)
	}

	if v, ok := body["temperature"]; !ok || v != 0.0 {
		t.Errorf("temperature = %v (present %v), want 0", v, ok)
	}
	if body["top_k"] != float64(40) || body["max_tokens"] != float64(32) {
		t.Errorf("top_k/max_tokens = %v/%v", body["top_k"], body["max_tokens"])
	}
	if stop, _ := body["stop_sequences"].([]any); len(stop) != 1 || stop[0] != "END" {
		t.Errorf("stop_sequences = %v", body["stop_sequences"])
	}
	if system, _ := body["system"].([]any); len(system) != 1 {
		t.Errorf("system = %v", body["system"])
	}
}

func TestBuildGoogleConfig(t *testing.T) {
	cfg := buildGoogleConfig("be brief", map[string]any{
		"temperature":        0.0,
		"top_k":              40,
		"max_tokens":         64,
		"seed":               3,
		"presence_penalty":   0.1,
		"candidate_count":    1,
		"response_mime_type": "application/json",
		"stop":               []any{"END"},
	})

	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", cfg.Temperature)
	}
	if cfg.TopK == nil || *cfg.TopK != 40 {
		t.Errorf("top_k = %v", cfg.TopK)
	}
	if cfg.MaxOutputTokens != 64 || cfg.Seed == nil || *cfg.Seed != 3 {
		t.Errorf("max tokens/seed = %d/%v", cfg.MaxOutputTokens, cfg.Seed)
	}
	if cfg.PresencePenalty == nil || cfg.CandidateCount != 1 || cfg.ResponseMIMEType != "application/json" {
		t.Errorf("config = %+v", cfg)
	}
	if len(cfg.StopSequences) != 1 || cfg.StopSequences[0] != "END" {
		t.Errorf("stop = %v", cfg.StopSequences)
	}
}
