package providers

import (
	"context"
	"errors"
	"testing"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown", func(t *testing.T) {
		_, err := New(ctx, Config{Provider: "mystery", Getenv: envFrom(nil)})
		if !errors.Is(err, ErrUnknownProvider) {
			t.Errorf("error = %v, want ErrUnknownProvider", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := New(ctx, Config{Getenv: envFrom(nil)})
		if !errors.Is(err, ErrUnknownProvider) {
			t.Errorf("error = %v, want ErrUnknownProvider", err)
		}
	})

	t.Run("openai without key", func(t *testing.T) {
		if _, err := New(ctx, Config{Provider: "openai", Getenv: envFrom(nil)}); err == nil {
			t.Error("expected missing key error")
		}
	})

	t.Run("openai key from env", func(t *testing.T) {
		endpoint, err := New(ctx, Config{Provider: "OpenAI", Getenv: envFrom(map[string]string{"OPENAI_API_KEY": "sk-test"})})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := endpoint.(*OpenAI); !ok {
			t.Errorf("endpoint = %T, want *OpenAI", endpoint)
		}
	})

	t.Run("anthropic explicit key", func(t *testing.T) {
		endpoint, err := New(ctx, Config{Provider: "anthropic", APIKey: "key", Getenv: envFrom(nil)})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		a, ok := endpoint.(*Anthropic)
		if !ok {
			t.Fatalf("endpoint = %T, want *Anthropic", endpoint)
		}
		if a.maxTokens != anthropicDefaultMaxTokens {
			t.Errorf("maxTokens = %d", a.maxTokens)
		}
	})

	t.Run("ollama host", func(t *testing.T) {
		endpoint, err := New(ctx, Config{Provider: "ollama", Getenv: envFrom(map[string]string{"OLLAMA_HOST": "gpu-box:11434"})})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		o, ok := endpoint.(*Ollama)
		if !ok {
			t.Fatalf("endpoint = %T, want *Ollama", endpoint)
		}
		if o.baseURL != "http://gpu-box:11434" {
			t.Errorf("baseURL = %q", o.baseURL)
		}
	})
}
