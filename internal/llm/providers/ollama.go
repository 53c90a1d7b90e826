package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// OllamaConfig configures a local Ollama server endpoint.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient replaces the default client when set.
	HTTPClient *http.Client
}

// Ollama calls the /api/chat endpoint without streaming.
type Ollama struct {
	client  *http.Client
	baseURL string
}

var _ llm.Endpoint = (*Ollama)(nil)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewOllama creates an Ollama endpoint.
func NewOllama(cfg OllamaConfig) *Ollama {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Ollama{client: client, baseURL: baseURL}
}

// Complete sends the conversation. Developer turns are sent as system turns.
func (p *Ollama) Complete(ctx context.Context, req llm.Request) (string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", NewProviderError("ollama", req.Model, errors.New("model is required")).WithReason(ReasonInvalidRequest)
	}

	payload := ollamaChatRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(req.Messages)),
		Options:  ollamaOptions(req.Params),
	}
	for _, t := range req.Messages {
		role := string(t.Role)
		if t.Role == llm.RoleDeveloper {
			role = string(llm.RoleSystem)
		}
		payload.Messages = append(payload.Messages, ollamaMessage{Role: role, Content: t.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", NewProviderError("ollama", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if err != nil {
			return "", NewProviderError("ollama", model, fmt.Errorf("ollama status %d (read body failed: %w)", resp.StatusCode, err)).WithStatus(resp.StatusCode)
		}
		return "", NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err))
	}
	if out.Error != "" {
		return "", NewProviderError("ollama", model, errors.New(out.Error))
	}
	if out.Message.Content == "" {
		return "", NewProviderError("ollama", model, errors.New("reply has no content")).WithReason(ReasonEmptyReply)
	}
	return out.Message.Content, nil
}

// ollamaOptions translates the shared parameter names and forwards every
// other key as a native Ollama option (num_ctx, repeat_penalty...).
func ollamaOptions(params map[string]any) map[string]any {
	opts := passthroughParams(params, ParamTemperature, ParamTopP, ParamMaxTokens, ParamSeed, ParamStop)
	if v, ok := floatParam(params, ParamTemperature); ok {
		opts["temperature"] = v
	}
	if v, ok := floatParam(params, ParamTopP); ok {
		opts["top_p"] = v
	}
	if v, ok := intParam(params, ParamMaxTokens); ok {
		opts["num_predict"] = v
	}
	if v, ok := intParam(params, ParamSeed); ok {
		opts["seed"] = v
	}
	if stop := stringsParam(params, ParamStop); len(stop) > 0 {
		opts["stop"] = stop
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
