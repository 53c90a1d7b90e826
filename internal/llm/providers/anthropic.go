package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicConfig configures the Anthropic messages endpoint.
type AnthropicConfig struct {
	APIKey string
	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string
	// MaxTokens is used when the request params do not set max_tokens.
	MaxTokens int
}

// Anthropic calls the messages API.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int
}

var _ llm.Endpoint = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic endpoint.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Attempts are counted by the agent.
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = anthropicDefaultMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(options...),
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Complete sends the conversation. Developer and system turns become the
// system prompt; the reply text blocks are concatenated.
func (p *Anthropic) Complete(ctx context.Context, req llm.Request) (string, error) {
	system, dialogue := splitSystem(req.Messages)

	maxTokens := p.maxTokens
	if v, ok := intParam(req.Params, ParamMaxTokens); ok && v > 0 {
		maxTokens = v
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(dialogue)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range dialogue {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == llm.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	if v, ok := floatParam(req.Params, ParamTemperature); ok {
		params.Temperature = anthropic.Float(v)
	}
	if v, ok := floatParam(req.Params, ParamTopP); ok {
		params.TopP = anthropic.Float(v)
	}
	if v, ok := intParam(req.Params, ParamTopK); ok {
		params.TopK = anthropic.Int(int64(v))
	}
	if stop := stringsParam(req.Params, ParamStop); len(stop) > 0 {
		params.StopSequences = stop
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.wrapError(err, req.Model)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", NewProviderError("anthropic", req.Model, errors.New("reply has no text blocks")).WithReason(ReasonEmptyReply)
	}
	return b.String(), nil
}

func (p *Anthropic) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode)
	}
	return NewProviderError("anthropic", model, err)
}
