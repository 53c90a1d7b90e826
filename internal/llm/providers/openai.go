package providers

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

// OpenAIConfig configures the OpenAI chat completions endpoint.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points the client at an OpenAI-compatible server.
	BaseURL string
	// Organization is sent as the OpenAI-Organization header when set.
	Organization string
}

// OpenAI calls the chat completions API.
type OpenAI struct {
	client *openai.Client
}

var _ llm.Endpoint = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI endpoint.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Organization != "" {
		clientConfig.OrgID = cfg.Organization
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Complete sends the conversation and returns the first choice.
func (p *OpenAI) Complete(ctx context.Context, req llm.Request) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	for _, t := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}
	applyOpenAIParams(&chatReq, req.Params)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", p.wrapError(err, req.Model)
	}
	if len(resp.Choices) == 0 {
		return "", NewProviderError("openai", req.Model, errors.New("response has no choices")).WithReason(ReasonEmptyReply)
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return "", NewProviderError("openai", req.Model, errors.New("reply withheld by content filter")).WithReason(ReasonContentFilter)
	}
	return resp.Choices[0].Message.Content, nil
}

// applyOpenAIParams copies generation parameters onto the request. Sampling
// knobs configured as zero are kept non-zero so they survive omitempty.
func applyOpenAIParams(chatReq *openai.ChatCompletionRequest, params map[string]any) {
	if v, ok := floatParam(params, ParamTemperature); ok {
		chatReq.Temperature = sendable32(v)
	}
	if v, ok := floatParam(params, ParamTopP); ok {
		chatReq.TopP = sendable32(v)
	}
	if v, ok := floatParam(params, ParamPresencePenalty); ok {
		chatReq.PresencePenalty = sendable32(v)
	}
	if v, ok := floatParam(params, ParamFrequencyPenalty); ok {
		chatReq.FrequencyPenalty = sendable32(v)
	}
	if v, ok := intParam(params, ParamMaxTokens); ok {
		chatReq.MaxTokens = v
	}
	if v, ok := intParam(params, ParamMaxCompletionTokens); ok {
		chatReq.MaxCompletionTokens = v
	}
	if v, ok := intParam(params, ParamSeed); ok {
		chatReq.Seed = &v
	}
	if v, ok := intParam(params, ParamN); ok {
		chatReq.N = v
	}
	if v, ok := intMapParam(params, ParamLogitBias); ok {
		chatReq.LogitBias = v
	}
	if v, ok := boolParam(params, ParamLogprobs); ok {
		chatReq.LogProbs = v
	}
	if v, ok := intParam(params, ParamTopLogprobs); ok {
		chatReq.TopLogProbs = v
	}
	if v, ok := stringParam(params, ParamUser); ok {
		chatReq.User = v
	}
	if v, ok := stringParam(params, ParamReasoningEffort); ok {
		chatReq.ReasoningEffort = v
	}
	if format := openAIResponseFormat(params[ParamResponseFormat]); format != nil {
		chatReq.ResponseFormat = format
	}
	chatReq.Stop = stringsParam(params, ParamStop)
}

// openAIResponseFormat accepts either a type name ("json_object") or a
// mapping with a type key.
func openAIResponseFormat(v any) *openai.ChatCompletionResponseFormat {
	var kind string
	switch f := v.(type) {
	case string:
		kind = f
	case map[string]any:
		kind, _ = f["type"].(string)
	}
	if kind == "" {
		return nil
	}
	return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatType(kind)}
}

func (p *OpenAI) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := NewProviderError("openai", model, err).WithStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			providerErr = providerErr.WithCode(code)
		}
		return providerErr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError("openai", model, err).WithStatus(reqErr.HTTPStatusCode)
	}
	return NewProviderError("openai", model, err)
}
