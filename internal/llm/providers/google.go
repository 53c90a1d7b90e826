package providers

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

// GoogleConfig configures the Gemini endpoint.
type GoogleConfig struct {
	APIKey string
}

// Google calls the Gemini generate-content API.
type Google struct {
	client *genai.Client
}

var _ llm.Endpoint = (*Google)(nil)

// NewGoogle creates a Gemini endpoint.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("google: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewProviderError("google", "", err)
	}
	return &Google{client: client}, nil
}

// Complete sends the conversation. Developer and system turns become the
// system instruction and assistant turns are sent with the model role.
func (p *Google) Complete(ctx context.Context, req llm.Request) (string, error) {
	system, dialogue := splitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(dialogue))
	for _, t := range dialogue {
		role := genai.RoleUser
		if t.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, buildGoogleConfig(system, req.Params))
	if err != nil {
		return "", NewProviderError("google", req.Model, err)
	}
	text := resp.Text()
	if text == "" {
		reason := ReasonEmptyReply
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = ReasonContentFilter
		}
		return "", NewProviderError("google", req.Model, errors.New("reply has no text")).WithReason(reason)
	}
	return text, nil
}

func buildGoogleConfig(system string, params map[string]any) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if v, ok := floatParam(params, ParamTemperature); ok {
		config.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := floatParam(params, ParamTopP); ok {
		config.TopP = genai.Ptr(float32(v))
	}
	if v, ok := intParam(params, ParamMaxTokens); ok {
		config.MaxOutputTokens = clampInt32(v)
	}
	if v, ok := intParam(params, ParamSeed); ok {
		config.Seed = genai.Ptr(clampInt32(v))
	}
	if v, ok := floatParam(params, ParamTopK); ok {
		config.TopK = genai.Ptr(float32(v))
	}
	if v, ok := floatParam(params, ParamPresencePenalty); ok {
		config.PresencePenalty = genai.Ptr(float32(v))
	}
	if v, ok := floatParam(params, ParamFrequencyPenalty); ok {
		config.FrequencyPenalty = genai.Ptr(float32(v))
	}
	if v, ok := intParam(params, ParamCandidateCount); ok {
		config.CandidateCount = clampInt32(v)
	}
	if v, ok := stringParam(params, ParamResponseMIMEType); ok {
		config.ResponseMIMEType = v
	}
	config.StopSequences = stringsParam(params, ParamStop)
	return config
}
