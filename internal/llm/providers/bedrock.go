package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

// BedrockConfig configures the Bedrock Converse endpoint. Static credentials
// are optional; without them the default AWS credential chain is used.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// converser is the subset of the bedrockruntime client used here.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock calls the Bedrock runtime Converse API.
type Bedrock struct {
	client converser
}

var _ llm.Endpoint = (*Bedrock)(nil)

// NewBedrock creates a Bedrock endpoint.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		// Attempts are counted by the agent.
		config.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}
	return &Bedrock{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// Complete sends the conversation and concatenates the reply's text blocks.
func (p *Bedrock) Complete(ctx context.Context, req llm.Request) (string, error) {
	system, dialogue := splitSystem(req.Messages)

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: make([]types.Message, 0, len(dialogue)),
	}
	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	for _, t := range dialogue {
		role := types.ConversationRoleUser
		if t.Role == llm.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: t.Content}},
		})
	}
	input.InferenceConfig = buildInferenceConfig(req.Params)
	if extra := passthroughParams(req.Params, ParamMaxTokens, ParamTemperature, ParamTopP, ParamStop); len(extra) > 0 {
		// Model-specific fields such as top_k go in the native request body.
		input.AdditionalModelRequestFields = document.NewLazyDocument(extra)
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return "", p.wrapError(err, req.Model)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", NewProviderError("bedrock", req.Model, errors.New("reply is not a message")).WithReason(ReasonEmptyReply)
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	if b.Len() == 0 {
		reason := ReasonEmptyReply
		if out.StopReason == types.StopReasonContentFiltered || out.StopReason == types.StopReasonGuardrailIntervened {
			reason = ReasonContentFilter
		}
		return "", NewProviderError("bedrock", req.Model, errors.New("reply has no text")).WithReason(reason)
	}
	return b.String(), nil
}

func buildInferenceConfig(params map[string]any) *types.InferenceConfiguration {
	var cfg types.InferenceConfiguration
	set := false
	if v, ok := intParam(params, ParamMaxTokens); ok {
		cfg.MaxTokens = aws.Int32(clampInt32(v))
		set = true
	}
	if v, ok := floatParam(params, ParamTemperature); ok {
		cfg.Temperature = aws.Float32(float32(v))
		set = true
	}
	if v, ok := floatParam(params, ParamTopP); ok {
		cfg.TopP = aws.Float32(float32(v))
		set = true
	}
	if stop := stringsParam(params, ParamStop); len(stop) > 0 {
		cfg.StopSequences = stop
		set = true
	}
	if !set {
		return nil
	}
	return &cfg
}

func (p *Bedrock) wrapError(err error, model string) error {
	providerErr := NewProviderError("bedrock", model, err)
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		providerErr = providerErr.WithStatus(respErr.HTTPStatusCode())
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithCode(apiErr.ErrorCode())
	}
	return providerErr
}
