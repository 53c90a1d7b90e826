package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

// ErrUnknownProvider is returned by New for unsupported provider names.
var ErrUnknownProvider = errors.New("unknown provider")

// Config selects and configures an endpoint. Empty credentials fall back to
// the provider's usual environment variables.
type Config struct {
	Provider     string `yaml:"provider" json:"provider"`
	APIKey       string `yaml:"api_key" json:"api_key"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	Organization string `yaml:"organization" json:"organization"`
	Region       string `yaml:"region" json:"region"`
	MaxTokens    int    `yaml:"max_tokens" json:"max_tokens"`

	// Getenv replaces os.Getenv when set.
	Getenv func(string) string `yaml:"-" json:"-"`
}

// Names lists the accepted provider names.
func Names() []string {
	return []string{"anthropic", "bedrock", "gemini", "google", "ollama", "openai"}
}

// New builds the endpoint for cfg.Provider.
func New(ctx context.Context, cfg Config) (llm.Endpoint, error) {
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	key := func(names ...string) string {
		if cfg.APIKey != "" {
			return cfg.APIKey
		}
		for _, name := range names {
			if v := strings.TrimSpace(getenv(name)); v != "" {
				return v
			}
		}
		return ""
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = getenv("OPENAI_BASE_URL")
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:       key("OPENAI_API_KEY"),
			BaseURL:      baseURL,
			Organization: cfg.Organization,
		})
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey:    key("ANTHROPIC_API_KEY"),
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		})
	case "google", "gemini":
		return NewGoogle(ctx, GoogleConfig{APIKey: key("GEMINI_API_KEY", "GOOGLE_API_KEY")})
	case "bedrock", "aws":
		region := cfg.Region
		if region == "" {
			region = getenv("AWS_REGION")
		}
		return NewBedrock(ctx, BedrockConfig{Region: region})
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = getenv("OLLAMA_HOST")
		}
		if baseURL != "" && !strings.Contains(baseURL, "://") {
			baseURL = "http://" + baseURL
		}
		return NewOllama(OllamaConfig{BaseURL: baseURL}), nil
	case "":
		return nil, fmt.Errorf("%w: provider is empty", ErrUnknownProvider)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
