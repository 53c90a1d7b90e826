package providers

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/haasonsaas/llmexperiment/internal/llm"
)

// Generation parameter names. The first five are understood by every
// endpoint; the rest only by backends with a matching request field.
const (
	ParamTemperature = "temperature"
	ParamTopP        = "top_p"
	ParamMaxTokens   = "max_tokens"
	ParamStop        = "stop"
	ParamSeed        = "seed"

	ParamTopK                = "top_k"
	ParamPresencePenalty     = "presence_penalty"
	ParamFrequencyPenalty    = "frequency_penalty"
	ParamN                   = "n"
	ParamLogitBias           = "logit_bias"
	ParamLogprobs            = "logprobs"
	ParamTopLogprobs         = "top_logprobs"
	ParamUser                = "user"
	ParamResponseFormat      = "response_format"
	ParamMaxCompletionTokens = "max_completion_tokens"
	ParamReasoningEffort     = "reasoning_effort"
	ParamCandidateCount      = "candidate_count"
	ParamResponseMIMEType    = "response_mime_type"
)

// mappedParams lists, per provider, the parameters copied into typed request
// fields. Providers absent from the table (ollama, bedrock) forward every
// other key to the backend unchanged.
var mappedParams = map[string][]string{
	"openai": {
		ParamTemperature, ParamTopP, ParamMaxTokens, ParamStop, ParamSeed,
		ParamPresencePenalty, ParamFrequencyPenalty, ParamN, ParamLogitBias,
		ParamLogprobs, ParamTopLogprobs, ParamUser, ParamResponseFormat,
		ParamMaxCompletionTokens, ParamReasoningEffort,
	},
	"anthropic": {
		ParamTemperature, ParamTopP, ParamTopK, ParamMaxTokens, ParamStop,
	},
	"google": {
		ParamTemperature, ParamTopP, ParamTopK, ParamMaxTokens, ParamStop, ParamSeed,
		ParamPresencePenalty, ParamFrequencyPenalty, ParamCandidateCount,
		ParamResponseMIMEType,
	},
}

// IgnoredParams returns, sorted, the keys of params that provider has no
// request field for and would therefore not send.
func IgnoredParams(provider string, params map[string]any) []string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "gemini" {
		provider = "google"
	}
	known, ok := mappedParams[provider]
	if !ok {
		return nil
	}
	var ignored []string
	for _, key := range slices.Sorted(maps.Keys(params)) {
		if !slices.Contains(known, key) {
			ignored = append(ignored, key)
		}
	}
	return ignored
}

// passthroughParams returns the entries of params not listed in handled.
func passthroughParams(params map[string]any, handled ...string) map[string]any {
	rest := make(map[string]any)
	for key, value := range params {
		if !slices.Contains(handled, key) {
			rest[key] = value
		}
	}
	return rest
}

// sendable32 converts v for a float32 field tagged omitempty. Zero would be
// dropped from the request, so it is sent as the smallest positive float32.
func sendable32(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		if v > math.MaxInt32 {
			return math.MaxInt32, true
		}
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

func boolParam(params map[string]any, key string) (bool, bool) {
	v, ok := params[key].(bool)
	return v, ok
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok && v != ""
}

// intMapParam reads a mapping of string keys to integers, such as
// logit_bias.
func intMapParam(params map[string]any, key string) (map[string]int, bool) {
	raw, ok := params[key].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		n, ok := intParam(map[string]any{k: v}, k)
		if !ok {
			return nil, false
		}
		out[k] = n
	}
	return out, true
}

func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func clampInt32(n int) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	// #nosec G115 -- bounded above
	return int32(n)
}

// splitSystem separates instruction turns (system and developer roles) from
// the dialogue, for backends that take the instructions out of band.
func splitSystem(turns []llm.Turn) (system string, dialogue []llm.Turn) {
	var instructions []string
	for _, t := range turns {
		switch t.Role {
		case llm.RoleSystem, llm.RoleDeveloper:
			instructions = append(instructions, t.Content)
		default:
			dialogue = append(dialogue, t)
		}
	}
	return strings.Join(instructions, "\n\n"), dialogue
}
