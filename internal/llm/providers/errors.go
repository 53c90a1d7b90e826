package providers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Reason categorizes why a completion call failed. It is recorded as the
// absence reason of a measure and used as a metrics label.
type Reason string

const (
	// ReasonBilling indicates payment/quota issues (HTTP 402)
	ReasonBilling Reason = "billing"

	// ReasonRateLimit indicates rate limiting (HTTP 429)
	ReasonRateLimit Reason = "rate_limit"

	// ReasonAuth indicates authentication failure (HTTP 401, 403)
	ReasonAuth Reason = "auth"

	// ReasonTimeout indicates request timeout
	ReasonTimeout Reason = "timeout"

	// ReasonServerError indicates server-side issues (HTTP 5xx)
	ReasonServerError Reason = "server_error"

	// ReasonInvalidRequest indicates client-side issues (HTTP 400)
	ReasonInvalidRequest Reason = "invalid_request"

	// ReasonModelUnavailable indicates the model is not available
	ReasonModelUnavailable Reason = "model_unavailable"

	// ReasonContentFilter indicates content was blocked by safety filters
	ReasonContentFilter Reason = "content_filter"

	// ReasonEmptyReply indicates the backend answered without any text
	ReasonEmptyReply Reason = "empty_reply"

	// ReasonUnknown indicates an unclassified error
	ReasonUnknown Reason = "unknown"
)

// ProviderError is a structured failure from a completion backend.
type ProviderError struct {
	Reason   Reason
	Provider string
	Model    string
	Status   int
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause, classifying it from its message.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithCode records a provider error code and reclassifies from it when known.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithReason overrides the classification.
func (e *ProviderError) WithReason(r Reason) *ProviderError {
	e.Reason = r
	return e
}

// statusPattern finds an HTTP status code stated as such in an error
// message ("status code: 429", "HTTP 503", "status=401"). Bare numbers are
// not treated as statuses.
var statusPattern = regexp.MustCompile(`(?i)\b(?:status(?:[ _]?code)?|http(?:/[0-9.]+)?)\s*[:=]?\s*([1-5][0-9]{2})\b`)

// ClassifyError inspects an error message and returns the matching Reason.
// A stated HTTP status wins over keywords.
func ClassifyError(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	errStr := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(errStr); m != nil {
		if status, convErr := strconv.Atoi(m[1]); convErr == nil {
			if reason := classifyStatusCode(status); reason != ReasonUnknown {
				return reason
			}
		}
	}
	switch {
	case containsAny(errStr, "timeout", "deadline exceeded", "etimedout"):
		return ReasonTimeout
	case containsAny(errStr, "rate limit", "rate_limit", "too many requests", "throttl"):
		return ReasonRateLimit
	case containsAny(errStr, "unauthorized", "invalid api key", "invalid_api_key", "authentication"):
		return ReasonAuth
	case containsAny(errStr, "billing", "payment required", "quota", "insufficient_quota"):
		return ReasonBilling
	case containsAny(errStr, "content_filter", "content policy", "safety", "blocked"):
		return ReasonContentFilter
	case containsAny(errStr, "model not found", "model_not_found", "does not exist"):
		return ReasonModelUnavailable
	case containsAny(errStr, "internal server", "server error", "unavailable", "overloaded"):
		return ReasonServerError
	}
	return ReasonUnknown
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func classifyStatusCode(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyErrorCode(code string) Reason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "throttlingexception", "toomanyrequestsexception":
		return ReasonRateLimit
	case "authentication_error", "invalid_api_key", "accessdeniedexception", "unrecognizedclientexception":
		return ReasonAuth
	case "billing_error", "insufficient_quota":
		return ReasonBilling
	case "model_not_found", "model_not_available", "resourcenotfoundexception", "modelnotreadyexception":
		return ReasonModelUnavailable
	case "content_policy_violation", "content_filter":
		return ReasonContentFilter
	case "server_error", "internal_error", "overloaded_error", "internalserverexception", "serviceunavailableexception":
		return ReasonServerError
	case "modeltimeoutexception":
		return ReasonTimeout
	case "invalid_request_error", "validationexception":
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// ReasonOf returns the classification of any error.
func ReasonOf(err error) Reason {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason
	}
	return ClassifyError(err)
}
