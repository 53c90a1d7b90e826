package llm

import "context"

// Request is a single completion call.
type Request struct {
	// Model is the provider-side model name.
	Model string
	// Messages is the full conversation, oldest first.
	Messages []Turn
	// Params are free-form generation parameters (temperature, max_tokens...).
	Params map[string]any
}

// Endpoint performs one completion call against a backend.
type Endpoint interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f EndpointFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
