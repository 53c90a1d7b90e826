package models

import (
	"context"
	"fmt"
)

// Describable is implemented by entities that contribute identifying columns
// to every result row they take part in.
type Describable interface {
	Metadata() Record
}

// Generator produces a reply for a prompt. Failures are reported as absent
// values, never as errors.
type Generator interface {
	Generate(ctx context.Context, prompt string) Value
}

// Model is a describable generator.
type Model interface {
	Describable
	Generator
}

// Duplicable is implemented by models that can produce an independent copy
// with the same identity and a reset conversation.
type Duplicable interface {
	Duplicate() (Model, error)
}

// Subject is the participant side of a session. String returns the display
// label substituted for {{subject}}.
type Subject interface {
	Describable
	fmt.Stringer
}
