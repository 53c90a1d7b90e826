// Package parsers turns free-text model replies into typed measurements.
//
// Parsers never fail: malformed input, bad parameters and internal panics all
// produce an absent value carrying the reason.
package parsers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// Built-in parser names.
const (
	NameInt        = "parse_int"
	NameIntInScale = "parse_int_in_scale"
	NameYesOrNo    = "parse_yes_or_no"
)

var (
	// ErrParserNotFound is returned by Lookup for unregistered names.
	ErrParserNotFound = errors.New("parser not found")
	// ErrParserPanic marks a parser that panicked while running.
	ErrParserPanic = errors.New("parser panicked")
	// ErrNotText is the reason for absent or non-string input.
	ErrNotText = errors.New("input is not text")
	// ErrNoNumber means no integer could be read from the input.
	ErrNoNumber = errors.New("no integer in input")
	// ErrOutOfRange means the integer overflowed.
	ErrOutOfRange = errors.New("integer out of range")
	// ErrOutOfScale means the integer fell outside the configured bounds.
	ErrOutOfScale = errors.New("integer outside scale")
	// ErrInvalidParam means a keyword parameter had an unusable type.
	ErrInvalidParam = errors.New("invalid parser parameter")
	// ErrNoMatch means no yes/no synonym matched and no default was given.
	ErrNoMatch = errors.New("no yes/no match")
)

// Params are the keyword parameters configured for a measure.
type Params map[string]any

// Parser converts a raw reply into a measurement.
type Parser func(text models.Value, params Params) models.Value

// Registry maps parser names to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Default returns a registry holding the built-in parsers.
func Default() *Registry {
	r := NewRegistry()
	r.Register(NameInt, ParseInt)
	r.Register(NameIntInScale, ParseIntInScale)
	r.Register(NameYesOrNo, ParseYesOrNo)
	return r
}

// Register adds or replaces a parser.
func (r *Registry) Register(name string, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[name] = p
}

// Lookup returns the parser registered under name.
func (r *Registry) Lookup(name string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParserNotFound, name)
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply resolves name and runs the parser on text. Lookup failures and
// panics are reported as absent values.
func (r *Registry) Apply(name string, text models.Value, params Params) (out models.Value) {
	p, err := r.Lookup(name)
	if err != nil {
		return models.Absent(err)
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = models.Absent(fmt.Errorf("%w: %s: %v", ErrParserPanic, name, rec))
		}
	}()
	return p(text, params)
}
