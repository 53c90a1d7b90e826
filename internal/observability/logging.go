package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger is a slog-backed structured logger that tags records with the
// experiment coordinates found in the context and redacts credentials.
//
// Usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	ctx = observability.WithRunID(ctx, "pilot")
//	logger.Info(ctx, "experiment finished", "rows", 12)
//
// A nil *Logger discards everything.
type Logger struct {
	logger *slog.Logger
	redact *redactor
}

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level is one of "debug", "info", "warn" or "error". Default "info".
	Level string

	// Format is "json" (default) or "text".
	Format string

	// Output defaults to os.Stderr so that stdout stays free for command
	// output.
	Output io.Writer

	AddSource bool

	// RedactPatterns are extra regular expressions whose matches are masked.
	RedactPatterns []string
}

// DefaultRedactPatterns mask provider credentials that can surface in
// error messages returned by SDKs.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?[a-zA-Z0-9_\-]{16,}["']?`,
	`(?i)bearer\s+[a-zA-Z0-9_\-\.]{16,}`,
	`sk-ant-[a-zA-Z0-9_-]{32,}`,
	`sk-(proj-)?[a-zA-Z0-9_-]{32,}`,
	`AIza[0-9A-Za-z_\-]{35}`,
	`(AKIA|ASIA)[0-9A-Z]{16}`,
}

const redacted = "[REDACTED]"

// NewLogger builds a Logger from config, filling in defaults.
func NewLogger(config LogConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		redact: newRedactor(append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...)),
	}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return NewLogger(LogConfig{Output: io.Discard, Level: "error"})
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

// Error logs at error level. Errors passed as values are rendered to
// strings so that redaction applies to their text.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}

	attrs := scopeFrom(ctx).attrs()
	for _, arg := range args {
		attrs = append(attrs, l.redact.value(arg))
	}
	l.logger.Log(ctx, level, l.redact.text(msg), attrs...)
}

// WithFields returns a logger that adds args to every record.
func (l *Logger) WithFields(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With(args...), redact: l.redact}
}

// Slog exposes the underlying slog.Logger so it can be installed as the
// process default.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.logger
}

// LogLevelFromString maps a level name to a slog.Level, defaulting to info.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Context scope
// =============================================================================

type scopeKey struct{}

// scope holds the experiment coordinates a record is logged under.
type scope struct {
	run, experiment, condition, participant string
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func (s scope) attrs() []any {
	var attrs []any
	for _, f := range [...]struct{ key, value string }{
		{"run_id", s.run},
		{"experiment_id", s.experiment},
		{"condition_id", s.condition},
		{"participant_id", s.participant},
	} {
		if f.value != "" {
			attrs = append(attrs, f.key, f.value)
		}
	}
	return attrs
}

func withScope(ctx context.Context, update func(*scope)) context.Context {
	s := scopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithRunID tags ctx with the run being executed.
func WithRunID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.run = id })
}

// WithExperimentID tags ctx with the current experiment.
func WithExperimentID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.experiment = id })
}

// WithConditionID tags ctx with the current condition.
func WithConditionID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.condition = id })
}

// WithParticipantID tags ctx with the current participant.
func WithParticipantID(ctx context.Context, id string) context.Context {
	return withScope(ctx, func(s *scope) { s.participant = id })
}

// =============================================================================
// Redaction
// =============================================================================

// sensitiveKeys are map keys whose values are always masked, normalized to
// lower case with underscores.
var sensitiveKeys = map[string]bool{
	"api_key":           true,
	"apikey":            true,
	"authorization":     true,
	"password":          true,
	"secret":            true,
	"secret_access_key": true,
	"session_token":     true,
	"token":             true,
}

type redactor struct {
	patterns []*regexp.Regexp
}

// newRedactor compiles patterns, ignoring any that are invalid.
func newRedactor(patterns []string) *redactor {
	r := &redactor{}
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			r.patterns = append(r.patterns, re)
		}
	}
	return r
}

func (r *redactor) text(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

func (r *redactor) value(v any) any {
	switch val := v.(type) {
	case string:
		return r.text(val)
	case error:
		return r.text(val.Error())
	case []byte:
		return r.text(string(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if sensitiveKeys[strings.ToLower(strings.ReplaceAll(k, "-", "_"))] {
				out[k] = redacted
				continue
			}
			out[k] = r.value(inner)
		}
		return out
	case bool, int, int64, float64, slog.Attr:
		return v
	default:
		if b, err := json.Marshal(v); err == nil {
			return r.text(string(b))
		}
		return v
	}
}
