package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/llmexperiment/internal/observability"
	"github.com/haasonsaas/llmexperiment/internal/results"
)

const (
	// EnvConfigsDir overrides the directory holding the definition files.
	EnvConfigsDir = "LLMEXP_CONFIGS_DIR"
	// EnvResultsDir overrides the directory CSV results are written under.
	EnvResultsDir = "LLMEXP_RESULTS_DIR"

	defaultConfigsDir = "configs"
	defaultResultsDir = "results"
)

// AppConfig is the optional llmexp.yaml application configuration.
type AppConfig struct {
	Version    int           `yaml:"version"`
	ConfigsDir string        `yaml:"configs_dir"`
	Results    ResultsConfig `yaml:"results"`
	Logging    LoggingConfig `yaml:"logging"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Tracing    TracingConfig `yaml:"tracing"`
}

// ResultsConfig selects the result sinks. CSV is always written; SQL and S3
// are added when configured.
type ResultsConfig struct {
	Dir string    `yaml:"dir"`
	SQL SQLConfig `yaml:"sql"`
	S3  S3Config  `yaml:"s3"`
}

type SQLConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig points at a node-exporter textfile collector path.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type TracingConfig struct {
	Endpoint     string            `yaml:"endpoint"`
	ServiceName  string            `yaml:"service_name"`
	SamplingRate float64           `yaml:"sampling_rate"`
	Insecure     bool              `yaml:"insecure"`
	Attributes   map[string]string `yaml:"attributes"`
}

// Load reads the application configuration from path. An empty path yields
// the defaults. Environment overrides are applied after the file.
func Load(path string) (*AppConfig, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decodeRaw(raw, cfg, true); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg, getenv)
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvConfigsDir)); v != "" {
		cfg.ConfigsDir = v
	}
	if v := strings.TrimSpace(getenv(EnvResultsDir)); v != "" {
		cfg.Results.Dir = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.ConfigsDir == "" {
		cfg.ConfigsDir = defaultConfigsDir
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = defaultResultsDir
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "llmexp"
	}
	if cfg.Tracing.Endpoint != "" && cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

func validate(cfg *AppConfig) error {
	var errs []error
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format))
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not a level", cfg.Logging.Level))
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampling_rate must be within [0, 1]"))
	}
	if (cfg.Results.SQL.Driver == "") != (cfg.Results.SQL.DSN == "") {
		errs = append(errs, fmt.Errorf("results.sql needs both driver and dsn"))
	}
	if cfg.Results.S3.Bucket == "" && (cfg.Results.S3.Prefix != "" || cfg.Results.S3.Endpoint != "") {
		errs = append(errs, fmt.Errorf("results.s3.bucket is required when s3 is configured"))
	}
	return errors.Join(errs...)
}

// LogConfig maps the logging section onto the logger configuration.
func (c *AppConfig) LogConfig() observability.LogConfig {
	return observability.LogConfig{Level: c.Logging.Level, Format: c.Logging.Format}
}

// TraceConfig maps the tracing section onto the tracer configuration.
func (c *AppConfig) TraceConfig(version string) observability.TraceConfig {
	return observability.TraceConfig{
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       c.Tracing.Endpoint,
		SamplingRate:   c.Tracing.SamplingRate,
		Attributes:     c.Tracing.Attributes,
		Insecure:       c.Tracing.Insecure,
	}
}

// SQLEnabled reports whether a SQL sink is configured.
func (c *AppConfig) SQLEnabled() bool { return c.Results.SQL.DSN != "" }

// S3Enabled reports whether an S3 sink is configured.
func (c *AppConfig) S3Enabled() bool { return c.Results.S3.Bucket != "" }

func (c *AppConfig) SQLSinkConfig() results.SQLConfig {
	return results.SQLConfig{Driver: c.Results.SQL.Driver, DSN: c.Results.SQL.DSN}
}

func (c *AppConfig) S3SinkConfig() results.S3Config {
	return results.S3Config{
		Bucket:       c.Results.S3.Bucket,
		Prefix:       c.Results.S3.Prefix,
		Region:       c.Results.S3.Region,
		Endpoint:     c.Results.S3.Endpoint,
		UsePathStyle: c.Results.S3.UsePathStyle,
	}
}
