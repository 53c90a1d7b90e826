package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/llmexperiment/internal/experiments"
	"github.com/haasonsaas/llmexperiment/internal/llm"
	"github.com/haasonsaas/llmexperiment/internal/llm/providers"
	"github.com/haasonsaas/llmexperiment/internal/observability"
)

// Definition file base names inside the configs directory.
const (
	ExperimentsFile  = "experiments"
	ModelsFile       = "models"
	ParticipantsFile = "participants"
	RunsFile         = "runs"
)

var definitionExts = []string{".yaml", ".yml", ".json", ".json5"}

// ModelDefinition is one entry of models.yaml.
type ModelDefinition struct {
	ID                string           `yaml:"id"`
	Name              string           `yaml:"name"`
	Provider          string           `yaml:"provider"`
	ProviderModelName string           `yaml:"provider_model_name"`
	Params            map[string]any   `yaml:"params"`
	Settings          ModelSettings    `yaml:"settings"`
	Endpoint          providers.Config `yaml:"endpoint"`
}

// ModelSettings holds the retry and prompt knobs of a model.
type ModelSettings struct {
	NRetries int `yaml:"n_retries"`
	// RetryDelay and MaxRetryDelay are in seconds.
	RetryDelay    float64 `yaml:"retry_delay"`
	RetryBackoff  float64 `yaml:"retry_backoff"`
	MaxRetryDelay float64 `yaml:"max_retry_delay"`
	SystemPrompt  string  `yaml:"system_prompt"`
}

// AgentSpec converts the definition into an agent spec.
func (m ModelDefinition) AgentSpec() llm.Spec {
	return llm.Spec{
		ID:            m.ID,
		Name:          m.Name,
		Provider:      m.Provider,
		ProviderModel: m.ProviderModelName,
		Params:        m.Params,
		Settings: llm.Settings{
			Retries:       m.Settings.NRetries,
			RetryDelay:    seconds(m.Settings.RetryDelay),
			RetryBackoff:  m.Settings.RetryBackoff,
			MaxRetryDelay: seconds(m.Settings.MaxRetryDelay),
			SystemPrompt:  m.Settings.SystemPrompt,
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ProviderConfig returns the endpoint configuration. The endpoint block may
// name a different backend than the display provider, e.g. an OpenAI-compatible
// gateway serving a third-party model.
func (m ModelDefinition) ProviderConfig() providers.Config {
	cfg := m.Endpoint
	if cfg.Provider == "" {
		cfg.Provider = m.Provider
	}
	return cfg
}

// RunDefinition is one entry of runs.yaml.
type RunDefinition struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Experiments []RunExperiment `yaml:"experiments"`
}

// RunExperiment selects the models an experiment runs against.
type RunExperiment struct {
	ExperimentID string     `yaml:"experiment_id"`
	Models       []RunModel `yaml:"models"`
}

// RunModel selects a model and how many times the experiment repeats.
type RunModel struct {
	ModelID     string `yaml:"model_id"`
	NIterations *int   `yaml:"n_iterations"`
}

// Iterations returns n_iterations, defaulting to 1 when unset.
func (m RunModel) Iterations() int {
	if m.NIterations == nil {
		return 1
	}
	return max(*m.NIterations, 0)
}

// String renders the run banner title.
func (r RunDefinition) String() string {
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}

// Catalog holds every definition loaded from a configs directory, in
// declared order.
type Catalog struct {
	Dir          string
	Experiments  []experiments.Spec
	Models       []ModelDefinition
	Participants []*experiments.Participant
	Runs         []RunDefinition
}

func (c *Catalog) Experiment(id string) (experiments.Spec, bool) {
	for _, e := range c.Experiments {
		if e.ID == id {
			return e, true
		}
	}
	return experiments.Spec{}, false
}

func (c *Catalog) Model(id string) (ModelDefinition, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDefinition{}, false
}

func (c *Catalog) Run(id string) (RunDefinition, bool) {
	for _, r := range c.Runs {
		if r.ID == id {
			return r, true
		}
	}
	return RunDefinition{}, false
}

// Warning is a recoverable problem found while loading the catalog.
type Warning struct {
	File       string
	Collection string
	Index      int
	Message    string
}

func (w Warning) String() string {
	if w.Index < 0 {
		return fmt.Sprintf("%s: %s", w.File, w.Message)
	}
	return fmt.Sprintf("%s: %s[%d]: %s", w.File, w.Collection, w.Index, w.Message)
}

// LoadCatalog reads the four definition files from dir. Missing files,
// entries without an id and malformed entries become warnings; unreadable or
// unparsable files are errors. Of two entries sharing an id the later wins.
func LoadCatalog(dir string, logger *observability.Logger) (*Catalog, []Warning, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("configs dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("configs dir %s is not a directory", dir)
	}

	l := &catalogLoader{dir: dir, catalog: &Catalog{Dir: dir}}
	steps := []struct {
		base string
		load func(file string, entries []any)
	}{
		{ExperimentsFile, l.experiments},
		{ModelsFile, l.models},
		{ParticipantsFile, l.participants},
		{RunsFile, l.runs},
	}
	for _, step := range steps {
		file, entries, err := l.read(step.base)
		if err != nil {
			return nil, nil, err
		}
		if file != "" {
			step.load(file, entries)
		}
	}

	ctx := context.Background()
	for _, w := range l.warnings {
		logger.Warn(ctx, "config warning", "file", w.File, "collection", w.Collection, "index", w.Index, "reason", w.Message)
	}
	return l.catalog, l.warnings, nil
}

type catalogLoader struct {
	dir      string
	catalog  *Catalog
	warnings []Warning
}

func (l *catalogLoader) warn(file, collection string, index int, format string, args ...any) {
	l.warnings = append(l.warnings, Warning{
		File:       file,
		Collection: collection,
		Index:      index,
		Message:    fmt.Sprintf(format, args...),
	})
}

// read locates base with any supported extension and returns the list under
// the collection key of the same name.
func (l *catalogLoader) read(base string) (string, []any, error) {
	var path string
	for _, ext := range definitionExts {
		candidate := filepath.Join(l.dir, base+ext)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, err
		}
	}
	if path == "" {
		l.warn(base+".yaml", base, -1, "file not found")
		return "", nil, nil
	}
	file := filepath.Base(path)

	raw, err := LoadRaw(path)
	if err != nil {
		return "", nil, fmt.Errorf("load %s: %w", file, err)
	}
	value, ok := raw[base]
	if !ok || value == nil {
		l.warn(file, base, -1, "no %q list", base)
		return file, nil, nil
	}
	entries, ok := value.([]any)
	if !ok {
		return "", nil, fmt.Errorf("load %s: %q must be a list", file, base)
	}
	return file, entries, nil
}

// decodeEntry decodes entry into out, returning false after recording a
// warning when the entry is malformed or has no id.
func (l *catalogLoader) decodeEntry(file, collection string, index int, entry any, out any) bool {
	m, ok := entry.(map[string]any)
	if !ok {
		l.warn(file, collection, index, "entry is not a mapping")
		return false
	}
	if id, ok := m["id"]; !ok || id == nil || fmt.Sprint(id) == "" {
		l.warn(file, collection, index, "entry has no id")
		return false
	}
	if err := decodeRaw(m, out, false); err != nil {
		l.warn(file, collection, index, "decode: %v", err)
		return false
	}
	return true
}

func (l *catalogLoader) experiments(file string, entries []any) {
	for i, entry := range entries {
		var cfg experiments.ExperimentConfig
		if !l.decodeEntry(file, ExperimentsFile, i, entry, &cfg) {
			continue
		}
		spec, warnings, err := cfg.Spec()
		if err != nil {
			l.warn(file, ExperimentsFile, i, "%v", err)
			continue
		}
		for _, w := range warnings {
			l.warn(file, ExperimentsFile, i, "%s", w)
		}
		l.catalog.Experiments = upsert(l.catalog.Experiments, spec, func(s experiments.Spec) string { return s.ID })
	}
}

func (l *catalogLoader) models(file string, entries []any) {
	for i, entry := range entries {
		var def ModelDefinition
		if !l.decodeEntry(file, ModelsFile, i, entry, &def) {
			continue
		}
		l.catalog.Models = upsert(l.catalog.Models, def, func(m ModelDefinition) string { return m.ID })
	}
}

func (l *catalogLoader) participants(file string, entries []any) {
	for i, entry := range entries {
		var cfg experiments.ParticipantConfig
		if !l.decodeEntry(file, ParticipantsFile, i, entry, &cfg) {
			continue
		}
		p, warnings := cfg.Participant()
		for _, w := range warnings {
			l.warn(file, ParticipantsFile, i, "%s", w)
		}
		l.catalog.Participants = upsert(l.catalog.Participants, p, func(p *experiments.Participant) string { return p.ID() })
	}
}

func (l *catalogLoader) runs(file string, entries []any) {
	for i, entry := range entries {
		var def RunDefinition
		if !l.decodeEntry(file, RunsFile, i, entry, &def) {
			continue
		}
		for j, e := range def.Experiments {
			if e.ExperimentID == "" {
				l.warn(file, RunsFile, i, "experiment %d has no experiment_id", j)
			}
			for k, m := range e.Models {
				if m.ModelID == "" {
					l.warn(file, RunsFile, i, "experiment %d model %d has no model_id", j, k)
				}
			}
		}
		l.catalog.Runs = upsert(l.catalog.Runs, def, func(r RunDefinition) string { return r.ID })
	}
}

// upsert replaces the entry with the same key in place or appends.
func upsert[T any](list []T, item T, key func(T) string) []T {
	k := key(item)
	for i := range list {
		if key(list[i]) == k {
			list[i] = item
			return list
		}
	}
	return append(list, item)
}
