package config

import (
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/llmexperiment/internal/observability"
)

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "experiments.yaml", `
experiments:
  - id: trust
    title: Trust game
    scenario:
      - role: narrator
        content: "{{subject}} is offered $10."
      - content: How much do you send?
        measure: sent
        parser:
          name: parse_int
    conditions:
      - id: warm
        title: Warm
  - title: no id here
  - just a string
`)
	writeFile(t, dir, "models.yaml", `
models:
  - id: gpt
    name: GPT
    provider: openai
    provider_model_name: gpt-4o-mini
    params:
      temperature: 0.2
    settings:
      n_retries: 3
      retry_delay: 1.5
  - id: local
    name: Local
    provider: meta
    provider_model_name: llama3
    endpoint:
      provider: ollama
      base_url: http://gpu-box:11434
  - id: gpt
    name: GPT override
    provider: openai
    provider_model_name: gpt-4o
`)
	writeFile(t, dir, "participants.json", `{
  "participants": [
    {"id": "p1", "name": "Sam", "gender": "male",
     "experiments_conditions": [{"experiment_id": "trust", "condition_id": "warm"}]},
    {"name": "anonymous"}
  ]
}`)
	writeFile(t, dir, "runs.yaml", `
runs:
  - id: pilot
    title: Pilot run
    experiments:
      - experiment_id: trust
        models:
          - model_id: gpt
            n_iterations: 2
          - model_id: local
          - model_id: skipped
            n_iterations: 0
`)
	return dir
}

func TestLoadCatalog(t *testing.T) {
	cat, warnings, err := LoadCatalog(writeCatalog(t), observability.NopLogger())
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	if len(cat.Experiments) != 1 {
		t.Fatalf("experiments = %+v", cat.Experiments)
	}
	exp, ok := cat.Experiment("trust")
	if !ok || len(exp.Scenario) != 2 || exp.Scenario[1].Parser.Name != "parse_int" {
		t.Errorf("experiment = %+v", exp)
	}
	if !strings.Contains(exp.Scenario[0].Content, "$10") {
		t.Errorf("prompt text mangled: %q", exp.Scenario[0].Content)
	}

	if len(cat.Models) != 2 {
		t.Fatalf("models = %+v", cat.Models)
	}
	gpt, _ := cat.Model("gpt")
	if gpt.Name != "GPT override" || gpt.ProviderModelName != "gpt-4o" {
		t.Errorf("later duplicate should win, got %+v", gpt)
	}
	local, _ := cat.Model("local")
	if pc := local.ProviderConfig(); pc.Provider != "ollama" || pc.BaseURL != "http://gpu-box:11434" {
		t.Errorf("ProviderConfig() = %+v", pc)
	}

	if len(cat.Participants) != 1 || !cat.Participants[0].InCondition("warm") {
		t.Errorf("participants = %+v", cat.Participants)
	}

	run, ok := cat.Run("pilot")
	if !ok || run.String() != "Pilot run" {
		t.Fatalf("run = %+v", run)
	}
	models := run.Experiments[0].Models
	wantIterations := []int{2, 1, 0}
	for i, want := range wantIterations {
		if got := models[i].Iterations(); got != want {
			t.Errorf("models[%d].Iterations() = %d, want %d", i, got, want)
		}
	}

	// Two bad experiments plus one participant without id.
	if len(warnings) != 3 {
		t.Errorf("warnings = %v, want 3", warnings)
	}
	for _, w := range warnings {
		if w.Index < 0 {
			t.Errorf("unexpected file-level warning %s", w)
		}
	}
}

func TestModelDefinitionAgentSpec(t *testing.T) {
	cat, _, err := LoadCatalog(writeCatalog(t), nil)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	cat.Models[0].Settings = ModelSettings{NRetries: 3, RetryDelay: 1.5, SystemPrompt: "Be brief."}
	spec := cat.Models[0].AgentSpec()
	if spec.ID != "gpt" || spec.ProviderModel != "gpt-4o" || spec.Provider != "openai" {
		t.Errorf("AgentSpec() = %+v", spec)
	}
	if spec.Settings.Retries != 3 || spec.Settings.RetryDelay != 1500*time.Millisecond || spec.Settings.SystemPrompt != "Be brief." {
		t.Errorf("Settings = %+v", spec.Settings)
	}
}

func TestLoadCatalogMissingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "models.yaml", "models:\n  - id: m1\n    provider: openai\n")

	cat, warnings, err := LoadCatalog(dir, nil)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(cat.Models) != 1 {
		t.Errorf("models = %+v", cat.Models)
	}
	if len(warnings) != 3 {
		t.Fatalf("warnings = %v, want one per missing file", warnings)
	}
	if warnings[0].File != "experiments.yaml" || warnings[0].Index != -1 {
		t.Errorf("warnings[0] = %+v", warnings[0])
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		wantErr bool
	}{
		{"missing dir", func(t *testing.T) string { return t.TempDir() + "/nope" }, true},
		{"file not dir", func(t *testing.T) string { return writeFile(t, t.TempDir(), "runs.yaml", "runs: []\n") }, true},
		{"unparsable", func(t *testing.T) string {
			dir := t.TempDir()
			writeFile(t, dir, "runs.yaml", "runs: [\n")
			return dir
		}, true},
		{"collection not a list", func(t *testing.T) string {
			dir := t.TempDir()
			writeFile(t, dir, "models.yaml", "models:\n  id: m1\n")
			return dir
		}, true},
		// A malformed experiment is skipped with a warning.
		{"scenario not a list", func(t *testing.T) string {
			dir := t.TempDir()
			writeFile(t, dir, "experiments.yaml", "experiments:\n  - id: e1\n    scenario: hello\n")
			return dir
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadCatalog(tt.setup(t), nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadCatalog() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
