package experiments

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/llmexperiment/internal/scenario"
)

// Config is the experiments file.
type Config struct {
	Experiments []ExperimentConfig `yaml:"experiments"`
}

// ExperimentConfig defines a single experiment.
type ExperimentConfig struct {
	ID          string            `yaml:"id"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Scenario    yaml.Node         `yaml:"scenario"`
	Conditions  []ConditionConfig `yaml:"conditions"`
	// SharedContext lets participants share one model conversation when the
	// model cannot be duplicated.
	SharedContext bool `yaml:"shared_context"`
}

// ConditionConfig defines a condition within an experiment.
type ConditionConfig struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// ParticipantConfig defines a simulated participant.
type ParticipantConfig struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Gender      string       `yaml:"gender"`
	Assignments []Assignment `yaml:"experiments_conditions"`
}

// Assignment places a participant in one condition of one experiment.
type Assignment struct {
	ExperimentID string `yaml:"experiment_id" json:"experiment_id"`
	ConditionID  string `yaml:"condition_id" json:"condition_id"`
}

// Spec is a decoded experiment definition.
type Spec struct {
	ID            string
	Title         string
	Description   string
	Scenario      scenario.Scenario
	Conditions    []ConditionSpec
	SharedContext bool
}

// ConditionSpec is a decoded condition definition.
type ConditionSpec struct {
	ID          string
	Title       string
	Description string
}

// Spec decodes the scenario and conditions. Scenario items that are not
// mappings and conditions without an id are dropped and reported as
// warnings.
func (c ExperimentConfig) Spec() (Spec, []string, error) {
	spec := Spec{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		SharedContext: c.SharedContext,
	}

	sc, skipped, err := scenario.Decode(&c.Scenario)
	if err != nil {
		return Spec{}, nil, fmt.Errorf("experiment %q: %w", c.ID, err)
	}
	spec.Scenario = sc

	var warnings []string
	for _, i := range skipped {
		warnings = append(warnings, fmt.Sprintf("experiment %q: scenario item %d is not a mapping", c.ID, i))
	}
	for i, cond := range c.Conditions {
		if cond.ID == "" {
			warnings = append(warnings, fmt.Sprintf("experiment %q: condition %d has no id", c.ID, i))
			continue
		}
		spec.Conditions = append(spec.Conditions, ConditionSpec(cond))
	}
	return spec, warnings, nil
}

// Participant builds the participant. Assignments missing either id are
// dropped and reported as warnings.
func (c ParticipantConfig) Participant() (*Participant, []string) {
	var warnings []string
	assignments := make([]Assignment, 0, len(c.Assignments))
	for i, a := range c.Assignments {
		if a.ExperimentID == "" || a.ConditionID == "" {
			warnings = append(warnings, fmt.Sprintf("participant %q: assignment %d needs experiment_id and condition_id", c.ID, i))
			continue
		}
		assignments = append(assignments, a)
	}
	return NewParticipant(c.ID, c.Name, c.Gender, assignments...), warnings
}
