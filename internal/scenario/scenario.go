// Package scenario defines scripted conversation scenarios and runs them for
// one participant against one model.
package scenario

import (
	"fmt"
	"maps"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/llmexperiment/internal/parsers"
)

// SubjectToken is replaced by the participant's display label before a
// measured prompt is sent.
const SubjectToken = "{{subject}}"

// ParserSpec names a parser and its keyword parameters.
type ParserSpec struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Turn is one step of a scenario. Every field is optional.
type Turn struct {
	Role    string      `yaml:"role,omitempty" json:"role,omitempty"`
	Content string      `yaml:"content,omitempty" json:"content,omitempty"`
	Measure string      `yaml:"measure,omitempty" json:"measure,omitempty"`
	Parser  *ParserSpec `yaml:"parser,omitempty" json:"parser,omitempty"`
	// Condition restricts the turn to one condition of the experiment.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Scenario is an ordered list of turns.
type Scenario []Turn

// ForCondition derives the scenario seen by one condition: untagged turns,
// plus turns tagged with id (with the tag cleared). Turns tagged for other
// conditions are dropped.
func (s Scenario) ForCondition(id string) Scenario {
	out := make(Scenario, 0, len(s))
	for _, t := range s {
		switch t.Condition {
		case "":
			out = append(out, t.clone())
		case id:
			c := t.clone()
			c.Condition = ""
			out = append(out, c)
		}
	}
	return out
}

// Measures returns the measure names in scenario order.
func (s Scenario) Measures() []string {
	var names []string
	for _, t := range s {
		if t.Measure != "" {
			names = append(names, t.Measure)
		}
	}
	return names
}

// Conditions returns the distinct condition tags used by the scenario.
func (s Scenario) Conditions() []string {
	seen := map[string]struct{}{}
	for _, t := range s {
		if t.Condition != "" {
			seen[t.Condition] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Check reports parser names unknown to registry and measures declared more
// than once. A repeated measure overwrites its earlier columns.
func (s Scenario) Check(registry *parsers.Registry) []string {
	if registry == nil {
		registry = parsers.Default()
	}
	var problems []string
	seen := map[string]int{}
	for i, t := range s {
		if t.Measure != "" {
			if first, ok := seen[t.Measure]; ok {
				problems = append(problems, fmt.Sprintf("turn %d: measure %q already declared at turn %d", i, t.Measure, first))
			} else {
				seen[t.Measure] = i
			}
		}
		if t.Parser == nil || t.Parser.Name == "" {
			continue
		}
		if t.Measure == "" {
			problems = append(problems, fmt.Sprintf("turn %d: parser %q has no measure", i, t.Parser.Name))
		}
		if _, err := registry.Lookup(t.Parser.Name); err != nil {
			problems = append(problems, fmt.Sprintf("turn %d: %v", i, err))
		}
	}
	return problems
}

func (t Turn) clone() Turn {
	if t.Parser != nil {
		p := *t.Parser
		p.Params = maps.Clone(p.Params)
		t.Parser = &p
	}
	return t
}

// Decode reads a scenario from a YAML sequence. Items that are not mappings
// are skipped and their indexes returned.
func Decode(node *yaml.Node) (Scenario, []int, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, nil, fmt.Errorf("scenario at line %d must be a list", node.Line)
	}

	s := make(Scenario, 0, len(node.Content))
	var skipped []int
	for i, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			skipped = append(skipped, i)
			continue
		}
		var t Turn
		if err := item.Decode(&t); err != nil {
			return nil, nil, fmt.Errorf("scenario turn %d: %w", i, err)
		}
		s = append(s, t)
	}
	return s, skipped, nil
}
