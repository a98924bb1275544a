package domain

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed default_pipeline.yaml
var defaultPipelineTemplate []byte

// PipelineTemplate is a declarative pipeline definition.
type PipelineTemplate struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Stages      []StageTemplate      `yaml:"stages"`
	Transitions []TransitionTemplate `yaml:"transitions"`
}

// StageTemplate declares one stage. Order is the stage's position in the list.
type StageTemplate struct {
	Key      string    `yaml:"key"`
	Name     string    `yaml:"name"`
	Type     StageType `yaml:"type"`
	Terminal bool      `yaml:"terminal,omitempty"`
}

// TransitionTemplate declares one edge.
type TransitionTemplate struct {
	From   string   `yaml:"from"`
	To     string   `yaml:"to"`
	Action string   `yaml:"action,omitempty"`
	Roles  []string `yaml:"roles,omitempty"`
}

// ParsePipelineTemplate decodes and checks a YAML template.
func ParsePipelineTemplate(data []byte) (*PipelineTemplate, error) {
	var tmpl PipelineTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("%w: parse pipeline template: %v", ErrInvalidInput, err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// DefaultPipelineTemplate returns the built-in hiring pipeline.
func DefaultPipelineTemplate() *PipelineTemplate {
	tmpl, err := ParsePipelineTemplate(defaultPipelineTemplate)
	if err != nil {
		panic(fmt.Sprintf("embedded default pipeline template: %v", err))
	}
	return tmpl
}

// Validate checks names, stage keys and transition endpoints.
func (t PipelineTemplate) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(t.Stages) == 0 {
		return &ValidationError{Field: "stages", Message: "at least one stage is required"}
	}
	keys := make(map[string]bool, len(t.Stages))
	for i, s := range t.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		if s.Key == "" || s.Name == "" {
			return &ValidationError{Field: field, Message: "key and name are required"}
		}
		if !ValidStageKey(s.Key) {
			return &ValidationError{Field: field + ".key", Message: fmt.Sprintf("invalid stage key %q", s.Key)}
		}
		if !s.Type.Valid() {
			return &ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown stage type %q", s.Type)}
		}
		if keys[s.Key] {
			return fmt.Errorf("%w: duplicate stage key %q", ErrConflict, s.Key)
		}
		keys[s.Key] = true
	}
	pairs := make(map[string]bool, len(t.Transitions))
	for i, tr := range t.Transitions {
		if !keys[tr.From] || !keys[tr.To] {
			return &ValidationError{
				Field:   fmt.Sprintf("transitions[%d]", i),
				Message: fmt.Sprintf("references unknown stage in %s -> %s", tr.From, tr.To),
			}
		}
		pair := tr.From + "\x00" + tr.To
		if pairs[pair] {
			return fmt.Errorf("%w: duplicate transition %s -> %s", ErrConflict, tr.From, tr.To)
		}
		pairs[pair] = true
	}
	return nil
}
