package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cordum/playground/core/configsvc"
	configschema "github.com/cordum/playground/core/infra/schema"
	"gopkg.in/yaml.v3"
)

// Preset is a named starting point for a session: an initial configuration
// and the tool to select.
type Preset struct {
	Name        string              `json:"name,omitempty" yaml:"name,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Tool        string              `json:"tool,omitempty" yaml:"tool,omitempty"`
	Config      configsvc.Aggregate `json:"config" yaml:"config"`
}

// ParsePreset validates YAML or JSON preset data against the preset schema
// and decodes it. Sub-configs present in the file get their defaults filled.
func ParsePreset(data []byte) (*Preset, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("preset is empty")
	}
	if err := validatePreset(data); err != nil {
		return nil, err
	}
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	p.Tool = strings.TrimSpace(p.Tool)
	p.Config = withDefaults(p.Config)
	return &p, nil
}

// LoadPreset reads a preset file.
func LoadPreset(path string) (*Preset, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("preset path is empty")
	}
	// #nosec G304 -- preset path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	p, err := ParsePreset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func validatePreset(data []byte) error {
	schemaBytes, err := configSchemaFS.ReadFile(presetSchemaFile)
	if err != nil {
		return fmt.Errorf("load preset schema: %w", err)
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse preset: %w", err)
	}
	if err := configschema.ValidateSchema("playground-preset", schemaBytes, payload); err != nil {
		return fmt.Errorf("validate preset: %w", err)
	}
	return nil
}

func withDefaults(a configsvc.Aggregate) configsvc.Aggregate {
	if a.Guard != nil {
		g := a.Guard.WithDefaults()
		a.Guard = &g
	}
	if a.Context != nil {
		c := a.Context.WithDefaults()
		a.Context = &c
	}
	if a.RAG != nil {
		r := a.RAG.WithDefaults()
		a.RAG = &r
	}
	if a.Scorer != nil {
		s := a.Scorer.WithDefaults()
		a.Scorer = &s
	}
	if a.Validator != nil {
		v := a.Validator.WithDefaults()
		a.Validator = &v
	}
	if a.LLM != nil {
		l := a.LLM.WithDefaults()
		a.LLM = &l
	}
	if a.Chat != nil {
		c := a.Chat.WithDefaults()
		a.Chat = &c
	}
	return a
}
