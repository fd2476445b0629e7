package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptFile is a reusable prompt definition on disk.
type PromptFile struct {
	ID           string         `yaml:"id,omitempty"`
	Name         string         `yaml:"name,omitempty"`
	Version      int            `yaml:"version,omitempty"`
	System       string         `yaml:"system,omitempty"`
	User         string         `yaml:"user"`
	Variables    map[string]any `yaml:"variables,omitempty"`
	OutputSchema map[string]any `yaml:"output_schema,omitempty"`
	Models       []ModelSpec    `yaml:"models,omitempty"`
}

// LoadPromptFile reads and parses a prompt YAML file.
func LoadPromptFile(path string) (*PromptFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}

	var p PromptFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing prompt file %s: %w", path, err)
	}
	if p.Variables == nil {
		p.Variables = map[string]any{}
	}
	return &p, nil
}
