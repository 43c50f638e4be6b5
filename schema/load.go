package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseModel parses a YAML model description and validates it.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &m, nil
}

// LoadModel reads and parses a YAML model description from disk.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return ParseModel(data)
}
