package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseRunFileYAML parses a RunFile from YAML bytes and validates it.
// This is used when the run request arrives as payload (not via filesystem).
func ParseRunFileYAML(data []byte) (*RunFile, error) {
	var rf RunFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse run file yaml: %w", err)
	}

	if rf.LogLevel == "" {
		rf.LogLevel = "info"
	}

	if err := validateRunFile(&rf); err != nil {
		return nil, fmt.Errorf("invalid run file: %w", err)
	}

	return &rf, nil
}

// ParseRunFileYAMLString parses a RunFile from a YAML string and validates it.
func ParseRunFileYAMLString(yamlText string) (*RunFile, error) {
	return ParseRunFileYAML([]byte(yamlText))
}
