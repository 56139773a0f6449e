package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRuntimeConfig loads a RuntimeConfig from a YAML file, starting from
// DefaultRuntimeConfig so an omitted field keeps its default rather than
// zeroing out.
func LoadRuntimeConfig(path string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("failed to read runtime config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("failed to parse runtime config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, fmt.Errorf("invalid runtime config: %w", err)
	}
	return cfg, nil
}
