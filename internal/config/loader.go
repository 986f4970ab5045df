package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"theiacloud/pkg/logging"
)

// LoadConfig reads the YAML file at path on top of the defaults. An empty
// path or a missing file yields the defaults.
func LoadConfig(path string) (OperatorConfig, error) {
	config := GetDefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config file found at %s, using defaults", path)
			return config, nil
		}
		return OperatorConfig{}, fmt.Errorf("error reading config from %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return OperatorConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	return config, nil
}
