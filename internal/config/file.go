package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// applyFile overlays a YAML config file onto cfg. ${VAR} references are
// expanded through lookup before parsing; keys absent from the file keep
// their current values.
func applyFile(path string, lookup LookupFunc, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		value, _ := lookup(key)
		return value
	})

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var extra struct {
		Observability struct {
			LogLevel string `yaml:"log_level"`
		} `yaml:"observability"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &extra); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if extra.Observability.LogLevel != "" {
		level, err := parseLogLevel(extra.Observability.LogLevel)
		if err != nil {
			return fmt.Errorf("config file %s: observability.log_level: %w", path, err)
		}
		cfg.Observability.LogLevel = level
	}
	return nil
}
