package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// taletwoYAML is the structure of the optional taletwo.yaml file.
type taletwoYAML struct {
	Models    *ModelsConfig  `yaml:"models"`
	Retention *retentionYAML `yaml:"retention"`
}

// retentionYAML holds retention settings as duration strings ("30m", "2h").
type retentionYAML struct {
	BranchCacheMaxAge string `yaml:"branch_cache_max_age,omitempty"`
	PendingMaxAge     string `yaml:"pending_max_age,omitempty"`
	CleanupInterval   string `yaml:"cleanup_interval,omitempty"`
}

// applyYAMLOverrides merges <configDir>/taletwo.yaml over the built-in
// defaults already present on cfg. User values win per field; unset fields
// keep their defaults. A missing file applies nothing.
func applyYAMLOverrides(cfg *Config, configDir string) error {
	fileCfg, err := loadTaletwoYAML(configDir)
	if err != nil {
		return err
	}
	if fileCfg == nil {
		return nil
	}

	if fileCfg.Models != nil {
		if err := mergo.Merge(cfg.Models, fileCfg.Models, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge model routing: %w", err)
		}
	}
	if fileCfg.Retention != nil {
		resolveRetention(cfg.Retention, fileCfg.Retention)
	}
	return nil
}

// resolveRetention parses the duration strings from YAML, keeping the
// existing value (and warning) on anything time.ParseDuration rejects.
func resolveRetention(cfg *RetentionConfig, y *retentionYAML) {
	parse := func(field, value string, target *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			slog.Warn("Invalid duration in retention config, using default",
				"field", field,
				"value", value,
				"default", *target,
				"error", err)
			return
		}
		*target = d
	}

	parse("branch_cache_max_age", y.BranchCacheMaxAge, &cfg.BranchCacheMaxAge)
	parse("pending_max_age", y.PendingMaxAge, &cfg.PendingMaxAge)
	parse("cleanup_interval", y.CleanupInterval, &cfg.CleanupInterval)
}

// loadTaletwoYAML reads and parses taletwo.yaml. Returns nil when the file
// does not exist.
func loadTaletwoYAML(configDir string) (*taletwoYAML, error) {
	path := filepath.Join(configDir, "taletwo.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewLoadError("taletwo.yaml", err)
	}

	// Expand environment variables using {{.VAR}} template syntax before
	// parsing, so model names and budgets can come from the environment.
	data = ExpandEnv(data)

	var cfg taletwoYAML
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewLoadError("taletwo.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &cfg, nil
}
