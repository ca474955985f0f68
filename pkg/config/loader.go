package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Initialize runs the full staged configuration pipeline used by both
// binaries: read the YAML file, expand ${ENV} references, unmarshal,
// apply documented defaults, then validate load-then-default-then-validate.
func Initialize(configPath string) (*Config, error) {
	resolved, err := resolveConfigPath(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(configPath, ErrConfigNotFound)
		}
		return nil, NewLoadError(configPath, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(resolved, ErrConfigNotFound)
		}
		return nil, NewLoadError(resolved, err)
	}

	expanded := ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, NewLoadError(configPath, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := validateStructTags(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := NewValidator(&cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return &cfg, nil
}

// validateStructTags runs go-playground/validator against the `validate`
// struct tags declared on Config and its nested blocks.
func validateStructTags(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// resolveConfigPath lets callers pass either a direct file path or a
// directory containing a conventional config.yaml, matching the teacher's
// tolerance for both invocation styles.
func resolveConfigPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return filepath.Join(path, "config.yaml"), nil
	}
	return path, nil
}
