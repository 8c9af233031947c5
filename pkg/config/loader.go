package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns a ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the council YAML file
//  2. Expand ${NAME} environment references
//  3. Parse YAML (unknown keys rejected)
//  4. Normalize deprecated forms and apply defaults
//  5. Validate the whole council, collecting every failure
func Initialize(path string) (*Config, error) {
	log := slog.With("config_file", path)
	log.Info("Initializing configuration")

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"council", cfg.Council.ID,
		"agents", stats.Agents,
		"routing_rules", stats.RoutingRules,
		"escalation_rules", stats.EscalationRules,
		"voting_scheme", stats.Scheme)

	return cfg, nil
}

// Load reads and validates the council configuration file at path.
// On failure the returned error is a *LoadError; validation failures
// carry the full per-field detail list.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(filepath.Base(path), fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return nil, NewLoadError(filepath.Base(path), err)
	}

	cfg, err := Parse(data)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			loadErr.File = filepath.Base(path)
			return nil, loadErr
		}
		return nil, NewLoadError(filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse builds a validated configuration from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	data = ExpandEnv(data)

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	// Reject unknown keys so typos fail loudly instead of silently
	// disabling a rule
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, NewLoadError("council.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, NewLoadError("council.yaml", err)
	}

	if details := NewValidator(&cfg).ValidateAll(); len(details) > 0 {
		return nil, &LoadError{
			File:    "council.yaml",
			Err:     ErrValidationFailed,
			Details: details,
		}
	}

	return &cfg, nil
}
