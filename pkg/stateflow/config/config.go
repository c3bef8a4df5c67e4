// Package config loads typed configuration for the stateflow engine and the
// research workflow from YAML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Engine     Engine     `yaml:"engine" json:"engine"`
	Checkpoint Checkpoint `yaml:"checkpoint" json:"checkpoint"`
	Research   Research   `yaml:"research" json:"research"`
	Server     Server     `yaml:"server" json:"server"`
}

// Engine configures the graph executor.
type Engine struct {
	// MaxSteps bounds node executions per run. 0 uses the engine default.
	MaxSteps int `yaml:"max_steps" json:"max_steps"`
}

// Checkpoint configures checkpoint persistence.
type Checkpoint struct {
	// Backend selects the store implementation: "memory" or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the SQLite database path. Ignored for the memory backend.
	Path string `yaml:"path" json:"path"`
}

// Research configures the research workflow.
type Research struct {
	// MaxRevisions is the plan revision ceiling before a run gives up.
	MaxRevisions int `yaml:"max_revisions" json:"max_revisions"`

	// Backend selects the capability implementation: "openai" or "sim".
	Backend string `yaml:"backend" json:"backend"`

	// Model is the model name passed to the LLM backend.
	Model string `yaml:"model" json:"model"`
}

// Server configures the HTTP API.
type Server struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Engine: Engine{
			MaxSteps: 0,
		},
		Checkpoint: Checkpoint{
			Backend: "memory",
		},
		Research: Research{
			MaxRevisions: 3,
			Backend:      "sim",
			Model:        "gpt-4o-mini",
		},
		Server: Server{
			Addr: ":8080",
		},
	}
}

// Load reads a configuration file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json. Missing fields keep their
// Default() values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("engine.max_steps cannot be negative: %d", c.Engine.MaxSteps)
	}

	switch c.Checkpoint.Backend {
	case "memory":
	case "sqlite":
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend: %q", c.Checkpoint.Backend)
	}

	if c.Research.MaxRevisions < 1 {
		return fmt.Errorf("research.max_revisions must be at least 1: %d", c.Research.MaxRevisions)
	}

	switch c.Research.Backend {
	case "openai", "sim":
	default:
		return fmt.Errorf("unknown research backend: %q", c.Research.Backend)
	}

	return nil
}
