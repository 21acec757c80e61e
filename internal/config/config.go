// Package config loads project configuration from fieldbook.yaml,
// environment variables, and defaults, layered in that order of
// increasing priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config file names searched in the project root.
const (
	ConfigFileName    = "fieldbook.yaml"
	ConfigFileNameAlt = "fieldbook.yml"
)

// Default configuration values.
const (
	DefaultRulebook  = "rulebook.yaml"
	DefaultOutputDir = "build"
	DefaultStatePath = "fieldbook.db"
	DefaultLogLevel  = "info"
)

// DefaultBackends lists every registered backend.
var DefaultBackends = []string{"golang", "graphql", "native", "python", "sqlview"}

// Config is the project configuration.
type Config struct {
	// Rulebook is the path to the rulebook YAML document.
	Rulebook string `koanf:"rulebook"`
	// OutputDir receives generated artifacts, one subdirectory per backend.
	OutputDir string `koanf:"output_dir"`
	// StatePath is the run-history SQLite database.
	StatePath string `koanf:"state_path"`
	// Backends selects which emitters run; empty means all.
	Backends []string `koanf:"backends"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `koanf:"log_level"`
}

// Load builds the configuration. An explicit cfgFile wins over the
// files found in dir; environment variables with the FIELDBOOK_ prefix
// override both (FIELDBOOK_OUTPUT_DIR -> output_dir).
func Load(dir, cfgFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"rulebook":   DefaultRulebook,
		"output_dir": DefaultOutputDir,
		"state_path": DefaultStatePath,
		"backends":   DefaultBackends,
		"log_level":  DefaultLogLevel,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = findConfigFile(dir)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider("FIELDBOOK_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "FIELDBOOK_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects backend names nothing is registered under.
func (c *Config) Validate() error {
	known := make(map[string]bool, len(DefaultBackends))
	for _, b := range DefaultBackends {
		known[b] = true
	}
	for _, b := range c.Backends {
		if !known[b] {
			return fmt.Errorf("unknown backend %q (available: %s)",
				b, strings.Join(DefaultBackends, ", "))
		}
	}
	return nil
}

func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the nearest directory
// holding a config file; empty when none is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
