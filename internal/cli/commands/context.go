// Package commands implements the fieldbook subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fieldbook-labs/fieldbook/internal/config"
	"github.com/fieldbook-labs/fieldbook/internal/engine"
)

// loadConfig resolves the effective configuration for a command:
// defaults, then the project config file, then FIELDBOOK_ environment
// variables, then persistent flags. Relative paths are anchored at the
// project root so commands behave the same from any subdirectory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Root().PersistentFlags()
	cfgFile, _ := flags.GetString("config")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root := cwd
	if cfgFile == "" {
		if found := config.FindProjectRoot(cwd); found != "" {
			root = found
		}
	} else {
		root = filepath.Dir(cfgFile)
	}

	cfg, err := config.Load(root, cfgFile)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg, flags)

	cfg.Rulebook = anchor(root, cfg.Rulebook)
	cfg.OutputDir = anchor(root, cfg.OutputDir)
	cfg.StatePath = anchor(root, cfg.StatePath)
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("rulebook") {
		cfg.Rulebook, _ = flags.GetString("rulebook")
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("state") {
		cfg.StatePath, _ = flags.GetString("state")
	}
	if flags.Changed("backend") {
		cfg.Backends, _ = flags.GetStringSlice("backend")
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
}

func anchor(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// newEngine creates an engine from the command's configuration. The
// returned cleanup closes it.
func newEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o750); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	eng, err := engine.New(engine.Config{
		Rulebook:  cfg.Rulebook,
		OutputDir: cfg.OutputDir,
		StatePath: cfg.StatePath,
		Backends:  cfg.Backends,
		Logger:    newLogger(cmd, cfg.LogLevel),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, cfg, func() { _ = eng.Close() }, nil
}

func newLogger(cmd *cobra.Command, level string) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lv}))
}
