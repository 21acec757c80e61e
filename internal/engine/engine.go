// Package engine orchestrates generation runs: it loads the rulebook,
// builds one plan per table, compiles every enabled backend in
// parallel, writes artifacts to the output directory, and records the
// run in the state store.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/fieldbook-labs/fieldbook/internal/backend"
	"github.com/fieldbook-labs/fieldbook/internal/backend/golang"
	"github.com/fieldbook-labs/fieldbook/internal/backend/graphql"
	"github.com/fieldbook-labs/fieldbook/internal/backend/native"
	"github.com/fieldbook-labs/fieldbook/internal/backend/python"
	"github.com/fieldbook-labs/fieldbook/internal/backend/sqlview"
	"github.com/fieldbook-labs/fieldbook/internal/eval"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/internal/state"
	"github.com/fieldbook-labs/fieldbook/pkg/rulebook"
)

// Config holds engine configuration.
type Config struct {
	// Rulebook is the path to the rulebook YAML document.
	Rulebook string
	// OutputDir receives artifacts, one subdirectory per backend.
	OutputDir string
	// StatePath is the run-history database; ":memory:" works for
	// throwaway runs.
	StatePath string
	// Backends selects emitters by registry name; empty enables all.
	Backends []string
	// Logger is optional; nil discards.
	Logger *slog.Logger
}

// Engine drives compilation and evaluation over one rulebook.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	store    state.Store
	registry *backend.Registry
}

// New creates an engine, opening the state store and registering the
// enabled backends.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.StatePath == "" {
		cfg.StatePath = ":memory:"
	}

	logger.Debug("initializing engine", "rulebook", cfg.Rulebook, "output_dir", cfg.OutputDir)

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	registry, err := buildRegistry(cfg.Backends)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Engine{cfg: cfg, logger: logger, store: store, registry: registry}, nil
}

func buildRegistry(enabled []string) (*backend.Registry, error) {
	all := []backend.Backend{
		golang.New(),
		graphql.New(),
		native.New(),
		python.New(),
		sqlview.New(),
	}

	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		want[name] = true
	}

	registry := backend.NewRegistry()
	for _, b := range all {
		if len(enabled) > 0 && !want[b.Name()] {
			continue
		}
		delete(want, b.Name())
		if err := registry.Register(b); err != nil {
			return nil, err
		}
	}
	for name := range want {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return registry, nil
}

// Close releases the state store.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")
	return e.store.Close()
}

// Store exposes the run history.
func (e *Engine) Store() state.Store {
	return e.store
}

// Backends returns the enabled backend names, sorted.
func (e *Engine) Backends() []string {
	return e.registry.Names()
}

// LoadRulebook reads and validates the configured rulebook.
func (e *Engine) LoadRulebook() (*rulebook.Rulebook, error) {
	return rulebook.Load(e.cfg.Rulebook)
}

// Plan loads the rulebook and builds the plan for one table.
func (e *Engine) Plan(tableName string) (*plan.Plan, error) {
	rb, err := e.LoadRulebook()
	if err != nil {
		return nil, err
	}
	table, ok := rb.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("table %q not found in rulebook", tableName)
	}
	return plan.Build(table)
}

// Evaluate runs the canonical evaluator over every row of one table.
func (e *Engine) Evaluate(tableName string) (*plan.Plan, []eval.Result, error) {
	p, err := e.Plan(tableName)
	if err != nil {
		return nil, nil, err
	}
	return p, eval.New(p).Table(), nil
}
