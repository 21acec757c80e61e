package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fieldbook-labs/fieldbook/internal/backend"
	"github.com/fieldbook-labs/fieldbook/internal/plan"
	"github.com/fieldbook-labs/fieldbook/internal/state"
)

// ArtifactInfo describes one generated file.
type ArtifactInfo struct {
	Backend string
	Name    string
	Path    string
	Digest  string
	Size    int64
}

// TableResult is the compile outcome for one table. A table either
// fails whole (Err set, no artifacts) or yields an artifact per
// enabled backend, with Skipped listing per-backend fields dropped for
// unsupported constructs.
type TableResult struct {
	Table     string
	Err       error
	Artifacts []ArtifactInfo
	// Skipped maps backend name to derived fields that backend could
	// not express.
	Skipped map[string][]string
}

// Report summarizes one compile run.
type Report struct {
	RunID  string
	Tables []TableResult
}

// Failed reports whether any table failed.
func (r *Report) Failed() bool {
	for _, t := range r.Tables {
		if t.Err != nil {
			return true
		}
	}
	return false
}

// Compile loads the rulebook and generates artifacts for every table
// across every enabled backend. Tables compile independently: a parse
// or cycle error fails its table and leaves the rest of the run
// intact. Output is deterministic, so re-running over an unchanged
// rulebook rewrites byte-identical artifacts.
func (e *Engine) Compile(ctx context.Context) (*Report, error) {
	rb, err := e.LoadRulebook()
	if err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(e.cfg.Rulebook)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	report := &Report{RunID: run.ID}

	for _, table := range rb.Tables {
		result := e.compileTable(ctx, run.ID, table.Name)
		report.Tables = append(report.Tables, result)
	}

	status := state.RunStatusCompleted
	var runErr string
	if report.Failed() {
		status = state.RunStatusFailed
		runErr = failureSummary(report)
	}
	if err := e.store.CompleteRun(run.ID, status, runErr); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	return report, nil
}

func (e *Engine) compileTable(ctx context.Context, runID, tableName string) TableResult {
	result := TableResult{Table: tableName, Skipped: make(map[string][]string)}

	p, err := e.Plan(tableName)
	if err != nil {
		e.logger.Error("table failed to plan", "table", tableName, "error", err)
		result.Err = err
		return result
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, b := range e.registry.All() {
		g.Go(func() error {
			res, err := b.Compile(p)
			if err != nil {
				return fmt.Errorf("backend %s: %w", b.Name(), err)
			}
			infos, err := e.writeArtifacts(runID, p, res)
			// collect even on error so a failed table can clean up after
			// the backends that already wrote
			mu.Lock()
			defer mu.Unlock()
			result.Artifacts = append(result.Artifacts, infos...)
			if err != nil {
				return err
			}
			for field := range res.Unsupported {
				result.Skipped[b.Name()] = append(result.Skipped[b.Name()], field)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// a table fails whole: artifacts its healthy backends wrote must
		// not outlive the run
		for _, a := range result.Artifacts {
			if rmErr := os.Remove(a.Path); rmErr != nil && !os.IsNotExist(rmErr) {
				e.logger.Warn("failed to remove partial artifact",
					"path", a.Path, "error", rmErr)
			}
		}
		result.Err = err
		result.Artifacts = nil
		return result
	}

	sort.Slice(result.Artifacts, func(i, j int) bool {
		if result.Artifacts[i].Backend != result.Artifacts[j].Backend {
			return result.Artifacts[i].Backend < result.Artifacts[j].Backend
		}
		return result.Artifacts[i].Name < result.Artifacts[j].Name
	})
	for _, fields := range result.Skipped {
		sort.Strings(fields)
	}

	e.logger.Info("table compiled", "table", tableName,
		"artifacts", len(result.Artifacts), "run_id", runID)
	return result
}

// writeArtifacts persists one backend's output under
// OutputDir/<backend>/ and records each file in the run history. On
// error it returns the infos written so far so the caller can remove
// them.
func (e *Engine) writeArtifacts(runID string, p *plan.Plan, res *backend.Result) ([]ArtifactInfo, error) {
	dir := filepath.Join(e.cfg.OutputDir, res.Backend)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var infos []ArtifactInfo
	for _, a := range res.Artifacts {
		path := filepath.Join(dir, a.Name)
		if err := os.WriteFile(path, a.Contents, 0o644); err != nil {
			return infos, fmt.Errorf("failed to write artifact %s: %w", path, err)
		}

		sum := sha256.Sum256(a.Contents)
		digest := hex.EncodeToString(sum[:])
		infos = append(infos, ArtifactInfo{
			Backend: res.Backend,
			Name:    a.Name,
			Path:    path,
			Digest:  digest,
			Size:    int64(len(a.Contents)),
		})

		if err := e.store.RecordArtifact(&state.Artifact{
			RunID:     runID,
			Table:     p.Table.Name,
			Backend:   res.Backend,
			Name:      a.Name,
			Digest:    digest,
			SizeBytes: int64(len(a.Contents)),
		}); err != nil {
			return infos, fmt.Errorf("failed to record artifact: %w", err)
		}

		e.logger.Debug("artifact written", "backend", res.Backend,
			"name", a.Name, "bytes", len(a.Contents))
	}
	return infos, nil
}

func failureSummary(report *Report) string {
	var parts []string
	for _, t := range report.Tables {
		if t.Err != nil {
			parts = append(parts, fmt.Sprintf("table %s: %v", t.Table, t.Err))
		}
	}
	return strings.Join(parts, "; ")
}
