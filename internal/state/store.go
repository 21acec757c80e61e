// Package state tracks generation runs and their artifacts in SQLite.
package state

import "time"

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the compiler over a rulebook.
type Run struct {
	ID          string
	Rulebook    string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Artifact records one generated output: which backend produced it for
// which table, where it was written, and the digest of its contents.
// Stable digests across runs make idempotent regeneration observable.
type Artifact struct {
	ID        string
	RunID     string
	Table     string
	Backend   string
	Name      string
	Digest    string
	SizeBytes int64
	CreatedAt time.Time
}

// Store is the persistence surface the engine needs.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	CreateRun(rulebook string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	RecordArtifact(a *Artifact) error
	ListArtifacts(runID string) ([]*Artifact, error)
}
