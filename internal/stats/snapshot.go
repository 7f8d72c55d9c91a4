// Package stats defines worker statistics snapshots and the aggregation that
// merges them into one run-log entry per run.
package stats

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that no run-log entry exists for the run yet.
var ErrNotFound = errors.New("run log entry not found")

// Snapshot is the final statistics a worker reports exactly once, at
// completion. Workers of one run share RunID and may report in any order.
type Snapshot struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	ProfilesAdded int
	// ProfilesTotal is the source-declared listing total, 0 when this worker
	// never observed it. Only one worker per run needs to observe it.
	ProfilesTotal int
	ErrorCount    int
	RetriesCount  int
}

// Validate performs coarse validation on Snapshot payloads.
func (s Snapshot) Validate() error {
	if s.RunID == "" {
		return errors.New("run id is required")
	}
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return errors.New("start and finish times are required")
	}
	if s.FinishedAt.Before(s.StartedAt) {
		return errors.New("finish time precedes start time")
	}
	return nil
}

// RunLogEntry is the persisted per-run statistics row. One logical entry
// exists per run ID; it is written incrementally as workers complete and is
// never deleted.
type RunLogEntry struct {
	RunID             string
	StartedAt         time.Time
	FinishedAt        time.Time
	TotalSpentSeconds float64
	ProfilesAdded     int
	ProfilesTotal     int
	ErrorCount        int
	RetriesCount      int
}

// SecondsPerProfile derives the run's cost metric. Zero profiles yield 0.
func (e RunLogEntry) SecondsPerProfile() float64 {
	if e.ProfilesAdded <= 0 {
		return 0
	}
	return e.TotalSpentSeconds / float64(e.ProfilesAdded)
}

// NewEntry creates the run-log entry from the first snapshot to arrive.
func NewEntry(snap Snapshot) RunLogEntry {
	return RunLogEntry{
		RunID:             snap.RunID,
		StartedAt:         snap.StartedAt,
		FinishedAt:        snap.FinishedAt,
		TotalSpentSeconds: snap.FinishedAt.Sub(snap.StartedAt).Seconds(),
		ProfilesAdded:     snap.ProfilesAdded,
		ProfilesTotal:     snap.ProfilesTotal,
		ErrorCount:        snap.ErrorCount,
		RetriesCount:      snap.RetriesCount,
	}
}

// Merge folds a later snapshot into an existing entry. Counter fields are
// additive and therefore order-invariant. finished_at deliberately keeps the
// last writer rather than the max so the stored log matches what earlier
// deployments produced; hence total_spent is recomputed from the entry's
// original start time.
func Merge(entry RunLogEntry, snap Snapshot) RunLogEntry {
	entry.FinishedAt = snap.FinishedAt
	entry.TotalSpentSeconds = entry.FinishedAt.Sub(entry.StartedAt).Seconds()
	entry.ProfilesAdded += snap.ProfilesAdded
	entry.ErrorCount += snap.ErrorCount
	entry.RetriesCount += snap.RetriesCount
	if entry.ProfilesTotal == 0 {
		entry.ProfilesTotal = snap.ProfilesTotal
	}
	return entry
}

// RunLogRepository persists run-log entries. Find returns ErrNotFound when
// the run has no entry yet. Update overwrites the entry's mutable fields via
// field-level sets; the persistence layer's per-row atomicity is the only
// concurrency control the merge relies on.
type RunLogRepository interface {
	Find(ctx context.Context, runID string) (RunLogEntry, error)
	Insert(ctx context.Context, entry RunLogEntry) error
	Update(ctx context.Context, entry RunLogEntry) error
}
