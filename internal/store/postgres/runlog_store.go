package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prodexio/prodex/internal/stats"
)

// RunLogStore persists one run_logs row per run, merged across workers.
type RunLogStore struct {
	db Querier
}

// NewRunLogStore creates a RunLogStore over a pool or transaction.
func NewRunLogStore(db Querier) *RunLogStore {
	return &RunLogStore{db: db}
}

const findRunLogSQL = `
	SELECT run_id, started_at, finished_at, total_spent_seconds,
		profiles_added, profiles_total, error_count, retries_count
	FROM run_logs
	WHERE run_id = $1;
`

// Find loads the run entry, or stats.ErrNotFound when no worker has
// reported yet.
func (s *RunLogStore) Find(ctx context.Context, runID string) (stats.RunLogEntry, error) {
	var entry stats.RunLogEntry
	err := s.db.QueryRow(ctx, findRunLogSQL, runID).Scan(
		&entry.RunID,
		&entry.StartedAt,
		&entry.FinishedAt,
		&entry.TotalSpentSeconds,
		&entry.ProfilesAdded,
		&entry.ProfilesTotal,
		&entry.ErrorCount,
		&entry.RetriesCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats.RunLogEntry{}, stats.ErrNotFound
	}
	if err != nil {
		return stats.RunLogEntry{}, fmt.Errorf("find run log %s: %w", runID, err)
	}
	return entry, nil
}

const insertRunLogSQL = `
	INSERT INTO run_logs (
		run_id, started_at, finished_at, total_spent_seconds,
		profiles_added, profiles_total, error_count, retries_count
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`

// Insert creates the entry from the first worker snapshot of a run.
func (s *RunLogStore) Insert(ctx context.Context, entry stats.RunLogEntry) error {
	_, err := s.db.Exec(ctx, insertRunLogSQL,
		entry.RunID,
		entry.StartedAt,
		entry.FinishedAt,
		entry.TotalSpentSeconds,
		entry.ProfilesAdded,
		entry.ProfilesTotal,
		entry.ErrorCount,
		entry.RetriesCount,
	)
	if err != nil {
		return fmt.Errorf("insert run log %s: %w", entry.RunID, err)
	}
	return nil
}

const updateRunLogSQL = `
	UPDATE run_logs SET
		finished_at = $2,
		total_spent_seconds = $3,
		profiles_added = $4,
		profiles_total = $5,
		error_count = $6,
		retries_count = $7
	WHERE run_id = $1;
`

// Update stores a merged entry over the existing row.
func (s *RunLogStore) Update(ctx context.Context, entry stats.RunLogEntry) error {
	_, err := s.db.Exec(ctx, updateRunLogSQL,
		entry.RunID,
		entry.FinishedAt,
		entry.TotalSpentSeconds,
		entry.ProfilesAdded,
		entry.ProfilesTotal,
		entry.ErrorCount,
		entry.RetriesCount,
	)
	if err != nil {
		return fmt.Errorf("update run log %s: %w", entry.RunID, err)
	}
	return nil
}
