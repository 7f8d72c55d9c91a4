// Package sinks provides stats.Sink implementations for the run log store,
// Prometheus, and structured logging.
package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/prodexio/prodex/internal/stats"
)

// StoreSink folds each worker snapshot into the persisted run-log entry via
// a stats.RunLogRepository. The first snapshot for a run creates the entry;
// later snapshots merge into it.
type StoreSink struct {
	repo   stats.RunLogRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo stats.RunLogRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies one snapshot. Counter fields accumulate additively, so the
// resulting entry is independent of worker completion order.
func (s *StoreSink) Consume(ctx context.Context, snap stats.Snapshot) error {
	entry, err := s.repo.Find(ctx, snap.RunID)
	switch {
	case errors.Is(err, stats.ErrNotFound):
		if err := s.repo.Insert(ctx, stats.NewEntry(snap)); err != nil {
			return fmt.Errorf("insert run log: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("find run log: %w", err)
	}

	merged := stats.Merge(entry, snap)
	if err := s.repo.Update(ctx, merged); err != nil {
		return fmt.Errorf("update run log: %w", err)
	}
	s.logger.Debug("run log merged",
		zap.String("run_id", snap.RunID),
		zap.Int("profiles_added", merged.ProfilesAdded),
		zap.Int("error_count", merged.ErrorCount),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
