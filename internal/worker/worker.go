// Package worker ties one listing partition to an extraction pipeline, a
// profile sink, and the run's statistics reporter.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prodexio/prodex/internal/clock"
	"github.com/prodexio/prodex/internal/extract"
	"github.com/prodexio/prodex/internal/partition"
	"github.com/prodexio/prodex/internal/profile"
	"github.com/prodexio/prodex/internal/stats"
)

// ProfileSink persists completed records. The sink must be idempotent so
// overlapping runs converge on one document per natural key.
type ProfileSink interface {
	Upsert(ctx context.Context, rec profile.Profile) error
}

// RetryCounter exposes how many fetch retries a worker's transport performed.
type RetryCounter interface {
	Retries() int64
}

// Reporter accepts a worker's one completion snapshot.
type Reporter interface {
	Report(snap stats.Snapshot)
}

// Worker drives one partition to completion. It owns its pipeline and its
// transport; nothing here is shared with sibling workers.
type Worker struct {
	Partition partition.Partition
	Pipeline  extract.Pipeline
	Sink      ProfileSink
	Retries   RetryCounter
	Reporter  Reporter
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Run walks the partition, persisting every emitted record, and reports
// exactly one snapshot no matter how the walk ends. A failed upsert counts
// as an error and the walk continues; only context cancellation propagates
// out.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(
		zap.String("run_id", w.Partition.RunID),
		zap.Int("lower", w.Partition.Lower),
		zap.Int("upper", w.Partition.Upper),
	)

	startedAt := w.Clock.Now()
	added := 0
	storeErrors := 0

	runErr := w.Pipeline.Run(ctx, func(rec profile.Profile) error {
		if err := w.Sink.Upsert(ctx, rec); err != nil {
			storeErrors++
			logger.Warn("profile upsert failed",
				zap.String("contact_name", rec.ContactName),
				zap.Error(err),
			)
			return nil
		}
		added++
		logger.Info("profile processed",
			zap.String("contact_name", rec.ContactName),
			zap.String("profile_url", rec.ProfileURL),
		)
		return nil
	})

	var retries int64
	if w.Retries != nil {
		retries = w.Retries.Retries()
	}

	snap := stats.Snapshot{
		RunID:         w.Partition.RunID,
		StartedAt:     startedAt,
		FinishedAt:    w.Clock.Now(),
		ProfilesAdded: added,
		ProfilesTotal: w.Pipeline.Total(),
		ErrorCount:    w.Pipeline.Errors() + storeErrors,
		RetriesCount:  int(retries),
	}
	w.Reporter.Report(snap)

	logger.Info("worker finished",
		zap.Int("profiles_added", snap.ProfilesAdded),
		zap.Int("errors", snap.ErrorCount),
		zap.Int("retries", snap.RetriesCount),
	)

	if runErr != nil {
		return fmt.Errorf("partition [%d,%d): %w", w.Partition.Lower, w.Partition.Upper, runErr)
	}
	return nil
}
