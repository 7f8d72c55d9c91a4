package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/prodexio/prodex/internal/stats"
)

// LogSink emits structured logs for worker completions. Useful during
// development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the snapshot using structured fields.
func (s *LogSink) Consume(_ context.Context, snap stats.Snapshot) error {
	s.logger.Info("worker completed",
		zap.String("run_id", snap.RunID),
		zap.Time("started_at", snap.StartedAt),
		zap.Time("finished_at", snap.FinishedAt),
		zap.Int("profiles_added", snap.ProfilesAdded),
		zap.Int("profiles_total", snap.ProfilesTotal),
		zap.Int("error_count", snap.ErrorCount),
		zap.Int("retries_count", snap.RetriesCount),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
