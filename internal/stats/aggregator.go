package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sink consumes worker snapshots. Implementations must be safe for repeated
// calls and honor ctx deadlines; they are invoked from a single goroutine.
type Sink interface {
	Consume(ctx context.Context, snap Snapshot) error
	Close(ctx context.Context) error
}

// Config controls the Aggregator.
//   - BufferSize: channel capacity; one slot per expected worker suffices.
//   - SinkTimeout: per-sink timeout while consuming (default 10s).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize  int
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

const (
	defaultBufferSize  = 16
	defaultSinkTimeout = 10 * time.Second
)

// Aggregator is the single consumer of worker completion messages. Workers
// send exactly one snapshot each over a bounded channel; the aggregator
// applies them to its sinks in arrival order, so no shared mutable state
// exists between workers.
type Aggregator struct {
	cfg    Config
	sinks  []Sink
	snaps  chan Snapshot
	doneCh chan struct{}
	logger *zap.Logger
}

// NewAggregator starts the background consumer over the supplied sinks.
func NewAggregator(cfg Config, sinks ...Sink) *Aggregator {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		snaps:  make(chan Snapshot, cfg.BufferSize),
		doneCh: make(chan struct{}),
		logger: logger,
	}
	go a.run()
	return a
}

// Report enqueues a worker's completion snapshot. Invalid snapshots are
// discarded with a log entry rather than poisoning the run log.
func (a *Aggregator) Report(snap Snapshot) {
	if err := snap.Validate(); err != nil {
		a.logger.Warn("discarding invalid stats snapshot", zap.Error(err))
		return
	}
	a.snaps <- snap
}

// Close waits for all reported snapshots to be consumed, closes the sinks,
// and blocks until the consumer exits. Call it only after every worker has
// reported.
func (a *Aggregator) Close(ctx context.Context) error {
	close(a.snaps)
	select {
	case <-a.doneCh:
	case <-ctx.Done():
		return fmt.Errorf("stats aggregator close wait: %w", ctx.Err())
	}
	for _, sink := range a.sinks {
		if err := sink.Close(ctx); err != nil {
			a.logger.Warn("stats sink close failed", zap.Error(err))
		}
	}
	return nil
}

func (a *Aggregator) run() {
	defer close(a.doneCh)
	for snap := range a.snaps {
		for _, sink := range a.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SinkTimeout)
			if err := sink.Consume(ctx, snap); err != nil {
				a.logger.Warn("stats sink consume failed",
					zap.String("run_id", snap.RunID),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}
