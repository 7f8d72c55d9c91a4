package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prodexio/prodex/internal/extract"
	"github.com/prodexio/prodex/internal/partition"
	"github.com/prodexio/prodex/internal/profile"
	"github.com/prodexio/prodex/internal/stats"
)

type fakePipeline struct {
	records []profile.Profile
	total   int
	errs    int
	runErr  error

	extracted int
}

func (p *fakePipeline) Run(ctx context.Context, emit extract.EmitFunc) error {
	for _, rec := range p.records {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.extracted++
		if err := emit(rec); err != nil {
			return err
		}
	}
	return p.runErr
}

func (p *fakePipeline) Extracted() int { return p.extracted }
func (p *fakePipeline) Total() int     { return p.total }
func (p *fakePipeline) Errors() int    { return p.errs }

type memSink struct {
	mu     sync.Mutex
	stored []profile.Profile
	reject map[string]error
}

func (s *memSink) Upsert(_ context.Context, rec profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reject[rec.ContactName]; err != nil {
		return err
	}
	s.stored = append(s.stored, rec)
	return nil
}

type captureReporter struct {
	mu    sync.Mutex
	snaps []stats.Snapshot
}

func (r *captureReporter) Report(snap stats.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type fixedRetries int64

func (r fixedRetries) Retries() int64 { return int64(r) }

func namedProfiles(names ...string) []profile.Profile {
	recs := make([]profile.Profile, 0, len(names))
	for _, name := range names {
		recs = append(recs, profile.Profile{ContactName: name})
	}
	return recs
}

func TestWorkerReportsOneSnapshot(t *testing.T) {
	t.Parallel()

	start := time.Unix(1700000000, 0).UTC()
	pipe := &fakePipeline{
		records: namedProfiles("a", "b", "c"),
		total:   17,
		errs:    2,
	}
	sink := &memSink{}
	reporter := &captureReporter{}

	w := &Worker{
		Partition: partition.Partition{RunID: "run-1", Lower: 0, Upper: 3},
		Pipeline:  pipe,
		Sink:      sink,
		Retries:   fixedRetries(4),
		Reporter:  reporter,
		Clock:     &stepClock{now: start, step: 30 * time.Second},
	}

	require.NoError(t, w.Run(context.Background()))
	require.Len(t, sink.stored, 3)
	require.Len(t, reporter.snaps, 1)
	require.Equal(t, stats.Snapshot{
		RunID:         "run-1",
		StartedAt:     start,
		FinishedAt:    start.Add(30 * time.Second),
		ProfilesAdded: 3,
		ProfilesTotal: 17,
		ErrorCount:    2,
		RetriesCount:  4,
	}, reporter.snaps[0])
}

func TestWorkerCountsUpsertFailureAndContinues(t *testing.T) {
	t.Parallel()

	pipe := &fakePipeline{records: namedProfiles("a", "b", "c")}
	sink := &memSink{reject: map[string]error{"b": errors.New("deadlock detected")}}
	reporter := &captureReporter{}

	w := &Worker{
		Partition: partition.Partition{RunID: "run-2", Lower: 0, Upper: 3},
		Pipeline:  pipe,
		Sink:      sink,
		Reporter:  reporter,
		Clock:     &stepClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second},
	}

	require.NoError(t, w.Run(context.Background()))
	require.Len(t, sink.stored, 2)
	require.Len(t, reporter.snaps, 1)
	require.Equal(t, 2, reporter.snaps[0].ProfilesAdded)
	require.Equal(t, 1, reporter.snaps[0].ErrorCount)
	require.Equal(t, 0, reporter.snaps[0].RetriesCount)
}

func TestWorkerReportsEvenWhenPipelineFails(t *testing.T) {
	t.Parallel()

	pipe := &fakePipeline{
		records: namedProfiles("a"),
		runErr:  errors.New("listing page gone"),
	}
	reporter := &captureReporter{}

	w := &Worker{
		Partition: partition.Partition{RunID: "run-3", Lower: 3, Upper: 6},
		Pipeline:  pipe,
		Sink:      &memSink{},
		Reporter:  reporter,
		Clock:     &stepClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second},
	}

	err := w.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "[3,6)")
	require.Len(t, reporter.snaps, 1)
	require.Equal(t, 1, reporter.snaps[0].ProfilesAdded)
}

func TestRunPoolRunsAllPartitions(t *testing.T) {
	t.Parallel()

	reporter := &captureReporter{}
	sink := &memSink{}
	parts := partitionsForTest(t, "run-4", 0, 17, 5)

	workers := make([]*Worker, 0, len(parts))
	for i, part := range parts {
		workers = append(workers, &Worker{
			Partition: part,
			Pipeline:  &fakePipeline{records: namedProfiles(part.RunID + string(rune('a'+i)))},
			Sink:      sink,
			Reporter:  reporter,
			Clock:     &stepClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second},
		})
	}

	require.NoError(t, RunPool(context.Background(), workers))
	require.Len(t, reporter.snaps, len(parts))
	require.Len(t, sink.stored, len(parts))
}

func TestRunPoolIsolatesWorkerFailure(t *testing.T) {
	t.Parallel()

	reporter := &captureReporter{}
	sink := &memSink{}

	failing := &Worker{
		Partition: partition.Partition{RunID: "run-5", Lower: 0, Upper: 3},
		Pipeline:  &fakePipeline{runErr: errors.New("listing page gone")},
		Sink:      sink,
		Reporter:  reporter,
		Clock:     &stepClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second},
	}
	healthy := &Worker{
		Partition: partition.Partition{RunID: "run-5", Lower: 3, Upper: 6},
		Pipeline:  &fakePipeline{records: namedProfiles("a", "b", "c")},
		Sink:      sink,
		Reporter:  reporter,
		Clock:     &stepClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second},
	}

	err := RunPool(context.Background(), []*Worker{failing, healthy})
	require.Error(t, err)
	require.Contains(t, err.Error(), "[0,3)")

	// The sibling's failure must not cancel the healthy worker's partition.
	require.Len(t, sink.stored, 3)
	require.Len(t, reporter.snaps, 2)
}

func partitionsForTest(t *testing.T, runID string, start, max, workers int) []partition.Partition {
	t.Helper()
	parts, err := partition.Split(runID, start, max, workers)
	require.NoError(t, err)
	return parts
}
