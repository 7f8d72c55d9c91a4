package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/prodexio/prodex/internal/stats"
)

// PrometheusSink exports run statistics via Prometheus. It owns all
// collectors for worker completions and per-run derived metrics.
type PrometheusSink struct {
	workersCompleted prometheus.Counter
	profilesAdded    prometheus.Counter
	errorsTotal      prometheus.Counter
	retriesTotal     prometheus.Counter
	workerRuntime    prometheus.Histogram
	secondsPerProf   *prometheus.GaugeVec

	mu   sync.Mutex
	runs map[string]stats.RunLogEntry
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		workersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prodex_workers_completed_total",
			Help: "Total workers that have reported completion.",
		}),
		profilesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prodex_profiles_added_total",
			Help: "Total profiles persisted across all runs.",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prodex_page_errors_total",
			Help: "Total page-level extraction errors.",
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prodex_fetch_retries_total",
			Help: "Total fetch retries issued by workers.",
		}),
		workerRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prodex_worker_runtime_seconds",
			Help:    "Wall time per completed worker.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		secondsPerProf: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prodex_run_seconds_per_profile",
			Help: "Derived cost metric per run: total seconds / profiles added.",
		}, []string{"run_id"}),
		runs: make(map[string]stats.RunLogEntry),
	}
	for _, collector := range []prometheus.Collector{
		s.workersCompleted,
		s.profilesAdded,
		s.errorsTotal,
		s.retriesTotal,
		s.workerRuntime,
		s.secondsPerProf,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register stats collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using one worker snapshot.
func (s *PrometheusSink) Consume(_ context.Context, snap stats.Snapshot) error {
	s.workersCompleted.Inc()
	s.profilesAdded.Add(float64(snap.ProfilesAdded))
	s.errorsTotal.Add(float64(snap.ErrorCount))
	s.retriesTotal.Add(float64(snap.RetriesCount))
	if d := snap.FinishedAt.Sub(snap.StartedAt); d > 0 {
		s.workerRuntime.Observe(d.Seconds())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.runs[snap.RunID]
	if !ok {
		entry = stats.NewEntry(snap)
	} else {
		entry = stats.Merge(entry, snap)
	}
	s.runs[snap.RunID] = entry
	if spp := entry.SecondsPerProfile(); spp > 0 {
		s.secondsPerProf.WithLabelValues(snap.RunID).Set(spp)
	}
	return nil
}

// Close drops per-run tracking state older than the final report.
func (s *PrometheusSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]stats.RunLogEntry)
	return nil
}
