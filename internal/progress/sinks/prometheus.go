package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mlpeters/bookmark-enricher/internal/progress"
)

// PrometheusSink exports enrichment progress metrics via Prometheus. It owns
// all collectors for runs started/finished/active and per-bookmark check
// counters.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished prometheus.Counter
	runsActive   prometheus.Gauge
	runDuration  prometheus.Histogram

	checksTotal   *prometheus.CounterVec
	checkStatus   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enricher_runs_started_total",
			Help: "Total enrichment runs that have started.",
		}),
		runsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enricher_runs_finished_total",
			Help: "Total enrichment runs that have finished.",
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enricher_runs_active",
			Help: "Current number of in-flight enrichment runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_bookmark_checks_total",
			Help: "Bookmark checks partitioned by liveness method and outcome.",
		}, []string{"method", "live"}),
		checkStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_bookmark_status_total",
			Help: "Bookmark checks partitioned by final status class.",
		}, []string{"status_class"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enricher_bookmark_check_duration_seconds",
			Help:    "Check duration partitioned by liveness method.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"method"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsActive,
		s.runDuration,
		s.checksTotal,
		s.checkStatus,
		s.checkDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStarted, progress.StageRunFinished:
		s.handleRunEvent(evt)
	case progress.StageBookmarkChecked:
		s.handleCheckEvent(evt)
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStarted:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunFinished:
		s.runsFinished.Inc()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
		if s.tracker.finish(evt.RunID) {
			s.runsActive.Dec()
		}
	}
}

func (s *PrometheusSink) handleCheckEvent(evt progress.Event) {
	method := evt.Method
	if method == "" {
		method = "none"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusNone)
	}
	s.checksTotal.WithLabelValues(method, strconv.FormatBool(evt.Live)).Inc()
	s.checkStatus.WithLabelValues(statusClass).Inc()
	if evt.Dur > 0 {
		s.checkDuration.WithLabelValues(method).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu     sync.Mutex
	active map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) finish(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
