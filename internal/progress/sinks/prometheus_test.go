package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mlpeters/bookmark-enricher/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStarted},
		{
			RunID:       runID,
			TS:          time.Now().Add(10 * time.Second),
			Stage:       progress.StageBookmarkChecked,
			URL:         "https://example.com/post",
			Method:      "fetch",
			StatusClass: progress.Status2xx,
			Live:        true,
			Dur:         200 * time.Millisecond,
		},
		{
			RunID:       runID,
			TS:          time.Now().Add(12 * time.Second),
			Stage:       progress.StageBookmarkChecked,
			URL:         "https://gone.example.com",
			Method:      "none",
			StatusClass: progress.StatusNone,
			Dur:         40 * time.Second,
		},
		{RunID: runID, TS: time.Now().Add(time.Minute), Stage: progress.StageRunFinished, Dur: time.Minute},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsFinished))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.checksTotal.WithLabelValues("fetch", "true")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.checksTotal.WithLabelValues("none", "false")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.checkStatus.WithLabelValues("2xx")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.checkStatus.WithLabelValues("none")), 1e-9)
	require.Equal(t, 2, testutil.CollectAndCount(sink.checkDuration, "enricher_bookmark_check_duration_seconds"))
}

// TestPrometheusSinkRunGauge tracks the active gauge across start and finish.
func TestPrometheusSinkRunGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	start := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunStarted}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))

	// A duplicate start for the same run must not double-count the gauge.
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))

	finish := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageRunFinished}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{finish}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
}
