package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
	"github.com/mlpeters/bookmark-enricher/internal/enrich"
	"github.com/mlpeters/bookmark-enricher/internal/history"
	"github.com/mlpeters/bookmark-enricher/internal/progress"
	"github.com/mlpeters/bookmark-enricher/internal/publisher/memory"
)

type fakeEnricher struct {
	mu       sync.Mutex
	calls    []string
	deadURLs map[string]bool
	panicOn  string
	cancelOn string
	cancel   context.CancelFunc
}

func (f *fakeEnricher) Enrich(
	_ context.Context,
	bm bookmark.Bookmark,
	_ bookmark.TagSet,
) (bookmark.Bookmark, enrich.Report) {
	f.mu.Lock()
	f.calls = append(f.calls, bm.Href)
	f.mu.Unlock()

	if bm.Href == f.panicOn {
		panic("poisoned bookmark")
	}
	if bm.Href == f.cancelOn && f.cancel != nil {
		f.cancel()
	}

	out := bm.Clone()
	report := enrich.Report{Duration: 10 * time.Millisecond}
	if f.deadURLs[bm.Href] {
		out.AddTag(bookmark.TagOffline)
		report.Outcome = bookmark.Dead()
		return out, report
	}
	out.Description = "enriched: " + bm.Href
	report.Outcome = bookmark.LivenessOutcome{
		Live:       true,
		Method:     bookmark.MethodFetch,
		FinalURL:   bm.Href,
		StatusCode: 200,
		Content:    []byte("<html></html>"),
	}
	return out, report
}

func (f *fakeEnricher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (f *fakeEmitter) Emit(evt progress.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeEmitter) Events() []progress.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]progress.Event(nil), f.events...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []int
	checks   []history.CheckRecord
	finished []int
}

func (f *fakeRecorder) StartRun(_ context.Context, _ uuid.UUID, _ time.Time, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, total)
	return nil
}

func (f *fakeRecorder) RecordCheck(_ context.Context, _ uuid.UUID, check history.CheckRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, check)
	return nil
}

func (f *fakeRecorder) CompleteRun(_ context.Context, _ uuid.UUID, _ time.Time, live, offline, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, live, offline, failed)
	return nil
}

func sampleBookmarks(n int) []bookmark.Bookmark {
	out := make([]bookmark.Bookmark, n)
	for i := range out {
		out[i] = bookmark.Bookmark{
			Href: fmt.Sprintf("https://example.com/post/%d", i),
			Tags: []string{"keep"},
		}
	}
	return out
}

// TestRunPreservesOrder checks results[i] lines up with bookmarks[i] despite
// concurrent workers.
func TestRunPreservesOrder(t *testing.T) {
	t.Parallel()

	input := sampleBookmarks(12)
	enricher := &fakeEnricher{}
	coord := New(enricher, nil, nil, nil, Config{Concurrency: 4}, zap.NewNop())

	results, err := coord.Run(context.Background(), input, nil)
	require.NoError(t, err)
	require.Len(t, results, len(input))
	for i, res := range results {
		require.Equal(t, input[i].Href, res.Href)
		require.Equal(t, "enriched: "+input[i].Href, res.Description)
	}
	require.Equal(t, len(input), enricher.callCount())
}

// TestRunRecoversPanics isolates a panicking bookmark from the rest of the run.
func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	input := sampleBookmarks(6)
	enricher := &fakeEnricher{panicOn: input[2].Href}
	coord := New(enricher, nil, nil, nil, Config{Concurrency: 2}, zap.NewNop())

	results, err := coord.Run(context.Background(), input, nil)
	require.NoError(t, err)

	// The poisoned slot passes through unmodified.
	require.Equal(t, input[2], results[2])
	for i, res := range results {
		if i == 2 {
			continue
		}
		require.Equal(t, "enriched: "+input[i].Href, res.Description)
	}

	status := coord.Status()
	require.Equal(t, int64(6), status.Total)
	require.Equal(t, int64(6), status.Processed)
	require.Equal(t, int64(5), status.Live)
	require.Equal(t, int64(1), status.Failed)
}

// TestRunCancelledBeforeStart passes every slot through untouched.
func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := sampleBookmarks(4)
	enricher := &fakeEnricher{}
	coord := New(enricher, nil, nil, nil, Config{Concurrency: 2}, zap.NewNop())

	results, err := coord.Run(ctx, input, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, input, results)
	require.Zero(t, enricher.callCount())
}

// TestRunCancelledMidway stops dispatching while letting in-flight checks
// finish; trailing slots pass through unmodified.
func TestRunCancelledMidway(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := sampleBookmarks(6)
	enricher := &fakeEnricher{cancelOn: input[1].Href, cancel: cancel}
	coord := New(enricher, nil, nil, nil, Config{Concurrency: 1}, zap.NewNop())

	results, err := coord.Run(ctx, input, nil)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, "enriched: "+input[0].Href, results[0].Description)
	require.Equal(t, "enriched: "+input[1].Href, results[1].Description)
	// One extra dispatch may already be in flight when the cancel lands, but
	// everything after that passes through untouched.
	require.GreaterOrEqual(t, enricher.callCount(), 2)
	require.LessOrEqual(t, enricher.callCount(), 3)
	for i := 3; i < len(input); i++ {
		require.Equal(t, input[i], results[i])
	}
}

// TestRunNotifiesCollaborators wires the emitter, recorder, and publisher
// together and checks each observed the run.
func TestRunNotifiesCollaborators(t *testing.T) {
	t.Parallel()

	input := sampleBookmarks(3)
	enricher := &fakeEnricher{deadURLs: map[string]bool{input[1].Href: true}}
	emitter := &fakeEmitter{}
	recorder := &fakeRecorder{}
	pub := memory.New()
	coord := New(enricher, emitter, recorder, pub, Config{Concurrency: 2, Topic: "bookmark-checks"}, zap.NewNop())

	_, err := coord.Run(context.Background(), input, nil)
	require.NoError(t, err)

	events := emitter.Events()
	require.Len(t, events, 5)
	require.Equal(t, progress.StageRunStarted, events[0].Stage)
	require.Equal(t, progress.StageRunFinished, events[len(events)-1].Stage)
	checked := 0
	for _, evt := range events {
		if evt.Stage != progress.StageBookmarkChecked {
			continue
		}
		checked++
		require.NoError(t, evt.Validate())
	}
	require.Equal(t, 3, checked)

	require.Equal(t, []int{3}, recorder.started)
	require.Len(t, recorder.checks, 3)
	require.Equal(t, []int{2, 1, 0}, recorder.finished)

	msgs := pub.Messages()
	require.Len(t, msgs, 3)
	for _, msg := range msgs {
		require.Equal(t, "bookmark-checks", msg.Topic)
		payload, ok := msg.Payload.(map[string]any)
		require.True(t, ok)
		require.NotEmpty(t, payload["run_id"])
		require.NotEmpty(t, payload["url"])
	}
}

// TestRunWithHub drives the real progress hub end to end.
func TestRunWithHub(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := progress.NewHub(progress.Config{
		BufferSize:     16,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	input := sampleBookmarks(2)
	coord := New(&fakeEnricher{}, hub, nil, nil, Config{Concurrency: 2}, zap.NewNop())

	_, err := coord.Run(context.Background(), input, nil)
	require.NoError(t, err)
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, 4, sink.count())
}

// TestRunEmptyInput still reports a started and finished run.
func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	emitter := &fakeEmitter{}
	coord := New(&fakeEnricher{}, emitter, nil, nil, Config{Concurrency: 4}, zap.NewNop())

	results, err := coord.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, results)

	events := emitter.Events()
	require.Len(t, events, 2)
	require.Equal(t, progress.StageRunStarted, events[0].Stage)
	require.Equal(t, progress.StageRunFinished, events[1].Stage)
}

// TestStatusResetsBetweenRuns verifies counters restart with each run.
func TestStatusResetsBetweenRuns(t *testing.T) {
	t.Parallel()

	coord := New(&fakeEnricher{}, nil, nil, nil, Config{Concurrency: 2}, zap.NewNop())

	_, err := coord.Run(context.Background(), sampleBookmarks(5), nil)
	require.NoError(t, err)
	first := coord.Status()
	require.Equal(t, int64(5), first.Total)

	_, err = coord.Run(context.Background(), sampleBookmarks(2), nil)
	require.NoError(t, err)
	second := coord.Status()
	require.Equal(t, int64(2), second.Total)
	require.Equal(t, int64(2), second.Processed)
	require.NotEqual(t, first.RunID, second.RunID)
}

type captureSink struct {
	mu    sync.Mutex
	total int
}

func (s *captureSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += len(batch)
	return nil
}

func (s *captureSink) Close(context.Context) error { return nil }

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
