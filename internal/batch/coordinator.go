// Package batch runs bookmark enrichment over a bounded worker pool.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
	"github.com/mlpeters/bookmark-enricher/internal/enrich"
	"github.com/mlpeters/bookmark-enricher/internal/history"
	"github.com/mlpeters/bookmark-enricher/internal/progress"
)

// Enricher processes a single bookmark. *enrich.Enricher satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, bm bookmark.Bookmark, blessed bookmark.TagSet) (bookmark.Bookmark, enrich.Report)
}

// Recorder archives run lifecycle rows. *history.Store satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error
	RecordCheck(ctx context.Context, runID uuid.UUID, check history.CheckRecord) error
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, live, offline, failed int) error
}

// Publisher pushes per-bookmark messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Config controls the Coordinator.
type Config struct {
	// Concurrency bounds the worker pool; it is capped at the input length.
	Concurrency int
	// Topic names the publisher destination for per-bookmark messages.
	Topic string
}

// Status is a point-in-time snapshot of the current run.
type Status struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Total     int64     `json:"total"`
	Processed int64     `json:"processed"`
	Live      int64     `json:"live"`
	Offline   int64     `json:"offline"`
	Failed    int64     `json:"failed"`
}

// Coordinator fans a bookmark slice out to enrichment workers and reassembles
// the results in input order.
type Coordinator struct {
	enricher  Enricher
	emitter   progress.Emitter
	recorder  Recorder
	publisher Publisher
	cfg       Config
	logger    *zap.Logger

	mu        sync.Mutex
	runID     string
	startedAt time.Time

	total     atomic.Int64
	processed atomic.Int64
	live      atomic.Int64
	offline   atomic.Int64
	failed    atomic.Int64
}

// New constructs a Coordinator. The emitter, recorder, and publisher are each
// optional; pass nil to disable them.
func New(
	enricher Enricher,
	emitter progress.Emitter,
	recorder Recorder,
	publisher Publisher,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		enricher:  enricher,
		emitter:   emitter,
		recorder:  recorder,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run enriches every bookmark and returns results aligned with the input:
// results[i] always corresponds to bookmarks[i]. On cancellation dispatching
// stops, in-flight checks finish, unprocessed slots pass through unmodified,
// and the context error is returned alongside the results.
func (c *Coordinator) Run(
	ctx context.Context,
	bookmarks []bookmark.Bookmark,
	blessed bookmark.TagSet,
) ([]bookmark.Bookmark, error) {
	results := make([]bookmark.Bookmark, len(bookmarks))
	for i := range bookmarks {
		results[i] = bookmarks[i].Clone()
	}

	runID := uuid.New()
	startedAt := time.Now().UTC()
	c.beginRun(runID, startedAt, len(bookmarks))
	c.logger.Info("run started",
		zap.String("run_id", runID.String()),
		zap.Int("total", len(bookmarks)),
	)

	c.emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    startedAt,
		Stage: progress.StageRunStarted,
	})
	if c.recorder != nil {
		if err := c.recorder.StartRun(ctx, runID, startedAt, len(bookmarks)); err != nil {
			c.logger.Warn("record run start failed", zap.Error(err))
		}
	}

	workers := c.cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	if workers > len(bookmarks) {
		workers = len(bookmarks)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = c.checkOne(ctx, runID, bookmarks[idx], blessed)
			}
		}()
	}

	for i := range bookmarks {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	c.finishRun(ctx, runID, startedAt, len(bookmarks))
	return results, ctx.Err()
}

// Status returns a snapshot of the current run counters for the status API.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	runID := c.runID
	startedAt := c.startedAt
	c.mu.Unlock()
	return Status{
		RunID:     runID,
		StartedAt: startedAt,
		Total:     c.total.Load(),
		Processed: c.processed.Load(),
		Live:      c.live.Load(),
		Offline:   c.offline.Load(),
		Failed:    c.failed.Load(),
	}
}

func (c *Coordinator) beginRun(runID uuid.UUID, startedAt time.Time, total int) {
	c.mu.Lock()
	c.runID = runID.String()
	c.startedAt = startedAt
	c.mu.Unlock()
	c.total.Store(int64(total))
	c.processed.Store(0)
	c.live.Store(0)
	c.offline.Store(0)
	c.failed.Store(0)
}

func (c *Coordinator) finishRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) {
	finishedAt := time.Now().UTC()
	live := c.live.Load()
	offline := c.offline.Load()
	failed := c.failed.Load()

	note := ""
	if err := ctx.Err(); err != nil {
		note = err.Error()
	}
	c.emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    finishedAt,
		Stage: progress.StageRunFinished,
		Dur:   finishedAt.Sub(startedAt),
		Note:  note,
	})

	if c.recorder != nil {
		recordCtx := ctx
		if recordCtx.Err() != nil {
			// The run context is gone; give the final row a short grace window.
			var cancel context.CancelFunc
			recordCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := c.recorder.CompleteRun(recordCtx, runID, finishedAt, int(live), int(offline), int(failed)); err != nil {
			c.logger.Warn("record run completion failed", zap.Error(err))
		}
	}

	c.logger.Info("run finished",
		zap.String("run_id", runID.String()),
		zap.Int("total", total),
		zap.Int64("live", live),
		zap.Int64("offline", offline),
		zap.Int64("failed", failed),
		zap.Duration("dur", finishedAt.Sub(startedAt)),
	)
}

// checkOne enriches a single bookmark. A panic inside the enrichment stack is
// recovered so one poisoned bookmark cannot take down the run; the input
// passes through unchanged in that case.
func (c *Coordinator) checkOne(
	ctx context.Context,
	runID uuid.UUID,
	bm bookmark.Bookmark,
	blessed bookmark.TagSet,
) (out bookmark.Bookmark) {
	defer func() {
		if rec := recover(); rec != nil {
			c.processed.Add(1)
			c.failed.Add(1)
			c.logger.Error("panic while enriching bookmark",
				zap.String("url", bm.Href),
				zap.Any("panic", rec),
			)
			out = bm.Clone()
		}
	}()

	enriched, report := c.enricher.Enrich(ctx, bm, blessed)
	c.processed.Add(1)
	if report.Outcome.Live {
		c.live.Add(1)
	} else {
		c.offline.Add(1)
	}
	c.observe(ctx, runID, enriched, report)
	return enriched
}

// observe fans one finished check out to the progress hub, the history store,
// and the publisher. Failures are logged, never propagated; enrichment output
// is already final at this point.
func (c *Coordinator) observe(ctx context.Context, runID uuid.UUID, bm bookmark.Bookmark, report enrich.Report) {
	now := time.Now().UTC()
	c.emit(progress.Event{
		RunID:       progress.UUIDToBytes(runID),
		TS:          now,
		Stage:       progress.StageBookmarkChecked,
		URL:         bm.Href,
		Method:      string(report.Outcome.Method),
		StatusClass: progress.ClassifyStatus(report.Outcome.StatusCode),
		Live:        report.Outcome.Live,
		Dur:         report.Duration,
	})

	if c.recorder != nil {
		check := history.CheckRecord{
			Href:        bm.Href,
			FinalURL:    report.Outcome.FinalURL,
			Live:        report.Outcome.Live,
			Method:      string(report.Outcome.Method),
			StatusCode:  report.Outcome.StatusCode,
			Redirected:  report.Redirected,
			Summarized:  report.Summarized,
			TagsAdded:   report.TagsAdded,
			TagsDropped: report.TagsDropped,
			Duration:    report.Duration,
			CheckedAt:   now,
		}
		if err := c.recorder.RecordCheck(ctx, runID, check); err != nil {
			c.logger.Warn("record bookmark check failed", zap.String("url", bm.Href), zap.Error(err))
		}
	}

	if c.publisher != nil && c.cfg.Topic != "" {
		payload := map[string]any{
			"run_id":     runID.String(),
			"url":        bm.Href,
			"live":       report.Outcome.Live,
			"method":     string(report.Outcome.Method),
			"status":     report.Outcome.StatusCode,
			"redirected": report.Redirected,
			"summarized": report.Summarized,
			"tags_added": report.TagsAdded,
			"snapshot":   report.SnapshotURI,
			"timestamp":  now.Format(time.RFC3339),
		}
		if _, err := c.publisher.Publish(ctx, c.cfg.Topic, payload); err != nil {
			c.logger.Warn("publish bookmark check failed", zap.String("url", bm.Href), zap.Error(err))
		}
	}
}

func (c *Coordinator) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}
