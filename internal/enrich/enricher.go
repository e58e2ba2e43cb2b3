// Package enrich runs the per-bookmark pipeline: liveness, redirect
// bookkeeping, content extraction, LLM summary and tag suggestions,
// and the final tag lint. Enrichment never fails a bookmark; whatever
// could not be improved is simply left as it was.
package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
	"github.com/mlpeters/bookmark-enricher/internal/extract"
)

// Resolver decides whether a URL is reachable.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) bookmark.LivenessOutcome
}

// Fetcher performs the single direct content fetch used when liveness
// succeeded without bringing any markup along.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) *bookmark.FetchResult
}

// Generator produces summaries and tag suggestions. A nil Generator
// disables both.
type Generator interface {
	Summarize(ctx context.Context, text string) (string, error)
	SuggestTags(ctx context.Context, text string) ([]string, error)
}

// SnapshotStore archives retrieved page bodies. A nil store disables
// snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, rawURL string, body []byte) (string, error)
}

// Report describes what one enrichment did, for progress events,
// history rows, and published messages.
type Report struct {
	Outcome     bookmark.LivenessOutcome
	Redirected  bool
	Summarized  bool
	TagsAdded   int
	TagsDropped int
	SnapshotURI string
	Duration    time.Duration
}

// Enricher orchestrates the collaborators for one bookmark at a time.
// It is safe for concurrent use as long as its collaborators are.
type Enricher struct {
	resolver  Resolver
	fetcher   Fetcher
	generator Generator
	snapshots SnapshotStore
	logger    *zap.Logger
}

// New builds an Enricher. generator and snapshots may be nil.
func New(resolver Resolver, fetcher Fetcher, generator Generator, snapshots SnapshotStore, logger *zap.Logger) *Enricher {
	return &Enricher{
		resolver:  resolver,
		fetcher:   fetcher,
		generator: generator,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Enrich processes one bookmark and returns the enriched copy along
// with a report of what happened. The input is never mutated.
func (e *Enricher) Enrich(ctx context.Context, bm bookmark.Bookmark, blessed bookmark.TagSet) (bookmark.Bookmark, Report) {
	start := time.Now()
	b := bm.Clone()

	out := e.resolver.Resolve(ctx, b.Href)
	rep := Report{Outcome: out}

	if out.Live && out.FinalURL != "" && out.FinalURL != b.Href {
		e.logger.Info("bookmark redirected",
			zap.String("from", b.Href),
			zap.String("to", out.FinalURL))
		b.Href = out.FinalURL
		b.AddTag(bookmark.TagRedirected)
		rep.Redirected = true
	}

	if !out.Live {
		// Mark, lint, return. The stale Extended text stays: it may be
		// the only record of what the page used to say.
		e.logger.Info("bookmark offline", zap.String("href", b.Href))
		b.AddTag(bookmark.TagOffline)
		e.lint(&b, blessed, &rep)
		rep.Duration = time.Since(start)
		return b, rep
	}

	if e.snapshots != nil && len(out.Content) > 0 {
		uri, err := e.snapshots.Save(ctx, b.Href, out.Content)
		if err != nil {
			e.logger.Warn("snapshot save failed",
				zap.String("href", b.Href), zap.Error(err))
		} else {
			rep.SnapshotURI = uri
		}
	}

	if text := e.textSource(ctx, &b, out); text != "" {
		e.generate(ctx, &b, text, &rep)
	}

	e.lint(&b, blessed, &rep)
	rep.Duration = time.Since(start)
	return b, rep
}

// textSource picks the text the LLM will see, in strict precedence:
// the curator's own Extended notes, then markup the liveness probe
// already retrieved, then one direct fetch of the (possibly updated)
// href. No source means no LLM work for this bookmark.
func (e *Enricher) textSource(ctx context.Context, b *bookmark.Bookmark, out bookmark.LivenessOutcome) string {
	if b.Extended != "" {
		return b.Extended
	}
	if len(out.Content) > 0 {
		return extract.MainContent(out.Content)
	}
	if e.fetcher == nil {
		return ""
	}
	res := e.fetcher.Fetch(ctx, b.Href)
	if res == nil {
		e.logger.Debug("direct content fetch failed", zap.String("href", b.Href))
		return ""
	}
	return extract.MainContent(res.Body)
}

func (e *Enricher) generate(ctx context.Context, b *bookmark.Bookmark, text string, rep *Report) {
	if e.generator == nil {
		return
	}

	if b.Extended == "" {
		summary, err := e.generator.Summarize(ctx, text)
		switch {
		case err != nil:
			e.logger.Warn("summary generation failed",
				zap.String("href", b.Href), zap.Error(err))
		case summary != "":
			b.Extended = summary
			rep.Summarized = true
		}
	}

	tags, err := e.generator.SuggestTags(ctx, text)
	if err != nil {
		e.logger.Warn("tag suggestion failed",
			zap.String("href", b.Href), zap.Error(err))
		return
	}
	if len(tags) > 0 {
		before := len(b.Tags)
		b.Tags = bookmark.MergeTags(b.Tags, tags)
		rep.TagsAdded = len(b.Tags) - before
	}
}

// lint runs exactly once per bookmark, after every tag mutation.
func (e *Enricher) lint(b *bookmark.Bookmark, blessed bookmark.TagSet, rep *Report) {
	kept, dropped := bookmark.LintTags(b.Tags, blessed)
	if len(dropped) > 0 {
		e.logger.Debug("dropped unblessed tags",
			zap.String("href", b.Href),
			zap.Strings("dropped", dropped))
	}
	b.Tags = kept
	rep.TagsDropped = len(dropped)
}
