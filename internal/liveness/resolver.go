// Package liveness decides whether a bookmarked URL is reachable,
// trying the cheap plain fetch first and falling back to a headless
// render only when the fetch fails.
package liveness

import (
	"context"

	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
)

// Fetcher is the plain HTTP probe.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) *bookmark.FetchResult
}

// Renderer is the headless browser probe.
type Renderer interface {
	Render(ctx context.Context, rawURL string) *bookmark.FetchResult
}

// Resolver runs the fetch-then-render fallback chain. The renderer is
// optional; without one the chain is just the fetch.
type Resolver struct {
	fetcher  Fetcher
	renderer Renderer
	logger   *zap.Logger
}

// New builds a Resolver. renderer may be nil.
func New(fetcher Fetcher, renderer Renderer, logger *zap.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, renderer: renderer, logger: logger}
}

// Resolve probes rawURL and returns the verdict. Every field of a live
// outcome comes from the one method that succeeded; the renderer is
// never consulted when the fetch succeeds, and its result is never
// mixed with the fetcher's.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) bookmark.LivenessOutcome {
	if res := r.fetcher.Fetch(ctx, rawURL); res != nil {
		return bookmark.FromResult(bookmark.MethodFetch, res)
	}

	if r.renderer == nil {
		r.logger.Debug("liveness: fetch failed, no renderer configured",
			zap.String("url", rawURL))
		return bookmark.Dead()
	}

	r.logger.Debug("liveness: fetch failed, falling back to render",
		zap.String("url", rawURL))
	if res := r.renderer.Render(ctx, rawURL); res != nil {
		return bookmark.FromResult(bookmark.MethodRender, res)
	}

	r.logger.Debug("liveness: all probes failed", zap.String("url", rawURL))
	return bookmark.Dead()
}
