// Package main hosts the enricher entrypoint.
//
// Architecture overview:
//   - Pipeline: internal/liveness resolves each bookmark through the Colly
//     fetcher first and the Chromedp renderer as a fallback; internal/extract
//     pulls main content out of the retrieved markup; internal/llm asks the
//     Anthropic API for a summary and tag suggestions (memoized in a SQLite
//     cache); internal/enrich strings these together per bookmark and lints
//     tags against the blessed set.
//   - Batch run: internal/batch fans the export out to a bounded worker pool,
//     preserves input order in the output, isolates per-bookmark panics, and
//     on cancellation passes unprocessed bookmarks through unchanged so the
//     output file is always complete.
//   - Persistence & fanout: enriched exports are written back as Pinboard
//     JSON; page snapshots go to local disk or GCS when configured; run and
//     per-check rows go to Postgres when a DSN is set; a compact Pub/Sub
//     message is published per check when a topic is configured. Progress
//     events are buffered by internal/progress and fanned out to the zap log
//     sink and the Prometheus sink.
//   - Configuration & plumbing: Viper populates config from a YAML file and
//     ENRICHER_* env vars; zap provides structured logging; the optional chi
//     status server exposes /healthz, /readyz, /metrics, and /api/status.
//
// Operational notes:
//   - Concurrency model: fixed worker pool sized by batch.concurrency with a
//     per-host token bucket shared by the fetcher and the renderer. Shutdown
//     is coordinated via context cancellation from main through the
//     coordinator to the workers.
//   - Retry budgets: plain fetches retry transient failures up to
//     http.max_retries with a fixed delay; renders retry once. Remote HTTP
//     rejections are never retried.
//   - Run locally: go run ./cmd/enricher run bookmarks.json enriched.json
//     (or rely solely on ENRICHER_* env overrides).
package main
