// Package app assembles the enrichment pipeline from configuration
// and owns the lifecycle of every long-lived resource: the progress
// hub, the LLM cache, cloud clients, the history pool, and the status
// server. Commands build one App, call into it, and Close it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/api"
	"github.com/mlpeters/bookmark-enricher/internal/batch"
	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
	"github.com/mlpeters/bookmark-enricher/internal/cache"
	"github.com/mlpeters/bookmark-enricher/internal/config"
	"github.com/mlpeters/bookmark-enricher/internal/enrich"
	"github.com/mlpeters/bookmark-enricher/internal/fetch"
	"github.com/mlpeters/bookmark-enricher/internal/history"
	"github.com/mlpeters/bookmark-enricher/internal/liveness"
	"github.com/mlpeters/bookmark-enricher/internal/llm"
	"github.com/mlpeters/bookmark-enricher/internal/progress"
	progresssinks "github.com/mlpeters/bookmark-enricher/internal/progress/sinks"
	memorypublisher "github.com/mlpeters/bookmark-enricher/internal/publisher/memory"
	gcppublisher "github.com/mlpeters/bookmark-enricher/internal/publisher/pubsub"
	"github.com/mlpeters/bookmark-enricher/internal/ratelimit"
	"github.com/mlpeters/bookmark-enricher/internal/render"
	"github.com/mlpeters/bookmark-enricher/internal/snapshot"
	"github.com/mlpeters/bookmark-enricher/internal/store"
)

// ErrCacheDisabled is returned by PurgeCache when no cache path is
// configured.
var ErrCacheDisabled = errors.New("llm cache is not configured")

// App holds the wired pipeline and the resources it owns.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	registry *prometheus.Registry
	resolver *liveness.Resolver
	enricher *enrich.Enricher
	coord    *batch.Coordinator

	hub          *progress.Hub
	llmCache     *cache.Store
	gcsClient    *gcstorage.Client
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	historyStore *history.Store
	httpServer   *http.Server
}

// New builds the full pipeline from cfg. Optional collaborators that
// are disabled in cfg stay nil and the pipeline skips them. Callers
// must Close the returned App.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: cfg.RateLimit.PerHostRPS,
		Burst:      cfg.RateLimit.Burst,
	})
	fetcher := fetch.New(fetch.Config{
		UserAgent:  cfg.HTTP.UserAgent,
		Timeout:    cfg.HTTPTimeout(),
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryDelay: cfg.HTTPRetryDelay(),
	}, limiter, logger.Named("fetch"))

	var renderer liveness.Renderer
	if cfg.Render.Enabled {
		renderer = render.New(render.Config{
			UserAgent:  cfg.HTTP.UserAgent,
			NavTimeout: cfg.RenderNavTimeout(),
			MaxRetries: cfg.Render.MaxRetries,
			RetryDelay: cfg.RenderRetryDelay(),
		}, limiter, logger.Named("render"))
		logger.Info("headless fallback enabled",
			zap.Duration("nav_timeout", cfg.RenderNavTimeout()))
	} else {
		logger.Info("headless fallback disabled")
	}
	a.resolver = liveness.New(fetcher, renderer, logger.Named("liveness"))

	if err := a.setupCache(); err != nil {
		return nil, err
	}
	generator, err := a.setupGenerator()
	if err != nil {
		return nil, err
	}
	snapshots, err := a.setupSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.setupHistory(ctx); err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	emitter := a.setupProgress(ctx)

	a.enricher = enrich.New(a.resolver, fetcher, generator, snapshots, logger.Named("enrich"))

	var recorder batch.Recorder
	if a.historyStore != nil {
		recorder = a.historyStore
	}
	a.coord = batch.New(a.enricher, emitter, recorder, publisher, batch.Config{
		Concurrency: cfg.Batch.Concurrency,
		Topic:       cfg.PubSub.Topic,
	}, logger.Named("batch"))

	if cfg.Server.Enabled {
		a.startServer()
	}

	return a, nil
}

// RunBatch loads bookmarks from inputPath, enriches them, and writes
// the result to outputPath. The output is written even when ctx was
// cancelled mid-run: processed slots carry their enrichment and
// unprocessed slots pass the input through untouched.
func (a *App) RunBatch(ctx context.Context, inputPath, outputPath string) error {
	bms, err := store.LoadBookmarks(inputPath)
	if err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	a.logger.Info("bookmarks loaded",
		zap.String("path", inputPath),
		zap.Int("count", len(bms)))

	blessed := bookmark.NewTagSet()
	if a.cfg.Tags.BlessedPath != "" {
		blessed, err = store.LoadBlessedTags(a.cfg.Tags.BlessedPath, a.logger)
		if err != nil {
			return fmt.Errorf("load blessed tags: %w", err)
		}
	}

	results, runErr := a.coord.Run(ctx, bms, blessed)

	if err := store.SaveBookmarks(outputPath, results); err != nil {
		return fmt.Errorf("save bookmarks: %w", err)
	}

	st := a.coord.Status()
	a.logger.Info("batch complete",
		zap.String("path", outputPath),
		zap.Int64("total", st.Total),
		zap.Int64("processed", st.Processed),
		zap.Int64("live", st.Live),
		zap.Int64("offline", st.Offline),
		zap.Int64("failed", st.Failed))
	return runErr
}

// CheckURL probes a single URL through the full fetch-then-render
// chain and returns the verdict.
func (a *App) CheckURL(ctx context.Context, rawURL string) bookmark.LivenessOutcome {
	out := a.resolver.Resolve(ctx, rawURL)
	a.logger.Info("liveness check complete",
		zap.String("url", rawURL),
		zap.Bool("live", out.Live),
		zap.String("method", string(out.Method)),
		zap.Int("status", out.StatusCode),
		zap.String("final_url", out.FinalURL))
	return out
}

// PurgeCache deletes expired LLM cache rows and reports how many went.
func (a *App) PurgeCache(ctx context.Context) (int64, error) {
	if a.llmCache == nil {
		return 0, ErrCacheDisabled
	}
	n, err := a.llmCache.Purge(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge llm cache: %w", err)
	}
	a.logger.Info("llm cache purged", zap.Int64("expired_rows", n))
	return n, nil
}

// Status exposes the coordinator's run snapshot, mainly for the CLI.
func (a *App) Status() batch.Status {
	return a.coord.Status()
}

// Close releases resources in reverse acquisition order: the status
// server first so no request observes a half-closed pipeline, then
// the hub so buffered events still reach their sinks.
func (a *App) Close(ctx context.Context) error {
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("status server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.historyStore != nil {
		a.historyStore.Close()
	}
	if a.llmCache != nil {
		if err := a.llmCache.Close(); err != nil {
			a.logger.Warn("llm cache close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	if err := a.logger.Sync(); err != nil {
		// Syncing stderr fails on some platforms; nothing useful to do.
		_ = err
	}
	return nil
}

func (a *App) setupCache() error {
	if a.cfg.Cache.Path == "" {
		return nil
	}
	c, err := cache.Open(a.cfg.Cache.Path, a.cfg.CacheTTL())
	if err != nil {
		return fmt.Errorf("llm cache open failed: %w", err)
	}
	a.llmCache = c
	a.logger.Info("llm response cache enabled",
		zap.String("path", a.cfg.Cache.Path),
		zap.Duration("ttl", a.cfg.CacheTTL()))
	return nil
}

func (a *App) setupGenerator() (enrich.Generator, error) {
	if !a.cfg.LLM.Enabled {
		a.logger.Info("llm enrichment disabled")
		return nil, nil
	}
	client, err := llm.NewClient(llm.Config{
		APIKey:        a.cfg.LLM.APIKey,
		Model:         a.cfg.LLM.Model,
		MaxTokens:     a.cfg.LLM.MaxTokens,
		MaxInputRunes: a.cfg.LLM.MaxInputRunes,
	}, a.logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}
	a.logger.Info("llm enrichment enabled", zap.String("model", a.cfg.LLM.Model))
	if a.llmCache == nil {
		return client, nil
	}
	return llm.NewCachedGenerator(client, a.llmCache, a.cfg.LLM.Model, a.logger.Named("llm_cache")), nil
}

func (a *App) setupSnapshots(ctx context.Context) (enrich.SnapshotStore, error) {
	switch a.cfg.Snapshot.Backend {
	case "local":
		local, err := snapshot.NewLocal(a.cfg.Snapshot.LocalDir, a.cfg.Snapshot.Prefix)
		if err != nil {
			return nil, fmt.Errorf("local snapshot store init failed: %w", err)
		}
		a.logger.Info("using local snapshot store",
			zap.String("dir", a.cfg.Snapshot.LocalDir))
		return local, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		s, err := snapshot.NewGCS(client, a.cfg.Snapshot.GCSBucket, a.cfg.Snapshot.Prefix, a.cfg.Snapshot.ContentType)
		if err != nil {
			return nil, fmt.Errorf("gcs snapshot store init failed: %w", err)
		}
		a.logger.Info("using gcs snapshot store",
			zap.String("bucket", a.cfg.Snapshot.GCSBucket))
		return s, nil
	default:
		a.logger.Info("page snapshots disabled")
		return nil, nil
	}
}

func (a *App) setupHistory(ctx context.Context) error {
	if !a.cfg.History.Enabled {
		return nil
	}
	s, err := history.New(ctx, history.Config{DSN: a.cfg.History.DSN})
	if err != nil {
		return fmt.Errorf("history store init failed: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return fmt.Errorf("history schema init failed: %w", err)
	}
	a.historyStore = s
	a.logger.Info("run history enabled")
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (batch.Publisher, error) {
	if a.cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.publisher = gcppublisher.New(client)
		a.logger.Info("pub/sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.Topic))
		return a.publisher, nil
	}
	if a.cfg.PubSub.Topic != "" {
		a.logger.Warn("pub/sub disabled but a topic is set, recording messages in memory")
		return memorypublisher.New(), nil
	}
	return nil, nil
}

func (a *App) setupProgress(ctx context.Context) progress.Emitter {
	sinks := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress")),
	}
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		a.logger.Warn("prometheus sink init failed", zap.Error(err))
	} else {
		sinks = append(sinks, promSink)
	}
	a.hub = progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      a.logger.Named("progress_hub"),
	}, sinks...)
	return a.hub
}

func (a *App) startServer() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewServer(a.coord.Status, a.registry, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.httpServer = srv
	go func() {
		a.logger.Info("status server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server error", zap.Error(err))
		}
	}()
}
