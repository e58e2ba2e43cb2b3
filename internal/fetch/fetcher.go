// Package fetch implements the plain HTTP side of liveness checking
// using a Colly collector. Failures never escape as errors: a bookmark
// that cannot be fetched produces a nil result and the resolver moves
// on to the renderer.
package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
)

// Config controls collector and retry behavior.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Limiter is the per-host politeness gate consulted before each
// attempt. A nil Limiter means no limiting.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher issues single GET requests with transient-failure retries.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Limiter
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration) error
}

// New builds a Fetcher. All attempts share one pooled transport;
// each attempt runs on a fresh collector clone.
func New(cfg Config, limiter Limiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	// Retries revisit the same URL; the shared visit store must not
	// reject the second attempt.
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
		sleep:         sleepWithContext,
	}
}

// Fetch GETs rawURL and reports the terminal response. It returns nil
// when the URL is dead from this fetcher's point of view: remote
// rejections (status >= 400) immediately, transient transport failures
// after the retry budget is spent. Redirects are followed and the
// result carries the final URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *bookmark.FetchResult {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		f.logger.Debug("fetch skipped: unparseable url",
			zap.String("url", rawURL), zap.Error(err))
		return nil
	}

	attempts := f.cfg.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
				return nil
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return nil
			}
		}

		res, err := f.attempt(ctx, rawURL)
		if err != nil {
			f.logger.Debug("fetch attempt failed",
				zap.String("url", rawURL),
				zap.Int("attempt", i+1),
				zap.Error(err))
			continue
		}
		if res.StatusCode >= http.StatusBadRequest {
			// The server answered; retrying will not change its mind.
			f.logger.Debug("fetch rejected by remote",
				zap.String("url", rawURL),
				zap.Int("status", res.StatusCode))
			return nil
		}
		return res
	}

	f.logger.Debug("fetch retries exhausted",
		zap.String("url", rawURL),
		zap.Int("attempts", attempts))
	return nil
}

// attempt performs one GET. HTTP error statuses are parsed into
// results rather than surfaced as errors so the caller can tell a
// remote rejection from a transport fault.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*bookmark.FetchResult, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   *bookmark.FetchResult
		fetchErr error
	)

	collector.OnResponse(func(r *colly.Response) {
		body := append([]byte(nil), r.Body...)
		if body == nil {
			body = []byte{}
		}
		result = &bookmark.FetchResult{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       body,
		}
	})

	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, err
		}
	}
	if result == nil {
		return nil, errNoResponse
	}
	return result, nil
}

var errNoResponse = errors.New("no response received")

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
