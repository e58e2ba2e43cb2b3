// Package render implements the headless browser fallback for
// liveness checking. A fresh Chrome process is allocated per render
// and torn down before the call returns, so failures on one bookmark
// can never poison the next. Like the fetcher, the renderer absorbs
// its failures: callers see a nil result, not an error.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
)

// Config controls navigation and retry behavior.
type Config struct {
	UserAgent  string
	NavTimeout time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Limiter is the per-host politeness gate consulted before each
// attempt. A nil Limiter means no limiting.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Renderer drives headless Chrome through chromedp.
type Renderer struct {
	cfg     Config
	limiter Limiter
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
	// navigate is swapped out in tests; the default spins up Chrome.
	navigate func(ctx context.Context, rawURL string) (pageSnapshot, error)
}

// pageSnapshot is everything one navigation yields: the serialized
// DOM, the address bar location, and the main document response as
// observed on the CDP network domain (status zero when no document
// response was seen).
type pageSnapshot struct {
	html        string
	locationURL string
	status      int
	responseURL string
}

var (
	errRemoteRejected = errors.New("document response was an http error")
	errBlankPage      = errors.New("navigation produced no response and no content")
)

// New builds a Renderer.
func New(cfg Config, limiter Limiter, logger *zap.Logger) *Renderer {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	r := &Renderer{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		sleep:   sleepWithContext,
	}
	r.navigate = r.navigateChrome
	return r
}

// Render loads rawURL in a headless browser and reports the outcome.
// Navigation faults get one retry after a fixed delay; a document
// response with an error status, or a navigation that yields neither
// a response nor any content, is definitive and consumes no retries.
// Returns nil when the page is dead from the renderer's point of view.
func (r *Renderer) Render(ctx context.Context, rawURL string) *bookmark.FetchResult {
	attempts := r.cfg.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := r.sleep(ctx, r.cfg.RetryDelay); err != nil {
				return nil
			}
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx, rawURL); err != nil {
				return nil
			}
		}

		snap, err := r.navigate(ctx, rawURL)
		if err != nil {
			r.logger.Debug("render attempt failed",
				zap.String("url", rawURL),
				zap.Int("attempt", i+1),
				zap.Error(err))
			continue
		}

		res, err := decide(snap, rawURL)
		if err != nil {
			r.logger.Debug("render produced no usable page",
				zap.String("url", rawURL),
				zap.Int("status", snap.status),
				zap.Error(err))
			return nil
		}
		return res
	}

	r.logger.Debug("render retries exhausted",
		zap.String("url", rawURL),
		zap.Int("attempts", attempts))
	return nil
}

// decide maps a navigation snapshot onto the liveness contract:
// an error status is a rejection; a missing document response counts
// as 200 when the browser rendered something and as a dead page when
// it rendered nothing at all.
func decide(snap pageSnapshot, requestURL string) (*bookmark.FetchResult, error) {
	status := snap.status
	switch {
	case status >= 400 && status < 600:
		return nil, errRemoteRejected
	case status == 0 && len(snap.html) == 0:
		return nil, errBlankPage
	case status == 0:
		status = http.StatusOK
	}

	finalURL := snap.responseURL
	if finalURL == "" {
		finalURL = snap.locationURL
	}
	if finalURL == "" {
		finalURL = requestURL
	}

	return &bookmark.FetchResult{
		FinalURL:   finalURL,
		StatusCode: status,
		Body:       []byte(snap.html),
	}, nil
}

// navigateChrome performs one real navigation. Allocator, browser tab
// and timeout contexts are all scoped to this call.
func (r *Renderer) navigateChrome(ctx context.Context, rawURL string) (pageSnapshot, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, r.cfg.NavTimeout)
	defer timeoutCancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var (
		html        string
		locationURL string
	)
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&locationURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return pageSnapshot{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, responseURL := meta.snapshot()
	return pageSnapshot{
		html:        html,
		locationURL: locationURL,
		status:      status,
		responseURL: responseURL,
	}, nil
}

func (r *Renderer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// responseMeta records the main document response seen on the CDP
// network domain during navigation.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok {
		return
	}
	if resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}

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
