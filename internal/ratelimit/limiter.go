// Package ratelimit implements the per-host token bucket shared by the
// fetcher and the renderer so batch runs stay polite to each host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds rate limiter settings. PerHostRPS at or below zero
// disables limiting entirely.
type Config struct {
	PerHostRPS float64
	Burst      int
}

// Limiter hands out tokens per host, creating buckets lazily.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until the host of rawURL has a token, respecting ctx.
// URLs that do not parse share a single bucket rather than bypassing
// the limiter.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	return nil
}
