// Package ratelimit paces browser launches per host with token buckets so a
// burst of tasks against one site does not start every browser at once.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// Observer receives the delay a Wait introduced for a host.
type Observer interface {
	ObserveLaunchDelay(host string, d time.Duration)
}

// Config holds pacing configuration. A non-positive LaunchesPerSecond
// disables pacing.
type Config struct {
	LaunchesPerSecond float64
	Burst             int
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	observer Observer
}

// New creates a Limiter.
func New(cfg Config, observer Observer) *Limiter {
	limit := rate.Limit(cfg.LaunchesPerSecond)
	if cfg.LaunchesPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		observer: observer,
	}
}

// Wait blocks until a launch for rawURL's host is allowed or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := crawler.Hostname(rawURL)
	if host == "" {
		host = "unknown"
	}
	limiter := l.bucket(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("launch pacing for %s: %w", host, err)
	}
	// Immediate grants are not delays.
	if d := time.Since(start); d > time.Millisecond && l.observer != nil {
		l.observer.ObserveLaunchDelay(host, d)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}
