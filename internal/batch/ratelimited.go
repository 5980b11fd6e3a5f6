package batch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig caps how fast documents are started. OCR and the
// rasterizer CLIs are CPU heavy, so a batch can be throttled below what the
// worker count alone would allow.
type RateLimiterConfig struct {
	// RPS - documents started per second (0 = unlimited)
	RPS float64

	// Burst size for rate limiter
	Burst int
}

type limiter struct {
	rl *rate.Limiter
}

func newLimiter(cfg RateLimiterConfig) *limiter {
	if cfg.RPS <= 0 {
		return &limiter{}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &limiter{rl: rate.NewLimiter(rate.Limit(cfg.RPS), burst)}
}

func (l *limiter) wait(ctx context.Context) error {
	if l.rl == nil {
		return ctx.Err()
	}
	return l.rl.Wait(ctx)
}

// ProgressTracker tracks batch processing progress
type ProgressTracker struct {
	Total     int
	Completed int
	StartTime time.Time
	mu        sync.RWMutex
}

// Increment marks one item done and returns the new count.
func (p *ProgressTracker) Increment() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Completed++
	return p.Completed
}

func (p *ProgressTracker) Percent() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

func (p *ProgressTracker) Elapsed() time.Duration {
	return time.Since(p.StartTime)
}

func (p *ProgressTracker) ETA() time.Duration {
	p.mu.RLock()
	completed := p.Completed
	total := p.Total
	p.mu.RUnlock()

	if completed == 0 {
		return 0
	}

	perItem := p.Elapsed() / time.Duration(completed)
	return perItem * time.Duration(total-completed)
}
