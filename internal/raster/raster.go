// Package raster renders PDF pages to images so they can be OCRed.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/vetscan/internal/errors"
	"github.com/gmsas95/vetscan/internal/metrics"
)

// ErrBackendUnavailable means the backend's tool or library is not installed.
var ErrBackendUnavailable = apperrors.ErrBackendUnavailable

// ErrBackendCrashed means the backend died rather than rejecting the input,
// e.g. the renderer was killed by a signal.
var ErrBackendCrashed = errors.New("backend crashed")

// Backend renders every page of a PDF.
type Backend interface {
	Name() string
	Rasterize(ctx context.Context, path string) ([]image.Image, error)
}

// Checker is implemented by backends that can report installation status
// without rendering anything.
type Checker interface {
	Available() error
}

// BreakerSettings controls the per-backend circuit breaker.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// DefaultBreakerSettings trips after three consecutive failures and tries
// again after a minute.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{MaxFailures: 3, OpenTimeout: time.Minute}
}

type guardedBackend struct {
	Backend
	cb *gobreaker.CircuitBreaker[[]image.Image]
}

// Chain tries backends in order and returns the first success.
type Chain struct {
	backends []guardedBackend
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewChain wraps each backend in its own circuit breaker. Order is priority.
func NewChain(backends []Backend, settings BreakerSettings, logger *zap.Logger, m *metrics.Metrics) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}
	c := &Chain{logger: logger, metrics: m}
	for _, b := range backends {
		c.backends = append(c.backends, guardedBackend{
			Backend: b,
			cb:      newBreaker(b.Name(), settings, logger),
		})
	}
	return c
}

func newBreaker(name string, s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker[[]image.Image] {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	return gobreaker.NewCircuitBreaker[[]image.Image](gobreaker.Settings{
		Name:        "raster:" + name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Only faults of the backend itself count. A corrupt upload makes
		// every backend fail and must not trip the breaker for other callers.
		IsSuccessful: func(err error) bool {
			return !isBackendFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func isBackendFault(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrBackendCrashed) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Backends returns the configured backends in priority order.
func (c *Chain) Backends() []Backend {
	out := make([]Backend, len(c.backends))
	for i, b := range c.backends {
		out[i] = b.Backend
	}
	return out
}

// Rasterize returns the pages from the first backend that succeeds. When all
// fail the error is an ExtractionError listing every attempt.
func (c *Chain) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	var attempts []apperrors.Attempt
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		strategy := "raster:" + b.Name()
		pages, err := b.cb.Execute(func() ([]image.Image, error) {
			return b.Rasterize(ctx, path)
		})
		if err != nil {
			outcome := metrics.OutcomeFailure
			if errors.Is(err, ErrBackendUnavailable) {
				outcome = metrics.OutcomeUnavailable
				c.logger.Info("Rasterizer not available", zap.String("backend", b.Name()))
			} else {
				c.logger.Warn("Rasterizer failed",
					zap.String("backend", b.Name()),
					zap.Error(err),
				)
			}
			c.metrics.RecordAttempt(strategy, outcome)
			attempts = append(attempts, apperrors.Attempt{Strategy: strategy, Err: err})
			continue
		}

		c.metrics.RecordAttempt(strategy, metrics.OutcomeSuccess)
		c.logger.Info("Rasterized document",
			zap.String("backend", b.Name()),
			zap.Int("pages", len(pages)),
		)
		return pages, nil
	}

	return nil, apperrors.NewExtractionError(apperrors.StageRasterize, "no rasterization method available", nil).
		WithAttempts(attempts)
}

// Options configures the built-in backends.
type Options struct {
	DPI       int
	FitzScale float64
	MaxPages  int
	TempDir   string
}

// Build returns the named backends in the given order.
func Build(names []string, opts Options) ([]Backend, error) {
	var out []Backend
	for _, name := range names {
		switch name {
		case "pdftoppm":
			p := NewPdftoppm(opts.DPI, opts.MaxPages)
			p.tempDir = opts.TempDir
			out = append(out, p)
		case "fitz":
			out = append(out, NewFitz(opts.FitzScale*72, opts.MaxPages))
		case "magick":
			m := NewMagick(opts.DPI, opts.MaxPages)
			m.tempDir = opts.TempDir
			out = append(out, m)
		default:
			return nil, fmt.Errorf("unknown rasterizer %q", name)
		}
	}
	return out, nil
}
