// Package sweeper periodically expires pending documents whose validity
// window has closed.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"signet/internal/document/metrics"
)

type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type Sweeper struct {
	store    Expirer
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(store Expirer, interval time.Duration, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Sweeper{store: store, interval: interval, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SweepAt expires everything due at now and returns how many documents moved.
func (s *Sweeper) SweepAt(ctx context.Context, now time.Time) (int, error) {
	n, err := s.store.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	s.metrics.AddExpired(n)
	if n > 0 {
		s.logger.InfoContext(ctx, "expired pending documents", "count", n)
	}
	return n, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.SweepAt(ctx, s.now()); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "document expiry sweep failed", "error", err)
	}
}
