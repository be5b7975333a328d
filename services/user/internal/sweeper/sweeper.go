// Package sweeper periodically removes expired refresh tokens and clears
// expired account locks.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/intelliguard/intelliguard/pkg/clock"
)

var sweptRows = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "user_sweeper_rows_total",
	Help: "Rows affected by the hygiene sweep.",
}, []string{"kind"})

// TokenStore deletes refresh tokens that expired before now.
type TokenStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LockStore clears lockedUntil on accounts whose lock already ended.
type LockStore interface {
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs both hygiene jobs on a fixed interval.
type Sweeper struct {
	tokens   TokenStore
	locks    LockStore
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Sweeper. A nil clock means the system clock.
func New(tokens TokenStore, locks LockStore, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Sweeper {
	if clk == nil {
		clk = clock.System()
	}
	return &Sweeper{tokens: tokens, locks: locks, clock: clk, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs both jobs once. A failing job is logged and does not stop
// the other.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.clock.Now()

	deleted, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("refresh token sweep failed", slog.String("error", err.Error()))
	} else if deleted > 0 {
		sweptRows.WithLabelValues("expired_refresh_tokens").Add(float64(deleted))
		s.logger.Info("expired refresh tokens deleted", slog.Int64("deleted", deleted))
	}

	cleared, err := s.locks.ClearExpiredLocks(ctx, now)
	if err != nil {
		s.logger.Error("lock sweep failed", slog.String("error", err.Error()))
	} else if cleared > 0 {
		sweptRows.WithLabelValues("expired_locks").Add(float64(cleared))
		s.logger.Info("expired locks cleared", slog.Int64("cleared", cleared))
	}
}
