package topup

import (
	"context"
	"time"

	"offerpay/internal/logger"
	"offerpay/internal/metrics"
)

// Sweeper periodically reconciles attempts the gateway never confirmed,
// moving them to failed once they exceed the maximum pending age. It is the
// only background work the settlement core owns.
type Sweeper struct {
	attempts Repository
	interval time.Duration
	maxAge   time.Duration
}

func NewSweeper(attempts Repository, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		attempts: attempts,
		interval: interval,
		maxAge:   maxAge,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	logger.Info("top-up sweeper started", "interval", s.interval.String(), "max_age", s.maxAge.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("top-up sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	swept, err := s.attempts.FailStale(ctx, s.maxAge)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		return
	}
	if swept > 0 {
		metrics.StaleAttemptsSweptTotal.Add(float64(swept))
		logger.Info("swept stale top-up attempts", "count", swept)
	}
}
