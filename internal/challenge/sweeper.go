package challenge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/authpay/server/internal/metrics"
)

// Sweeper purges expired challenges. It runs on a fixed interval and is also
// invoked opportunistically from the health endpoint; both paths go through
// RunOnce, which is safe to call arbitrarily often and concurrently with
// live traffic.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      *zap.Logger
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store Store, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, log: log}
}

// RunOnce removes every challenge expired as of now and reports the count.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (int, error) {
	removed, err := s.store.Sweep(ctx, now)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.SweptChallenges.Add(float64(removed))
		s.log.Info("cleaned up expired challenges", zap.Int("removed", removed))
	}
	return removed, nil
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, time.Now()); err != nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
