package quota

import (
	"context"
	"log/slog"
	"time"
)

// Purger is implemented by stores that can drop the counters of past days.
type Purger interface {
	PurgeBefore(ctx context.Context, day time.Time) (int64, error)
}

// StartPurgeLoop deletes counters older than keepDays every interval until
// ctx is cancelled. The first purge runs immediately.
func StartPurgeLoop(ctx context.Context, p Purger, interval time.Duration, keepDays int) {
	logger := slog.Default().With("component", "quota-purge")
	purge := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -keepDays)
		n, err := p.PurgeBefore(ctx, cutoff)
		if err != nil {
			logger.Error("purging quota counters failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("quota counters purged", "removed", n, "before", DayKey(cutoff))
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		purge()
		for {
			select {
			case <-ticker.C:
				purge()
			case <-ctx.Done():
				return
			}
		}
	}()
}
