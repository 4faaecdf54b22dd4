package app

import (
	"context"
	"time"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/interfaces"
)

// schedulerInterval is how often the scheduler checks snapshot staleness.
// The snapshot TTL itself is configuration; this only bounds how soon after
// expiry a rebuild starts.
const schedulerInterval = 30 * time.Second

// startRefreshScheduler rebuilds the snapshot whenever it passes its TTL.
// A failed refresh keeps the previous snapshot and is retried on the next
// stale tick.
func startRefreshScheduler(ctx context.Context, service interfaces.MatchService, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Refresh scheduler: stopped")
			return
		case <-ticker.C:
			if !service.Stale() {
				continue
			}
			refreshSnapshot(ctx, service, logger)
		}
	}
}

func refreshSnapshot(ctx context.Context, service interfaces.MatchService, logger *common.Logger) {
	start := time.Now()

	snap, err := service.ForceRefresh(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Scheduled refresh failed - keeping previous snapshot")
		return
	}

	logger.Info().
		Int("markets", len(snap.Markets)).
		Bool("partial", snap.Partial).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled refresh: complete")
}
