package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type tokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// runJanitor deletes expired refresh token records every interval until ctx is done
func runJanitor(ctx context.Context, purger tokenPurger, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpiredTokens(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("failed to purge expired refresh tokens", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				logger.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
