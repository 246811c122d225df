package notifier

import (
	"context"
	"log/slog"
	"time"

	"allepoints-backend/lib/timezone"
)

// StartDaemon launches the daily digest loop.
func (s Service) StartDaemon(ctx context.Context) {
	go s.digestDaemon(ctx)
}

func (s Service) digestDaemon(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := timezone.Now()
			if now.Hour() != s.config.DigestHour {
				continue
			}
			err := s.SendDigest(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "send expiring points digest", "err", err)
			}
		}
	}
}
