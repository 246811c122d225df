package collector

import (
	"context"
	"log/slog"
	"time"

	"allepoints-backend/lib/timezone"
)

// StartDaemon launches the hourly sync loop. A sync only happens on
// the configured hours so the platform isn't polled all day.
func (s *Service) StartDaemon(ctx context.Context) {
	go s.syncDaemon(ctx)
}

func (s *Service) syncDaemon(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := timezone.Now()
			if !s.shouldSyncAt(now.Hour()) {
				continue
			}

			ctx, cancel := context.WithTimeout(ctx, time.Hour)
			_, err := s.RunOnce(ctx)
			if err != nil && err != ErrSyncInProgress {
				slog.ErrorContext(ctx, "scheduled sync", "err", err)
			}
			cancel()
		}
	}
}

func (s *Service) shouldSyncAt(hour int) bool {
	for _, h := range s.syncHours {
		if h == hour {
			return true
		}
	}
	return false
}
