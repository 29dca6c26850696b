package services

import (
	"context"
	"time"

	"github.com/khabaroff/hwid-license-server/src/logging"
	"github.com/rs/zerolog"
)

// CleanupService periodically purges keys that expired long ago
type CleanupService struct {
	keys      *KeyService
	enabled   bool
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
	logger    zerolog.Logger
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(keys *KeyService, enabled bool, retention time.Duration) *CleanupService {
	return &CleanupService{
		keys:      keys,
		enabled:   enabled,
		retention: retention,
		interval:  24 * time.Hour, // Run daily
		now:       func() time.Time { return time.Now().UTC() },
		done:      make(chan struct{}),
		logger:    logging.NewLogger("cleanup"),
	}
}

// Start starts the cleanup service
func (cs *CleanupService) Start(ctx context.Context) {
	if !cs.enabled {
		cs.logger.Info().Msg("Cleanup service is disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				cs.logger.Info().Msg("Cleanup service stopped")
				return
			case <-cs.done:
				cs.logger.Info().Msg("Cleanup service stopped")
				return
			case <-ticker.C:
				cs.RunOnce(ctx)
			}
		}
	}()

	cs.logger.Info().Dur("retention", cs.retention).Msg("Cleanup service started")
}

// Stop stops the cleanup service
func (cs *CleanupService) Stop() {
	if !cs.enabled {
		return
	}
	select {
	case <-cs.done:
	default:
		close(cs.done)
	}
}

// RunOnce deletes keys whose expiry is older than the retention period
func (cs *CleanupService) RunOnce(ctx context.Context) int {
	cutoff := cs.now().Add(-cs.retention)

	deleted, err := cs.keys.PurgeExpired(ctx, cutoff)
	if err != nil {
		cs.logger.Error().Err(err).Int("deleted", deleted).Msg("Cleanup error")
		return deleted
	}

	if deleted > 0 {
		cs.logger.Info().Int("deleted", deleted).Msg("Cleanup completed: deleted expired keys")
	}
	return deleted
}
