package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/khabaroff/hwid-license-server/src/logging"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/rs/zerolog"
)

// MaxReasonLength bounds manual blacklist reasons
const MaxReasonLength = 255

// BlacklistService handles manual blacklist management
type BlacklistService struct {
	store  repositories.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewBlacklistService creates a new blacklist service
func NewBlacklistService(store repositories.Store) *BlacklistService {
	return &BlacklistService{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.NewLogger("blacklist"),
	}
}

// Add blacklists a key. Adding an already blacklisted key is a no-op that
// keeps the original reason; created reports whether a new entry was made.
func (bs *BlacklistService) Add(ctx context.Context, keyID, reason string) (*models.BlacklistEntry, bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.ReasonManualBlacklist
	}
	if len(reason) > MaxReasonLength {
		return nil, false, fmt.Errorf("%w: reason must be at most %d characters", ErrInvalidInput, MaxReasonLength)
	}

	var entry *models.BlacklistEntry
	var created bool
	err := bs.store.WithKeyTx(ctx, keyID, func(tx repositories.KeyTx) error {
		var err error
		created, err = tx.AddToBlacklist(ctx, reason, bs.now())
		if err != nil {
			return err
		}
		entry, err = tx.BlacklistEntry(ctx)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to blacklist key: %w", err)
	}

	if created {
		bs.logger.Info().Str("key", logging.MaskKey(keyID)).Str("reason", reason).Msg("Key blacklisted")
	}
	return entry, created, nil
}

// Remove lifts a blacklist entry
func (bs *BlacklistService) Remove(ctx context.Context, keyID string) error {
	err := bs.store.WithKeyTx(ctx, keyID, func(tx repositories.KeyTx) error {
		return tx.RemoveFromBlacklist(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to remove blacklist entry: %w", err)
	}

	bs.logger.Info().Str("key", logging.MaskKey(keyID)).Msg("Key removed from blacklist")
	return nil
}

// IsBlacklisted reports whether the key has a blacklist entry
func (bs *BlacklistService) IsBlacklisted(ctx context.Context, keyID string) (bool, error) {
	var blacklisted bool
	err := bs.store.WithKeyTx(ctx, keyID, func(tx repositories.KeyTx) error {
		entry, err := tx.BlacklistEntry(ctx)
		blacklisted = entry != nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return blacklisted, nil
}

// List returns every blacklist entry, oldest first
func (bs *BlacklistService) List(ctx context.Context) ([]models.BlacklistEntry, error) {
	entries, err := bs.store.ListBlacklist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	return entries, nil
}
