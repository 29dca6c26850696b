package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/khabaroff/hwid-license-server/src/logging"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/rs/zerolog"
)

// KeyPrefix is prepended to every generated license key
const KeyPrefix = "lk_"

// maxKeyGenerationAttempts bounds retries on identifier collisions
const maxKeyGenerationAttempts = 5

// CreateKeyParams holds the optional limits of a new key
type CreateKeyParams struct {
	ExpiresAt *time.Time
	MaxUses   *int
}

// ResetResult describes what a HWID reset removed
type ResetResult struct {
	AttemptsCleared int64 `json:"attempts_cleared"`
	BindingCleared  bool  `json:"binding_cleared"`
}

// KeyService handles the admin side of license keys
type KeyService struct {
	store              repositories.Store
	resetClearsBinding bool
	random             io.Reader
	now                func() time.Time
	logger             zerolog.Logger
}

// NewKeyService creates a new key service. When resetClearsBinding is set,
// ResetHWID also unbinds the key so the next accepted device binds it.
func NewKeyService(store repositories.Store, resetClearsBinding bool) *KeyService {
	return &KeyService{
		store:              store,
		resetClearsBinding: resetClearsBinding,
		random:             rand.Reader,
		now:                func() time.Time { return time.Now().UTC() },
		logger:             logging.NewLogger("keys"),
	}
}

// generateKeyValue generates a random key with the license key prefix
func (ks *KeyService) generateKeyValue() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := io.ReadFull(ks.random, keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(keyBytes), nil
}

// CreateKey issues a new unbound key
func (ks *KeyService) CreateKey(ctx context.Context, params CreateKeyParams) (*models.Key, error) {
	if params.MaxUses != nil && *params.MaxUses < 1 {
		return nil, fmt.Errorf("%w: max_uses must be at least 1", ErrInvalidInput)
	}

	for attempt := 0; attempt < maxKeyGenerationAttempts; attempt++ {
		value, err := ks.generateKeyValue()
		if err != nil {
			return nil, err
		}

		key := &models.Key{
			Key:       value,
			CreatedAt: ks.now(),
			MaxUses:   params.MaxUses,
		}
		if params.ExpiresAt != nil {
			expires := params.ExpiresAt.UTC()
			key.ExpiresAt = &expires
		}

		err = ks.store.CreateKey(ctx, key)
		if errors.Is(err, repositories.ErrDuplicateKey) {
			ks.logger.Warn().Int("attempt", attempt+1).Msg("Generated key collided, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create key: %w", err)
		}

		ks.logger.Info().Str("key", logging.MaskKey(key.Key)).Msg("Key created")
		return key, nil
	}

	return nil, ErrKeyGeneration
}

// GetKey returns a key with its blacklist status
func (ks *KeyService) GetKey(ctx context.Context, keyID string) (*models.KeyListing, error) {
	var listing *models.KeyListing
	err := ks.store.WithKeyTx(ctx, keyID, func(tx repositories.KeyTx) error {
		entry, err := tx.BlacklistEntry(ctx)
		if err != nil {
			return err
		}
		status := models.KeyStatusActive
		if entry != nil {
			status = models.KeyStatusBlacklisted
		}
		listing = &models.KeyListing{Key: *tx.Key().Clone(), Status: status}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return listing, nil
}

// ListKeys returns every key with its status, newest first
func (ks *KeyService) ListKeys(ctx context.Context) ([]models.KeyListing, error) {
	keys, err := ks.store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// DeleteKey removes a key together with its attempts and blacklist entry
func (ks *KeyService) DeleteKey(ctx context.Context, keyID string) error {
	err := ks.store.WithKeyTx(ctx, keyID, func(tx repositories.KeyTx) error {
		return tx.Delete(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	ks.logger.Info().Str("key", logging.MaskKey(keyID)).Msg("Key deleted")
	return nil
}

// ResetHWID clears the key's attempt history, which restores its full
// mismatch budget, and unbinds the key if configured to.
func (ks *KeyService) ResetHWID(ctx context.Context, keyID string) (*ResetResult, error) {
	result := &ResetResult{}
	err := ks.store.WithKeyTx(ctx, keyID, func(tx repositories.KeyTx) error {
		cleared, err := tx.ClearAttempts(ctx)
		if err != nil {
			return err
		}
		result.AttemptsCleared = cleared

		if ks.resetClearsBinding && tx.Key().IsBound() {
			if err := tx.ClearBinding(ctx); err != nil {
				return err
			}
			result.BindingCleared = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset hwid: %w", err)
	}

	ks.logger.Info().
		Str("key", logging.MaskKey(keyID)).
		Int64("attempts_cleared", result.AttemptsCleared).
		Bool("binding_cleared", result.BindingCleared).
		Msg("HWID reset")
	return result, nil
}

// PurgeExpired deletes keys whose expiry lies before cutoff and returns how
// many were removed. Keys that disappear concurrently are skipped.
func (ks *KeyService) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := ks.store.ListKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}

	deleted := 0
	for _, k := range keys {
		if k.ExpiresAt == nil || !k.ExpiresAt.Before(cutoff) {
			continue
		}
		removed := false
		err := ks.store.WithKeyTx(ctx, k.Key.Key, func(tx repositories.KeyTx) error {
			// re-check under the lock
			if tx.Key().ExpiresAt == nil || !tx.Key().ExpiresAt.Before(cutoff) {
				return nil
			}
			removed = true
			return tx.Delete(ctx)
		})
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to purge key: %w", err)
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}
