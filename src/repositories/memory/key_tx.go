package memory

import (
	"context"
	"time"

	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// keyTx stages writes for one key until the store commits it
type keyTx struct {
	store *Store
	key   *models.Key

	newAttempts      []models.UsageAttempt
	attemptsCleared  bool
	blacklistAdded   *models.BlacklistEntry
	blacklistRemoved bool
	deleted          bool
}

func (tx *keyTx) Key() *models.Key {
	return tx.key
}

func (tx *keyTx) Attempts(ctx context.Context) ([]models.UsageAttempt, error) {
	var attempts []models.UsageAttempt
	if !tx.attemptsCleared {
		tx.store.mu.RLock()
		committed := tx.store.attempts[tx.key.Key]
		attempts = make([]models.UsageAttempt, 0, len(committed)+len(tx.newAttempts))
		attempts = append(attempts, committed...)
		tx.store.mu.RUnlock()
	}
	return append(attempts, tx.newAttempts...), nil
}

func (tx *keyTx) BlacklistEntry(ctx context.Context) (*models.BlacklistEntry, error) {
	if tx.blacklistAdded != nil {
		entry := *tx.blacklistAdded
		return &entry, nil
	}
	if tx.blacklistRemoved {
		return nil, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	entry, ok := tx.store.blacklist[tx.key.Key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (tx *keyTx) RecordAttempt(ctx context.Context, hwid, ip string, success bool, at time.Time) error {
	tx.newAttempts = append(tx.newAttempts, models.UsageAttempt{
		Key:         tx.key.Key,
		HWID:        hwid,
		IP:          ip,
		Success:     success,
		AttemptedAt: at,
	})
	return nil
}

func (tx *keyTx) AddToBlacklist(ctx context.Context, reason string, at time.Time) (bool, error) {
	existing, err := tx.BlacklistEntry(ctx)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	tx.blacklistAdded = &models.BlacklistEntry{
		Key:           tx.key.Key,
		Reason:        reason,
		BlacklistedAt: at,
	}
	return true, nil
}

func (tx *keyTx) RemoveFromBlacklist(ctx context.Context) error {
	existing, err := tx.BlacklistEntry(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		return repositories.ErrBlacklistEntryNotFound
	}

	tx.blacklistAdded = nil
	tx.blacklistRemoved = true
	return nil
}

func (tx *keyTx) IncrementUse(ctx context.Context, hwid string, at time.Time) error {
	if tx.key.IsExhausted() {
		return repositories.ErrCapReached
	}

	tx.key.CurrentUses++
	if !tx.key.IsBound() {
		bound := hwid
		tx.key.HWID = &bound
	}
	lastUsed := at
	tx.key.LastUsed = &lastUsed
	return nil
}

func (tx *keyTx) ClearAttempts(ctx context.Context) (int64, error) {
	attempts, err := tx.Attempts(ctx)
	if err != nil {
		return 0, err
	}

	tx.attemptsCleared = true
	tx.newAttempts = nil
	return int64(len(attempts)), nil
}

func (tx *keyTx) ClearBinding(ctx context.Context) error {
	tx.key.HWID = nil
	return nil
}

func (tx *keyTx) Delete(ctx context.Context) error {
	tx.deleted = true
	return nil
}

var _ repositories.KeyTx = (*keyTx)(nil)
