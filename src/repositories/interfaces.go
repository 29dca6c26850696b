package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/khabaroff/hwid-license-server/src/models"
)

// Store is the transactional data store shared by the validation engine and
// the admin control plane. Every operation that reads or mutates a single
// key goes through WithKeyTx.
type Store interface {
	// WithKeyTx locks the key identified by keyID, loads it and runs fn
	// inside one transaction. The transaction commits when fn returns nil
	// and rolls back otherwise. Returns ErrKeyNotFound without calling fn
	// when the key does not exist, and ErrLockTimeout when the lock cannot
	// be acquired within the store's lock timeout.
	WithKeyTx(ctx context.Context, keyID string, fn func(tx KeyTx) error) error

	// CreateKey inserts a new key. Returns ErrDuplicateKey if the identifier
	// is already taken.
	CreateKey(ctx context.Context, key *models.Key) error

	// ListKeys returns every key with its blacklist status, newest first.
	ListKeys(ctx context.Context) ([]models.KeyListing, error)

	// ListBlacklist returns every blacklist entry, oldest first.
	ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error)

	Admins() AdminRepository

	Ping(ctx context.Context) error
	Close() error
}

// KeyTx is the per-key view handed to WithKeyTx callbacks. Reads observe a
// consistent snapshot of the locked key; writes become visible on commit.
type KeyTx interface {
	// Key returns the locked key as loaded at the start of the transaction,
	// updated by IncrementUse and ClearBinding.
	Key() *models.Key

	// Attempts returns the key's usage attempts in insertion order.
	Attempts(ctx context.Context) ([]models.UsageAttempt, error)

	// BlacklistEntry returns the key's blacklist entry, or nil if none.
	BlacklistEntry(ctx context.Context) (*models.BlacklistEntry, error)

	RecordAttempt(ctx context.Context, hwid, ip string, success bool, at time.Time) error

	// AddToBlacklist inserts an entry unless one exists. The first reason
	// wins; created reports whether a new entry was written.
	AddToBlacklist(ctx context.Context, reason string, at time.Time) (created bool, err error)

	// RemoveFromBlacklist deletes the entry. Returns ErrBlacklistEntryNotFound
	// if there is none.
	RemoveFromBlacklist(ctx context.Context) error

	// IncrementUse adds one to current_uses, binds hwid if no fingerprint is
	// bound yet and stamps last_used. Returns ErrCapReached, with no change,
	// when max_uses is set and already reached.
	IncrementUse(ctx context.Context, hwid string, at time.Time) error

	// ClearAttempts deletes the key's whole attempt history.
	ClearAttempts(ctx context.Context) (int64, error)

	// ClearBinding unsets the bound fingerprint.
	ClearBinding(ctx context.Context) error

	// Delete removes the key together with its attempts and blacklist entry.
	Delete(ctx context.Context) error
}

// AdminRepository defines the interface for admin data access
type AdminRepository interface {
	Create(ctx context.Context, admin *models.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, adminID uuid.UUID, at time.Time) error
	Count(ctx context.Context) (int, error)
}
