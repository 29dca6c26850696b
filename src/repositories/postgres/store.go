package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// DefaultLockTimeout bounds how long a transaction waits for a key row lock
const DefaultLockTimeout = 5 * time.Second

const keyColumns = `key_id, created_at, expires_at, max_uses, current_uses, hwid, last_used`

// Store is the PostgreSQL implementation of repositories.Store.
// Per-key serialization uses SELECT ... FOR UPDATE on the license_keys row
// bounded by SET LOCAL lock_timeout.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// New creates a store on top of an initialized pool
func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

// WithKeyTx implements repositories.Store
func (s *Store) WithKeyTx(ctx context.Context, keyID string, fn func(tx repositories.KeyTx) error) error {
	// a saturated pool counts against the same bound as the row lock
	acquireCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	conn, err := s.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return mapAcquireError(ctx, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET does not accept bind parameters
	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, lockTimeout); err != nil {
		return mapError(err)
	}

	row := tx.QueryRow(ctx, `SELECT `+keyColumns+` FROM license_keys WHERE key_id = $1 FOR UPDATE`, keyID)
	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repositories.ErrKeyNotFound
		}
		return mapError(err)
	}

	if err := fn(&keyTx{tx: tx, key: key}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// CreateKey implements repositories.Store
func (s *Store) CreateKey(ctx context.Context, key *models.Key) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO license_keys (`+keyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, key.Key, key.CreatedAt, key.ExpiresAt, key.MaxUses, key.CurrentUses, key.HWID, key.LastUsed)
	if err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrDuplicateKey
		}
		return mapError(err)
	}
	return nil
}

// ListKeys implements repositories.Store
func (s *Store) ListKeys(ctx context.Context) ([]models.KeyListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT k.key_id, k.created_at, k.expires_at, k.max_uses, k.current_uses, k.hwid, k.last_used,
		       b.key_id IS NOT NULL
		FROM license_keys k
		LEFT JOIN blacklist b ON b.key_id = k.key_id
		ORDER BY k.created_at DESC, k.key_id
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	listings := []models.KeyListing{}
	for rows.Next() {
		var l models.KeyListing
		var blacklisted bool
		if err := rows.Scan(&l.Key.Key, &l.CreatedAt, &l.ExpiresAt, &l.MaxUses, &l.CurrentUses, &l.HWID, &l.LastUsed, &blacklisted); err != nil {
			return nil, mapError(err)
		}
		l.Status = models.KeyStatusActive
		if blacklisted {
			l.Status = models.KeyStatusBlacklisted
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return listings, nil
}

// ListBlacklist implements repositories.Store
func (s *Store) ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key_id, reason, blacklisted_at
		FROM blacklist
		ORDER BY blacklisted_at, key_id
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	entries := []models.BlacklistEntry{}
	for rows.Next() {
		var e models.BlacklistEntry
		if err := rows.Scan(&e.Key, &e.Reason, &e.BlacklistedAt); err != nil {
			return nil, mapError(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return entries, nil
}

// Admins implements repositories.Store
func (s *Store) Admins() repositories.AdminRepository {
	return &adminRepository{pool: s.pool}
}

// Ping implements repositories.Store
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.pool.Ping(ctx))
}

// Close implements repositories.Store
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanKey(row pgx.Row) (*models.Key, error) {
	var k models.Key
	if err := row.Scan(&k.Key, &k.CreatedAt, &k.ExpiresAt, &k.MaxUses, &k.CurrentUses, &k.HWID, &k.LastUsed); err != nil {
		return nil, err
	}
	return &k, nil
}

var _ repositories.Store = (*Store)(nil)
