package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	_ "modernc.org/sqlite"
)

// DefaultLockTimeout bounds how long a transaction waits for a key
const DefaultLockTimeout = 5 * time.Second

// Store implements repositories.Store on database/sql through sqlx.
// SQLite runs on a single connection, which serializes every key
// transaction in the process; MySQL locks the key row with FOR UPDATE.
type Store struct {
	db          *sqlx.DB
	dialect     dialect
	lockTimeout time.Duration
}

// OpenSQLite opens (and migrates) a SQLite database. Pass an empty path
// or ":memory:" for a private in-memory database.
func OpenSQLite(path string, lockTimeout time.Duration) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	return newStore(db, sqliteDialect, lockTimeout)
}

// OpenMySQL opens (and migrates) a MySQL database
func OpenMySQL(dsn string, lockTimeout time.Duration) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sqlx.Connect("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newStore(db, mysqlDialect, lockTimeout)
}

func newStore(db *sqlx.DB, d dialect, lockTimeout time.Duration) (*Store, error) {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if err := migrate(db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", d.name, err)
	}
	return &Store{db: db, dialect: d, lockTimeout: lockTimeout}, nil
}

// WithKeyTx implements repositories.Store
func (s *Store) WithKeyTx(ctx context.Context, keyID string, fn func(tx repositories.KeyTx) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	conn, err := s.db.Connx(acquireCtx)
	cancel()
	if err != nil {
		return mapAcquireError(ctx, err)
	}
	defer conn.Close()

	if s.dialect.prepareConn != nil {
		if err := s.dialect.prepareConn(ctx, conn, s.lockTimeout); err != nil {
			return mapError(err)
		}
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var row keyRow
	err = tx.GetContext(ctx, &row, `SELECT `+keyColumns+` FROM license_keys WHERE key_id = ?`+s.dialect.forUpdate, keyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repositories.ErrKeyNotFound
		}
		return mapError(err)
	}

	if err := fn(&keyTx{tx: tx, key: row.toModel(), dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// CreateKey implements repositories.Store
func (s *Store) CreateKey(ctx context.Context, key *models.Key) error {
	var maxUses sql.NullInt64
	if key.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: int64(*key.MaxUses), Valid: true}
	}
	var hwid sql.NullString
	if key.HWID != nil {
		hwid = sql.NullString{String: *key.HWID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO license_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.Key, key.CreatedAt.UTC(), nullTime(key.ExpiresAt), maxUses, key.CurrentUses, hwid, nullTime(key.LastUsed))
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
	var rows []keyListingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT k.key_id, k.created_at, k.expires_at, k.max_uses, k.current_uses, k.hwid, k.last_used,
		       b.key_id IS NOT NULL AS blacklisted
		FROM license_keys k
		LEFT JOIN blacklist b ON b.key_id = k.key_id
		ORDER BY k.created_at DESC, k.key_id
	`)
	if err != nil {
		return nil, mapError(err)
	}

	listings := make([]models.KeyListing, 0, len(rows))
	for _, r := range rows {
		status := models.KeyStatusActive
		if r.Blacklisted {
			status = models.KeyStatusBlacklisted
		}
		listings = append(listings, models.KeyListing{Key: *r.toModel(), Status: status})
	}
	return listings, nil
}

// ListBlacklist implements repositories.Store
func (s *Store) ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	var rows []blacklistRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT key_id, reason, blacklisted_at
		FROM blacklist
		ORDER BY blacklisted_at, key_id
	`)
	if err != nil {
		return nil, mapError(err)
	}

	entries := make([]models.BlacklistEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toModel())
	}
	return entries, nil
}

// Admins implements repositories.Store
func (s *Store) Admins() repositories.AdminRepository {
	return &adminRepository{db: s.db}
}

// Ping implements repositories.Store
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx))
}

// Close implements repositories.Store
func (s *Store) Close() error {
	return s.db.Close()
}

var _ repositories.Store = (*Store)(nil)
