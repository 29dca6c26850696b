package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khabaroff/hwid-license-server/src/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaLockID keys the advisory lock that serializes schema setup when
// several replicas boot at once
const schemaLockID int64 = 0x6877_6964 // "hwid"

// migrations run in order after the base schema; each must be idempotent
var migrations = []string{
	`ALTER TABLE admin_users ADD COLUMN IF NOT EXISTS role TEXT NOT NULL DEFAULT 'admin'`,
	`ALTER TABLE license_keys ADD COLUMN IF NOT EXISTS last_used TIMESTAMPTZ`,
}

// Database holds the PostgreSQL connection pool
type Database struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and brings the license schema up to date
func New(ctx context.Context, databaseURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Each in-flight validation holds one connection for its whole
	// transaction, so the pool bounds validation concurrency
	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute
	config.ConnConfig.RuntimeParams["application_name"] = "hwid-license-server"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := &Database{pool: pool}

	if err := db.initializeSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// GetPool returns the connection pool
func (db *Database) GetPool() *pgxpool.Pool {
	return db.pool
}

// initializeSchema applies the embedded schema and the migrations in one
// transaction under an advisory lock
func (db *Database) initializeSchema(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
			return fmt.Errorf("failed to acquire schema lock: %w", err)
		}
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		for i, m := range migrations {
			if _, err := tx.Exec(ctx, m); err != nil {
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger := logging.NewLogger("database")
	logger.Info().
		Int("migrations", len(migrations)).
		Msg("Database schema initialized successfully")
	return nil
}
