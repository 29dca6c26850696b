package sqlstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// dialect captures the statements that differ between SQLite and MySQL
type dialect struct {
	name         string
	migrations   []string
	insertIgnore string
	forUpdate    string

	// prepareConn runs on the connection that will hold a key transaction
	prepareConn func(ctx context.Context, conn *sqlx.Conn, lockTimeout time.Duration) error
}

var sqliteDialect = dialect{
	name: "sqlite",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS license_keys (
			key_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME,
			max_uses INTEGER CHECK (max_uses IS NULL OR max_uses >= 0),
			current_uses INTEGER NOT NULL DEFAULT 0 CHECK (current_uses >= 0),
			hwid TEXT,
			CHECK (max_uses IS NULL OR current_uses <= max_uses)
		)`,

		`CREATE TABLE IF NOT EXISTS usage_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_id TEXT NOT NULL REFERENCES license_keys(key_id) ON DELETE CASCADE,
			hwid TEXT NOT NULL,
			ip TEXT NOT NULL,
			success INTEGER NOT NULL,
			attempted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS blacklist (
			key_id TEXT PRIMARY KEY REFERENCES license_keys(key_id) ON DELETE CASCADE,
			reason TEXT NOT NULL,
			blacklisted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS admin_users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE INDEX IF NOT EXISTS idx_usage_attempts_key_id ON usage_attempts(key_id, id)`,

		// v2: last successful validation per key
		`ALTER TABLE license_keys ADD COLUMN last_used DATETIME`,

		// v3: admin roles
		`ALTER TABLE admin_users ADD COLUMN role TEXT NOT NULL DEFAULT 'admin'`,
	},
	insertIgnore: "INSERT OR IGNORE",
}

var mysqlDialect = dialect{
	name: "mysql",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS license_keys (
			key_id VARCHAR(128) NOT NULL PRIMARY KEY,
			created_at DATETIME(6) NOT NULL,
			expires_at DATETIME(6) NULL,
			max_uses INT NULL,
			current_uses INT NOT NULL DEFAULT 0,
			hwid VARCHAR(512) NULL,
			CONSTRAINT license_keys_cap CHECK (max_uses IS NULL OR current_uses <= max_uses)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS usage_attempts (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			key_id VARCHAR(128) NOT NULL,
			hwid VARCHAR(512) NOT NULL,
			ip VARCHAR(64) NOT NULL,
			success BOOLEAN NOT NULL,
			attempted_at DATETIME(6) NOT NULL,
			INDEX idx_usage_attempts_key_id (key_id, id),
			FOREIGN KEY (key_id) REFERENCES license_keys(key_id) ON DELETE CASCADE
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS blacklist (
			key_id VARCHAR(128) NOT NULL PRIMARY KEY,
			reason VARCHAR(255) NOT NULL,
			blacklisted_at DATETIME(6) NOT NULL,
			FOREIGN KEY (key_id) REFERENCES license_keys(key_id) ON DELETE CASCADE
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS admin_users (
			id CHAR(36) NOT NULL PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			last_login DATETIME(6) NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		) ENGINE=InnoDB`,

		// v2: last successful validation per key
		`ALTER TABLE license_keys ADD COLUMN last_used DATETIME(6) NULL`,

		// v3: admin roles
		`ALTER TABLE admin_users ADD COLUMN role VARCHAR(32) NOT NULL DEFAULT 'admin'`,
	},
	insertIgnore: "INSERT IGNORE",
	forUpdate:    " FOR UPDATE",
	prepareConn: func(ctx context.Context, conn *sqlx.Conn, lockTimeout time.Duration) error {
		// innodb_lock_wait_timeout has one second granularity
		seconds := int(math.Ceil(lockTimeout.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		_, err := conn.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds))
		return err
	},
}

// migrate applies the dialect migrations in order
func migrate(db *sqlx.DB, d dialect) error {
	for _, m := range d.migrations {
		if _, err := db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
