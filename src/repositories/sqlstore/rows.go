package sqlstore

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/khabaroff/hwid-license-server/src/models"
)

const keyColumns = `key_id, created_at, expires_at, max_uses, current_uses, hwid, last_used`

// keyRow maps 1:1 to the license_keys columns
type keyRow struct {
	KeyID       string         `db:"key_id"`
	CreatedAt   time.Time      `db:"created_at"`
	ExpiresAt   sql.NullTime   `db:"expires_at"`
	MaxUses     sql.NullInt64  `db:"max_uses"`
	CurrentUses int            `db:"current_uses"`
	HWID        sql.NullString `db:"hwid"`
	LastUsed    sql.NullTime   `db:"last_used"`
}

func (r keyRow) toModel() *models.Key {
	k := &models.Key{
		Key:         r.KeyID,
		CreatedAt:   r.CreatedAt.UTC(),
		CurrentUses: r.CurrentUses,
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time.UTC()
		k.ExpiresAt = &t
	}
	if r.MaxUses.Valid {
		n := int(r.MaxUses.Int64)
		k.MaxUses = &n
	}
	if r.HWID.Valid {
		h := r.HWID.String
		k.HWID = &h
	}
	if r.LastUsed.Valid {
		t := r.LastUsed.Time.UTC()
		k.LastUsed = &t
	}
	return k
}

// keyListingRow is a key row joined with its blacklist flag
type keyListingRow struct {
	keyRow
	Blacklisted bool `db:"blacklisted"`
}

type attemptRow struct {
	ID          int64     `db:"id"`
	KeyID       string    `db:"key_id"`
	HWID        string    `db:"hwid"`
	IP          string    `db:"ip"`
	Success     bool      `db:"success"`
	AttemptedAt time.Time `db:"attempted_at"`
}

func (r attemptRow) toModel() models.UsageAttempt {
	return models.UsageAttempt{
		ID:          r.ID,
		Key:         r.KeyID,
		HWID:        r.HWID,
		IP:          r.IP,
		Success:     r.Success,
		AttemptedAt: r.AttemptedAt.UTC(),
	}
}

type blacklistRow struct {
	KeyID         string    `db:"key_id"`
	Reason        string    `db:"reason"`
	BlacklistedAt time.Time `db:"blacklisted_at"`
}

func (r blacklistRow) toModel() models.BlacklistEntry {
	return models.BlacklistEntry{
		Key:           r.KeyID,
		Reason:        r.Reason,
		BlacklistedAt: r.BlacklistedAt.UTC(),
	}
}

type adminRow struct {
	ID           uuid.UUID    `db:"id"`
	Username     string       `db:"username"`
	PasswordHash string       `db:"password_hash"`
	Role         string       `db:"role"`
	CreatedAt    time.Time    `db:"created_at"`
	LastLogin    sql.NullTime `db:"last_login"`
	IsActive     bool         `db:"is_active"`
}

func (r adminRow) toModel() *models.AdminUser {
	a := &models.AdminUser{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Role:         models.Role(r.Role),
		CreatedAt:    r.CreatedAt.UTC(),
		IsActive:     r.IsActive,
	}
	if r.LastLogin.Valid {
		t := r.LastLogin.Time.UTC()
		a.LastLogin = &t
	}
	return a
}

// nullTime converts an optional timestamp into a driver value
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
