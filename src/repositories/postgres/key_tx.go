package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// keyTx runs statements inside the transaction that holds the key row lock
type keyTx struct {
	tx  pgx.Tx
	key *models.Key
}

func (t *keyTx) Key() *models.Key {
	return t.key
}

func (t *keyTx) Attempts(ctx context.Context) ([]models.UsageAttempt, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, key_id, hwid, ip, success, attempted_at
		FROM usage_attempts
		WHERE key_id = $1
		ORDER BY id
	`, t.key.Key)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var attempts []models.UsageAttempt
	for rows.Next() {
		var a models.UsageAttempt
		if err := rows.Scan(&a.ID, &a.Key, &a.HWID, &a.IP, &a.Success, &a.AttemptedAt); err != nil {
			return nil, mapError(err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return attempts, nil
}

func (t *keyTx) BlacklistEntry(ctx context.Context) (*models.BlacklistEntry, error) {
	var e models.BlacklistEntry
	err := t.tx.QueryRow(ctx, `
		SELECT key_id, reason, blacklisted_at FROM blacklist WHERE key_id = $1
	`, t.key.Key).Scan(&e.Key, &e.Reason, &e.BlacklistedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &e, nil
}

func (t *keyTx) RecordAttempt(ctx context.Context, hwid, ip string, success bool, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO usage_attempts (key_id, hwid, ip, success, attempted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.key.Key, hwid, ip, success, at)
	return mapError(err)
}

func (t *keyTx) AddToBlacklist(ctx context.Context, reason string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO blacklist (key_id, reason, blacklisted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_id) DO NOTHING
	`, t.key.Key, reason, at)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *keyTx) RemoveFromBlacklist(ctx context.Context) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM blacklist WHERE key_id = $1`, t.key.Key)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrBlacklistEntryNotFound
	}
	return nil
}

func (t *keyTx) IncrementUse(ctx context.Context, hwid string, at time.Time) error {
	var uses int
	var bound *string
	var lastUsed *time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE license_keys
		SET current_uses = current_uses + 1,
		    hwid = COALESCE(NULLIF(hwid, ''), $2),
		    last_used = $3
		WHERE key_id = $1
		  AND (max_uses IS NULL OR current_uses < max_uses)
		RETURNING current_uses, hwid, last_used
	`, t.key.Key, hwid, at).Scan(&uses, &bound, &lastUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repositories.ErrCapReached
		}
		return mapError(err)
	}

	t.key.CurrentUses = uses
	t.key.HWID = bound
	t.key.LastUsed = lastUsed
	return nil
}

func (t *keyTx) ClearAttempts(ctx context.Context) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM usage_attempts WHERE key_id = $1`, t.key.Key)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (t *keyTx) ClearBinding(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `UPDATE license_keys SET hwid = NULL WHERE key_id = $1`, t.key.Key); err != nil {
		return mapError(err)
	}
	t.key.HWID = nil
	return nil
}

func (t *keyTx) Delete(ctx context.Context) error {
	// Children first
	for _, q := range []string{
		`DELETE FROM usage_attempts WHERE key_id = $1`,
		`DELETE FROM blacklist WHERE key_id = $1`,
		`DELETE FROM license_keys WHERE key_id = $1`,
	} {
		if _, err := t.tx.Exec(ctx, q, t.key.Key); err != nil {
			return mapError(err)
		}
	}
	return nil
}

var _ repositories.KeyTx = (*keyTx)(nil)
