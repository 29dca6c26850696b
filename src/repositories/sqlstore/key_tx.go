package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

type keyTx struct {
	tx      *sqlx.Tx
	key     *models.Key
	dialect dialect
}

func (t *keyTx) Key() *models.Key {
	return t.key
}

func (t *keyTx) Attempts(ctx context.Context) ([]models.UsageAttempt, error) {
	var rows []attemptRow
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT id, key_id, hwid, ip, success, attempted_at
		FROM usage_attempts
		WHERE key_id = ?
		ORDER BY id
	`, t.key.Key)
	if err != nil {
		return nil, mapError(err)
	}

	attempts := make([]models.UsageAttempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, r.toModel())
	}
	return attempts, nil
}

func (t *keyTx) BlacklistEntry(ctx context.Context) (*models.BlacklistEntry, error) {
	var row blacklistRow
	err := t.tx.GetContext(ctx, &row, `
		SELECT key_id, reason, blacklisted_at FROM blacklist WHERE key_id = ?
	`, t.key.Key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	entry := row.toModel()
	return &entry, nil
}

func (t *keyTx) RecordAttempt(ctx context.Context, hwid, ip string, success bool, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO usage_attempts (key_id, hwid, ip, success, attempted_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.key.Key, hwid, ip, success, at.UTC())
	return mapError(err)
}

func (t *keyTx) AddToBlacklist(ctx context.Context, reason string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.dialect.insertIgnore+` INTO blacklist (key_id, reason, blacklisted_at)
		VALUES (?, ?, ?)
	`, t.key.Key, reason, at.UTC())
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err)
	}
	return n == 1, nil
}

func (t *keyTx) RemoveFromBlacklist(ctx context.Context) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM blacklist WHERE key_id = ?`, t.key.Key)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return repositories.ErrBlacklistEntryNotFound
	}
	return nil
}

func (t *keyTx) IncrementUse(ctx context.Context, hwid string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE license_keys
		SET current_uses = current_uses + 1,
		    hwid = COALESCE(NULLIF(hwid, ''), ?),
		    last_used = ?
		WHERE key_id = ?
		  AND (max_uses IS NULL OR current_uses < max_uses)
	`, hwid, at.UTC(), t.key.Key)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return repositories.ErrCapReached
	}

	// Row stays locked until commit; mirror the update locally
	t.key.CurrentUses++
	if !t.key.IsBound() {
		bound := hwid
		t.key.HWID = &bound
	}
	lastUsed := at.UTC()
	t.key.LastUsed = &lastUsed
	return nil
}

func (t *keyTx) ClearAttempts(ctx context.Context) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM usage_attempts WHERE key_id = ?`, t.key.Key)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (t *keyTx) ClearBinding(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE license_keys SET hwid = NULL WHERE key_id = ?`, t.key.Key); err != nil {
		return mapError(err)
	}
	t.key.HWID = nil
	return nil
}

func (t *keyTx) Delete(ctx context.Context) error {
	// Children first
	for _, q := range []string{
		`DELETE FROM usage_attempts WHERE key_id = ?`,
		`DELETE FROM blacklist WHERE key_id = ?`,
		`DELETE FROM license_keys WHERE key_id = ?`,
	} {
		if _, err := t.tx.ExecContext(ctx, q, t.key.Key); err != nil {
			return mapError(err)
		}
	}
	return nil
}

var _ repositories.KeyTx = (*keyTx)(nil)
