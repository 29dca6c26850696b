package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

type adminRepository struct {
	db *sqlx.DB
}

func (r *adminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_users (id, username, password_hash, role, created_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, admin.ID.String(), admin.Username, admin.PasswordHash, string(admin.Role), admin.CreatedAt.UTC(), admin.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrDuplicateAdmin
		}
		return mapError(err)
	}
	return nil
}

func (r *adminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var row adminRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, username, password_hash, role, created_at, last_login, is_active
		FROM admin_users
		WHERE username = ?
	`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrAdminNotFound
		}
		return nil, mapError(err)
	}
	return row.toModel(), nil
}

func (r *adminRepository) UpdateLastLogin(ctx context.Context, adminID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE admin_users SET last_login = ? WHERE id = ?`, at.UTC(), adminID.String())
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return repositories.ErrAdminNotFound
	}
	return nil
}

func (r *adminRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM admin_users`); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}
