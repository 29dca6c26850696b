package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

type adminRepository struct {
	pool *pgxpool.Pool
}

func (r *adminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_users (id, username, password_hash, role, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, admin.ID, admin.Username, admin.PasswordHash, string(admin.Role), admin.CreatedAt, admin.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrDuplicateAdmin
		}
		return mapError(err)
	}
	return nil
}

func (r *adminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var admin models.AdminUser
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at, last_login, is_active
		FROM admin_users
		WHERE username = $1
	`, username).Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &role, &admin.CreatedAt, &admin.LastLogin, &admin.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repositories.ErrAdminNotFound
		}
		return nil, mapError(err)
	}
	admin.Role = models.Role(role)
	return &admin, nil
}

func (r *adminRepository) UpdateLastLogin(ctx context.Context, adminID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admin_users SET last_login = $1 WHERE id = $2`, at, adminID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrAdminNotFound
	}
	return nil
}

func (r *adminRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}
