package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// adminRepository stores admin users in the memory store
type adminRepository struct {
	store *Store
}

func (r *adminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.admins[admin.Username]; exists {
		return repositories.ErrDuplicateAdmin
	}
	copied := *admin
	r.store.admins[admin.Username] = &copied
	return nil
}

func (r *adminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	admin, ok := r.store.admins[username]
	if !ok {
		return nil, repositories.ErrAdminNotFound
	}
	copied := *admin
	return &copied, nil
}

func (r *adminRepository) UpdateLastLogin(ctx context.Context, adminID uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, admin := range r.store.admins {
		if admin.ID == adminID {
			lastLogin := at
			admin.LastLogin = &lastLogin
			return nil
		}
	}
	return repositories.ErrAdminNotFound
}

func (r *adminRepository) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.admins), nil
}
