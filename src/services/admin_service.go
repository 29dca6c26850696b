package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/khabaroff/hwid-license-server/src/logging"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// AdminService handles admin user operations
type AdminService struct {
	repo   repositories.AdminRepository
	cost   int
	logger zerolog.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(repo repositories.AdminRepository) *AdminService {
	return &AdminService{
		repo:   repo,
		cost:   bcrypt.DefaultCost,
		logger: logging.NewLogger("admin"),
	}
}

// NewAdminServiceWithCost creates an admin service with a custom bcrypt cost (for testing)
func NewAdminServiceWithCost(repo repositories.AdminRepository, cost int) *AdminService {
	as := NewAdminService(repo)
	as.cost = cost
	return as
}

// CreateAdminUser creates a new user with hashed password
func (as *AdminService) CreateAdminUser(ctx context.Context, username, password string, role models.Role) (*models.AdminUser, error) {
	// Validate input
	if len(username) < 1 || len(username) > 255 {
		return nil, fmt.Errorf("%w: username must be between 1 and 255 characters", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return nil, fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), as.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
	}

	if err := as.repo.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	as.logger.Info().Str("username", username).Str("role", string(role)).Msg("User created")
	return admin, nil
}

// HasAdmins checks if any users exist
func (as *AdminService) HasAdmins(ctx context.Context) (bool, error) {
	count, err := as.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check admin users: %w", err)
	}
	return count > 0, nil
}

// EnsureAdmin creates the first admin from configured credentials when no
// user exists yet. It returns true if an admin was created.
func (as *AdminService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	hasAdmins, err := as.HasAdmins(ctx)
	if err != nil {
		return false, err
	}
	if hasAdmins {
		return false, nil
	}

	if _, err := as.CreateAdminUser(ctx, username, password, models.RoleAdmin); err != nil {
		if errors.Is(err, repositories.ErrDuplicateAdmin) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AuthenticateAdmin verifies username and password
func (as *AdminService) AuthenticateAdmin(ctx context.Context, username, password string) (*models.AdminUser, error) {
	admin, err := as.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load admin user: %w", err)
	}

	if !admin.IsActive {
		return nil, ErrInvalidCredentials
	}

	// Compare password hash
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := as.repo.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		as.logger.Warn().Err(err).Str("username", admin.Username).Msg("Failed to update last_login")
	}

	admin.LastLogin = &now
	return admin, nil
}

// GetAdminByUsername retrieves admin user by username
func (as *AdminService) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	admin, err := as.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("admin user not found: %w", err)
	}
	return admin, nil
}
