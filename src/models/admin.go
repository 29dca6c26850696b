package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser represents a control plane account
type AdminUser struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // never expose
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
	IsActive     bool       `json:"is_active"`
}

// IsAdmin returns true if the account may use admin operations
func (a *AdminUser) IsAdmin() bool {
	return a.IsActive && a.Role == RoleAdmin
}
