package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole defines the access level of an account.
type UserRole string

const (
	// UserRoleAdmin may manage the full record set and lifecycle.
	UserRoleAdmin UserRole = "admin"
	// UserRoleUser is the default role for self-registered accounts.
	UserRoleUser UserRole = "user"
)

// User is an authenticated account. Only admins reach the management API.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUser creates a User with a fresh ID and timestamps.
func NewUser(email, passwordHash, name string, role UserRole) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
