package models

import (
	"time"
)

// User is the slice of the site's account record the security core needs.
// Accounts are owned by the surrounding application.
type User struct {
	ID            string
	Email         string
	PasswordHash  string // empty for accounts without a local password
	Name          string
	Role          string // e.g., "user", "admin"
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is the minimal payload handed back after a successful login
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// ToIdentity strips a user down to its identity payload
func (u *User) ToIdentity() *Identity {
	return &Identity{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}
