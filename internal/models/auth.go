package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the claims of a bearer token minted by the session layer
// in front of the security core. The core only verifies them.
type IdentityClaims struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the identity handed to handlers
func (c *IdentityClaims) Identity() *Identity {
	return &Identity{
		ID:    c.Subject,
		Email: c.Email,
		Name:  c.Name,
		Role:  c.Role,
	}
}
