package models

import (
	"time"
)

// Token identifier namespaces
const (
	TokenNamespaceCaptcha       = "captcha"
	TokenNamespaceVerifyEmail   = "verify-email"
	TokenNamespaceResetPassword = "reset-password"
)

// ShortCodeToken is a one-time short code stored by hash under a namespaced identifier
type ShortCodeToken struct {
	Identifier string    `json:"identifier"`
	TokenHash  string    `json:"-"` // Never expose token hash
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsExpired reports whether the token expired before now
func (t *ShortCodeToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// TokenIdentifier builds a namespaced identifier, e.g. "captcha:<id>"
func TokenIdentifier(namespace, key string) string {
	return namespace + ":" + key
}
