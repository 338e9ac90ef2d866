package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
)

// TokenRepository persists short code hashes by identifier
type TokenRepository interface {
	Upsert(ctx context.Context, identifier, tokenHash string, expiresAt time.Time) (*models.ShortCodeToken, error)
	Take(ctx context.Context, identifier string) (*models.ShortCodeToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenStore issues and consumes one-time short codes. Only the SHA-256 of a
// code is stored.
type TokenStore struct {
	repo   TokenRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenStore creates a new TokenStore
func NewTokenStore(repo TokenRepository, logger *slog.Logger) *TokenStore {
	return &TokenStore{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Issue stores code under identifier for ttl, replacing any live code
func (s *TokenStore) Issue(ctx context.Context, identifier, code string, ttl time.Duration) error {
	if identifier == "" || code == "" || ttl <= 0 {
		return fmt.Errorf("%w: invalid short code issue", models.ErrBadRequest)
	}

	if _, err := s.repo.Upsert(ctx, identifier, hashCode(code), s.now().Add(ttl)); err != nil {
		return fmt.Errorf("failed to issue short code: %w", err)
	}

	return nil
}

// Consume reports whether code matches the live token for identifier. The
// token is removed before the comparison, so a code succeeds at most once
// even under concurrent submissions, and an expired or mismatched token is
// gone afterwards as well.
func (s *TokenStore) Consume(ctx context.Context, identifier, code string) (bool, error) {
	if identifier == "" {
		return false, nil
	}

	token, err := s.repo.Take(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to consume short code: %w", err)
	}

	if token.IsExpired(s.now()) {
		s.logger.DebugContext(ctx, "expired short code consumed",
			slog.String("namespace", keyScope(identifier)))
		return false, nil
	}

	supplied := hashCode(code)
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(token.TokenHash)) == 1, nil
}

// Revoke removes the live token for identifier, if any
func (s *TokenStore) Revoke(ctx context.Context, identifier string) error {
	if _, err := s.repo.Take(ctx, identifier); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to revoke short code: %w", err)
	}
	return nil
}

// PruneExpired deletes tokens that expired without being consumed
func (s *TokenStore) PruneExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune short codes: %w", err)
	}
	return n, nil
}

// hashCode normalizes case and surrounding space so "ab3k9 " matches "AB3K9"
func hashCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}
