package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
)

// BucketStore performs the atomic fixed-window increment. Implementations must
// create, reset or bump the bucket in a single store operation.
type BucketStore interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
	Get(ctx context.Context, key string) (*models.RateLimitBucket, error)
}

// RateLimiter is a fixed-window counter keyed by arbitrary strings such as
// "login:<email>". It is not a sliding window.
type RateLimiter struct {
	store  BucketStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(store BucketStore, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// IsLimited counts this call against key and reports whether the
// post-increment count exceeds max. Store failures are returned, never
// treated as "allowed".
func (l *RateLimiter) IsLimited(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if key == "" || max < 1 || window <= 0 {
		return false, fmt.Errorf("%w: invalid rate limit (key=%q max=%d window=%s)", models.ErrBadRequest, key, max, window)
	}

	count, err := l.store.Increment(ctx, key, window, l.now())
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	if count > max {
		l.logger.WarnContext(ctx, "rate limit exceeded",
			slog.String("key_scope", keyScope(key)),
			slog.Int("count", count),
			slog.Int("max", max),
			slog.Duration("window", window),
		)
		return true, nil
	}

	return false, nil
}

// Count returns the current count for key, or 0 if no bucket exists
func (l *RateLimiter) Count(ctx context.Context, key string) (int, error) {
	bucket, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read rate limit bucket: %w", err)
	}
	return bucket.Count, nil
}

// keyScope returns the part of a key before the first colon so logs never carry the e-mail
func keyScope(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
