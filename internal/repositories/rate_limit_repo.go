package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/authcore/internal/database"
	"github.com/BradenHooton/authcore/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RateLimitRepository stores fixed-window counters in rate_limit_buckets
type RateLimitRepository struct {
	pool *pgxpool.Pool
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{pool: db.Pool}
}

// Increment bumps the counter for key and returns the post-increment count.
// The insert, the window check and the reset/increment happen in one
// statement; concurrent callers on the same key serialize on the row lock.
func (r *RateLimitRepository) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	query := `
		INSERT INTO rate_limit_buckets AS b (key, count, window_start, updated_at)
		VALUES ($1, 1, $2::timestamptz, $2::timestamptz)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN $2::timestamptz - b.window_start >= $3::interval THEN 1
				ELSE b.count + 1
			END,
			window_start = CASE
				WHEN $2::timestamptz - b.window_start >= $3::interval THEN $2::timestamptz
				ELSE b.window_start
			END,
			updated_at = $2::timestamptz
		RETURNING count
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, key, now, window).Scan(&count); err != nil {
		return 0, database.StoreError("increment rate limit bucket", err)
	}

	return count, nil
}

// Get returns the bucket stored for key
func (r *RateLimitRepository) Get(ctx context.Context, key string) (*models.RateLimitBucket, error) {
	query := `
		SELECT key, count, window_start, updated_at
		FROM rate_limit_buckets
		WHERE key = $1
	`

	var b models.RateLimitBucket
	err := r.pool.QueryRow(ctx, query, key).Scan(&b.Key, &b.Count, &b.WindowStart, &b.UpdatedAt)
	if err != nil {
		return nil, database.StoreError("get rate limit bucket", err)
	}

	return &b, nil
}
