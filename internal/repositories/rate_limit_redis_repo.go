package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisBucketPrefix = "ratelimit:"

// incrementBucketLua bumps a bucket hash and starts its window on the first hit.
// KEYS[1] = bucket key
// ARGV[1] = window in milliseconds
// ARGV[2] = current unix time in milliseconds
var incrementBucketLua = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
if count == 1 then
  redis.call('HSET', KEYS[1], 'window_start', ARGV[2])
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
elseif redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return count
`)

// RedisRateLimitRepository keeps fixed-window counters in Redis. The window
// resets when the bucket key expires, which the script arms on the first hit.
type RedisRateLimitRepository struct {
	client redis.UniversalClient
}

// NewRedisRateLimitRepository creates a Redis-backed bucket store
func NewRedisRateLimitRepository(client redis.UniversalClient) *RedisRateLimitRepository {
	return &RedisRateLimitRepository{client: client}
}

// Increment bumps the counter for key and returns the post-increment count
func (r *RedisRateLimitRepository) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	res, err := incrementBucketLua.Run(ctx, r.client,
		[]string{redisBucketPrefix + key},
		window.Milliseconds(), now.UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to increment rate limit bucket: %v", models.ErrStoreUnavailable, err)
	}

	return int(res), nil
}

// Get returns the live bucket for key
func (r *RedisRateLimitRepository) Get(ctx context.Context, key string) (*models.RateLimitBucket, error) {
	fields, err := r.client.HGetAll(ctx, redisBucketPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to get rate limit bucket: %v", models.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, models.ErrNotFound
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("corrupt rate limit bucket %q: %w", key, err)
	}

	return &models.RateLimitBucket{
		Key:         key,
		Count:       count,
		WindowStart: parseUnixMilli(fields["window_start"]),
		UpdatedAt:   parseUnixMilli(fields["updated_at"]),
	}, nil
}

func parseUnixMilli(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
