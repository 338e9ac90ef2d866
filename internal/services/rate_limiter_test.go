package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() (*RateLimiter, *MemoryBucketStore, *TestClock) {
	store := NewMemoryBucketStore()
	clock := NewTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewRateLimiter(store, slog.New(slog.DiscardHandler))
	l.now = clock.Now
	return l, store, clock
}

func TestRateLimiter_LimitsAfterMax(t *testing.T) {
	l, _, clock := newTestLimiter()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		limited, err := l.IsLimited(ctx, "login:a@example.com", 5, time.Minute)
		require.NoError(t, err)
		assert.False(t, limited, "call %d", i)
		clock.Advance(time.Second)
	}

	limited, err := l.IsLimited(ctx, "login:a@example.com", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, limited)
}

func TestRateLimiter_WindowResetsToOne(t *testing.T) {
	l, _, clock := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := l.IsLimited(ctx, "login:a@example.com", 5, time.Minute)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)

	limited, err := l.IsLimited(ctx, "login:a@example.com", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, limited)

	count, err := l.Count(ctx, "login:a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRateLimiter_FixedWindowDoesNotSlide(t *testing.T) {
	l, _, clock := newTestLimiter()
	ctx := context.Background()

	_, err := l.IsLimited(ctx, "k", 2, time.Minute)
	require.NoError(t, err)

	// Calls late in the window do not extend it
	clock.Advance(50 * time.Second)
	_, err = l.IsLimited(ctx, "k", 2, time.Minute)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	limited, err := l.IsLimited(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	l, _, _ := newTestLimiter()
	ctx := context.Background()

	_, err := l.IsLimited(ctx, "login:a@example.com", 1, time.Minute)
	require.NoError(t, err)

	limited, err := l.IsLimited(ctx, "login:b@example.com", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimiter_ConcurrentCallsLoseNoIncrements(t *testing.T) {
	l, _, _ := newTestLimiter()
	ctx := context.Background()

	const k = 50
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limited, err := l.IsLimited(ctx, "register:fresh@example.com", k+5, time.Minute)
			assert.NoError(t, err)
			assert.False(t, limited)
		}()
	}
	wg.Wait()

	count, err := l.Count(ctx, "register:fresh@example.com")
	require.NoError(t, err)
	assert.Equal(t, k, count)
}

func TestRateLimiter_ConcurrentCallsAdmitExactlyMax(t *testing.T) {
	l, _, _ := newTestLimiter()
	ctx := context.Background()

	const callers, max = 30, 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limited, err := l.IsLimited(ctx, "login:race@example.com", max, time.Minute)
			assert.NoError(t, err)
			if !limited {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, allowed)
}

func TestRateLimiter_StoreErrorPropagates(t *testing.T) {
	l, store, _ := newTestLimiter()
	store.IncrementErr = fmt.Errorf("%w: connection refused", models.ErrStoreUnavailable)

	limited, err := l.IsLimited(context.Background(), "login:a@example.com", 5, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))
	assert.False(t, limited)
}

func TestRateLimiter_RejectsInvalidArguments(t *testing.T) {
	l, _, _ := newTestLimiter()
	ctx := context.Background()

	tests := []struct {
		name   string
		key    string
		max    int
		window time.Duration
	}{
		{"empty key", "", 5, time.Minute},
		{"zero max", "k", 0, time.Minute},
		{"zero window", "k", 5, 0},
		{"negative window", "k", 5, -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.IsLimited(ctx, tt.key, tt.max, tt.window)
			assert.ErrorIs(t, err, models.ErrBadRequest)
		})
	}
}

func TestRateLimiter_CountMissingKey(t *testing.T) {
	l, _, _ := newTestLimiter()

	count, err := l.Count(context.Background(), "login:nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
