package database

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/authcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBootstrapper(migrate func(ctx context.Context) error) *Bootstrapper {
	return &Bootstrapper{migrate: migrate, logger: slog.Default()}
}

func TestBootstrapper_Ensure_RunsOnce(t *testing.T) {
	var calls atomic.Int32
	b := newTestBootstrapper(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Ensure(context.Background()))
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, b.Ready())
}

func TestBootstrapper_Ensure_ConcurrentCallersShareRun(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	b := newTestBootstrapper(func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Ensure(context.Background())
		}()
	}

	// Give every goroutine a chance to join the in-flight run
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, b.Ready())
}

func TestBootstrapper_Ensure_CancelledStarterDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runErr atomic.Value
	b := newTestBootstrapper(func(ctx context.Context) error {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			runErr.Store(err)
			return err
		}
		return nil
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() { firstDone <- b.Ensure(firstCtx) }()
	<-started

	secondDone := make(chan error, 1)
	go func() { secondDone <- b.Ensure(context.Background()) }()

	cancelFirst()
	err := <-firstDone
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	close(release)
	require.NoError(t, <-secondDone)
	assert.Nil(t, runErr.Load(), "the shared run must not see the starter's cancellation")
	assert.True(t, b.Ready())
}

func TestBootstrapper_Ensure_FailureIsNotMemoized(t *testing.T) {
	var calls atomic.Int32
	b := newTestBootstrapper(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("connection refused")
		}
		return nil
	})

	err := b.Ensure(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.False(t, b.Ready())

	require.NoError(t, b.Ensure(context.Background()))
	assert.True(t, b.Ready())
	assert.Equal(t, int32(2), calls.Load())
}
