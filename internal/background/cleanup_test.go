package background

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingPruner struct {
	calls atomic.Int32
	err   error
}

func (p *countingPruner) PruneExpired(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCleanupManager_RunsImmediatelyAndOnTick(t *testing.T) {
	pruner := &countingPruner{}
	cm := NewCleanupManager(pruner, discardLogger(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return pruner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cm.Stop()
	cm.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	pruner := &countingPruner{err: errors.New("store down")}
	cm := NewCleanupManager(pruner, discardLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return pruner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestCleanupManager_ZeroIntervalDisables(t *testing.T) {
	pruner := &countingPruner{}
	cm := NewCleanupManager(pruner, discardLogger(), 0)

	cm.Start(context.Background())

	assert.Equal(t, int32(0), pruner.calls.Load())
}
