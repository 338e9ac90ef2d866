package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/authcore/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_PadsToMinimum(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{MinDuration: 100 * time.Millisecond})
	start := time.Now()

	timing.WaitFrom(context.Background(), start)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestTimingDelay_WaitFrom_AdjustsForElapsedTime(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{MinDuration: 100 * time.Millisecond})
	start := time.Now()

	time.Sleep(50 * time.Millisecond)
	timing.WaitFrom(context.Background(), start)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestTimingDelay_WaitFrom_NoWaitIfAlreadyExceeded(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{MinDuration: 20 * time.Millisecond})
	start := time.Now().Add(-time.Second)

	before := time.Now()
	timing.WaitFrom(context.Background(), start)

	assert.Less(t, time.Since(before), 10*time.Millisecond)
}

func TestTimingDelay_WaitFrom_StopsOnCancel(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{MinDuration: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	timing.WaitFrom(ctx, start)

	assert.Less(t, time.Since(start), time.Second)
}

func TestTimingDelay_Nil_NeverWaits(t *testing.T) {
	var timing *auth.TimingDelay
	start := time.Now()

	timing.WaitFrom(context.Background(), start)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
