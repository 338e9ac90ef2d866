package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for the rejection response floor
type TimingConfig struct {
	MinDuration time.Duration // every rejected attempt takes at least this long
	Jitter      time.Duration // random extra delay in [0, Jitter)
}

// TimingDelay pads rejected credential attempts to a common duration so that
// "unknown user" and "wrong password" cannot be told apart by response time
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandDuration returns a random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}

	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// WaitFrom blocks until MinDuration plus jitter has passed since start, or ctx
// is done. A nil TimingDelay never waits.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	if td == nil || td.config.MinDuration <= 0 {
		return
	}

	target := td.config.MinDuration + cryptoRandDuration(td.config.Jitter)
	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
