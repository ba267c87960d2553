package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// FailureDelay pads failed login responses to a minimum duration plus a random
// jitter, so throttled, unknown-account and wrong-secret responses cannot be
// told apart by their latency.
type FailureDelay struct {
	floor  time.Duration
	jitter time.Duration
}

func NewFailureDelay(floor, jitter time.Duration) *FailureDelay {
	return &FailureDelay{
		floor:  floor,
		jitter: jitter,
	}
}

// WaitFrom blocks until at least floor+jitter has elapsed since start, or ctx is done.
// A nil FailureDelay does not wait.
func (d *FailureDelay) WaitFrom(ctx context.Context, start time.Time) {
	if d == nil {
		return
	}

	remaining := d.target() - time.Since(start)
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

func (d *FailureDelay) target() time.Duration {
	if d.jitter <= 0 {
		return d.floor
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(d.jitter)))
	if err != nil {
		return d.floor
	}
	return d.floor + time.Duration(n.Int64())
}
