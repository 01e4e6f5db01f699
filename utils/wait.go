package utils

import (
	"context"
	"time"
)

// Sleeper suspends the caller for d. It returns early with ctx.Err() when
// ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

var _ Sleeper = Sleep

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
