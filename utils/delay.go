package utils

import (
	"context"
	"math/rand"
	"time"
)

// RandomDelay sleeps for a random duration in [min, max) and returns early
// with the context error if ctx ends first.
func RandomDelay(ctx context.Context, min, max time.Duration) error {
	sleep := min
	if diff := max - min; diff > 0 {
		sleep += time.Duration(rand.Int63n(int64(diff)))
	}
	if sleep <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
