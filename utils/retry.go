package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retry runs fn up to maxRetries times and stops at the first success.
// Between failed attempts it waits backoff<<attempt (2s, 4s, 8s... for a
// one second backoff). A cancelled context ends the loop early.
func Retry(ctx context.Context, maxRetries int, backoff time.Duration, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt-1, lastErr)
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < maxRetries {
			wait := backoff << uint(attempt)
			slog.Warn("attempt failed, retrying",
				"attempt", attempt, "max", maxRetries, "wait", wait, "error", lastErr)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", maxRetries, lastErr)
}
