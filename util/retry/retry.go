// Package retry provides a bounded, context-aware retry loop used for
// transient failures such as store serialization conflicts.
package retry

import (
	"context"
	"time"

	"github.com/surfswift213us/coinblesk-server/ulogger"
)

// sleepFunc is swapped out in tests.
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Retry calls f up to retryCount times, backing off linearly between
// attempts. It returns the first successful result, or the last error when
// all attempts fail or the context is cancelled.
func Retry[T any](ctx context.Context, logger ulogger.Logger, f func() (T, error), retryCount int, backoffUnit time.Duration, retryMessage string) (T, error) {
	var result T

	var err error

	for i := 0; i < retryCount; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
			result, err = f()
			if err == nil {
				return result, nil
			}

			if i < retryCount-1 {
				logger.Debugf("%s (attempt %d): %v", retryMessage, i+1, err)

				if sleepErr := BackoffAndSleep(ctx, i, 1, backoffUnit); sleepErr != nil {
					return result, sleepErr
				}
			}
		}
	}

	return result, err
}

// BackoffAndSleep sleeps for (backoffMultiplier*retries)+1 units, returning
// early with the context error if cancelled.
func BackoffAndSleep(ctx context.Context, retries int, backoffMultiplier int, durationType time.Duration) error {
	backoff := (backoffMultiplier * retries) + 1

	return sleepFunc(ctx, time.Duration(backoff)*durationType)
}
