package collector

import (
	"context"
	"time"

	"github.com/teranos/keelwatch/errors"
)

// withRetry runs fn with bounded attempts and exponential backoff. Only
// errors marked retryable are retried; the last error is returned once the
// budget is spent. maxRetries counts retries, not attempts: maxRetries=3
// allows four calls.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) || attempt >= maxRetries {
			return err
		}

		delay := baseDelay << attempt
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry aborted")
		case <-time.After(delay):
		}
	}
}
