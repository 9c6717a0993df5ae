package repository

import (
	"context"
	"strings"
	"time"
)

// Busy-retry policy for contended SQLite writes. The driver already waits
// via busy_timeout; this covers the cases where the timeout itself expires
// under sustained write pressure.
const (
	busyMaxAttempts  = 5
	busyInitialDelay = 50 * time.Millisecond
	busyMaxDelay     = time.Second
)

// isBusyError reports whether an error is a transient lock-contention error.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// withBusyRetry runs fn, retrying with bounded exponential backoff while it
// returns a busy error. The last error is surfaced once attempts are
// exhausted. Cancellation wins over retries.
func withBusyRetry(ctx context.Context, fn func() error) error {
	delay := busyInitialDelay

	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		err = fn()
		if !isBusyError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > busyMaxDelay {
			delay = busyMaxDelay
		}
	}
	return err
}
