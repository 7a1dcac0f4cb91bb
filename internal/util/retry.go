// Package util provides shared utility functions for the store.
package util

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
)

// DatabaseRetryOptions returns retry options optimized for database operations.
// Uses exponential backoff from 100ms capped at 300ms; with three attempts
// that is waits of 100ms then 200ms, suitable for transient lock errors.
func DatabaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.Context(ctx),
	}
}

// DefaultRetryOptions returns sensible defaults for retry operations.
func DefaultRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(1 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	}
}

// RetryWithResult executes fn with retry logic and returns the result.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.DoWithData(fn, opts...)
}

// Common retry predicates

// IsDatabaseLocked returns true if the error indicates a database lock.
// Used around the journal index (bun/sqlite), which can transiently
// report SQLITE_BUSY under concurrent submit/replay access.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsTransientErrno returns true if err is EAGAIN, EINTR or EBUSY — the
// errno values a backend ioctl dispatch or fcntl lock attempt can return
// without anything being wrong with the request itself.
func IsTransientErrno(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == syscall.EAGAIN || errno == syscall.EINTR || errno == syscall.EBUSY
}

// IOOptions returns retry options tuned for low-level object-op dispatch:
// a handful of fast attempts against a transient errno, no backoff past
// a few hundred milliseconds so a genuinely stuck syscall fails fast.
func IOOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(4),
		retry.Delay(10 * time.Millisecond),
		retry.MaxDelay(200 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransientErrno),
		retry.Context(ctx),
	}
}

