package filestore

import (
	"errors"
	"fmt"
	"syscall"

	"filestore/internal/common"
)

// Domain-specific error kinds beyond the generic ones in internal/common.
var (
	// ErrUnsupported is returned when an apply backend meets an opcode it
	// does not handle. The capability probe reports an absent backend
	// through Capabilities, not through this error.
	ErrUnsupported = errors.New("capability not supported")
	// ErrCorruptJournal is returned by Journal.Replay on unrecoverable
	// corruption; mount must abort.
	ErrCorruptJournal = errors.New("journal corrupt, cannot replay")
	// ErrInvariant marks a programming error. Callers that observe it
	// should treat the process as no longer trustworthy.
	ErrInvariant = errors.New("invariant violated")

	// ErrBusy and ErrIO are re-exported from internal/common so callers
	// mounting or applying against a Store only need this package's
	// errors in scope.
	ErrBusy = common.ErrBusy
	ErrIO   = common.ErrIO
)

// Result is the spec's int convention: negative values are a negated
// errno, non-negative values are success (a byte count, zero for
// metadata ops, or an fd-ish count). Only the low-level object-op layer
// (§4.3) and the UserTrans wire boundary speak this convention; everything
// above it uses ordinary Go errors.
type Result int64

// Ok reports whether r represents success.
func (r Result) Ok() bool { return r >= 0 }

// Err converts a negative Result back into a syscall.Errno, or nil if r
// represents success.
func (r Result) Err() error {
	if r >= 0 {
		return nil
	}
	return syscall.Errno(-r)
}

// ResultOf converts a byte count and an error into the spec's int
// convention: n on success, -errno on failure.
func ResultOf(n int, err error) Result {
	if err == nil {
		return Result(n)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return Result(-int64(errno))
	}
	return Result(-int64(syscall.EIO))
}

// translateErrno maps a low-level syscall errno into the generic
// common.Err* taxonomy (§7), so Store-level callers see a stable set of
// sentinels instead of a raw syscall.Errno whose spelling is platform
// specific. Errors that aren't a plain errno pass through unchanged.
func translateErrno(err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case syscall.ENOENT:
		return fmt.Errorf("%w: %v", common.ErrNotFound, errno)
	case syscall.EEXIST:
		return fmt.Errorf("%w: %v", common.ErrExists, errno)
	case syscall.ENOTDIR:
		return fmt.Errorf("%w: %v", common.ErrNotDir, errno)
	case syscall.EISDIR:
		return fmt.Errorf("%w: %v", common.ErrIsDir, errno)
	case syscall.ENOTEMPTY:
		return fmt.Errorf("%w: %v", common.ErrNotEmpty, errno)
	case syscall.EBUSY:
		return fmt.Errorf("%w: %v", ErrBusy, errno)
	default:
		return fmt.Errorf("%w: %v", ErrIO, errno)
	}
}
