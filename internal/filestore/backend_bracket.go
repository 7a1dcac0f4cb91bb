package filestore

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Bracket ioctl numbers. These mirror btrfs's transaction-bracket pair
// (BTRFS_IOCTL_MAGIC=0x94, cmd 6/7, _IO with no argument payload) — the
// only filesystem known to have shipped this primitive.
const (
	ioctlTransStart = 0x9406
	ioctlTransEnd   = 0x9407
)

// applyBracket wraps the whole batch in a single filesystem-transaction
// bracket: TRANS_START, every op via ordinary POSIX, TRANS_END. Between
// START and END, SIGINT/SIGTERM delivery is deferred by the process-wide
// signal barrier so a terminated process can never observe a
// half-applied bracket.
func (b *Backend) applyBracket(batch []*Transaction) error {
	fd, err := unix.Open(b.basedir, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open basedir for bracket transaction: %w", err)
	}
	defer unix.Close(fd)

	crumb := filepath.Join(b.basedir, fmt.Sprintf("trans.%d", fd))
	if f, err := os.Create(crumb); err == nil {
		f.Close()
	} else {
		log.WithError(err).Warn("could not create bracket breadcrumb file")
	}
	defer os.Remove(crumb)

	globalSignalBarrier.enter()
	defer globalSignalBarrier.leave()

	if err := unix.IoctlSetInt(fd, ioctlTransStart, 0); err != nil {
		return fmt.Errorf("TRANS_START: %w", err)
	}

	var first error
	for _, t := range batch {
		if err := applyOpsPosix(b.basedir, t, b.onStartSync); err != nil && first == nil {
			first = err
		}
	}

	if err := unix.IoctlSetInt(fd, ioctlTransEnd, 0); err != nil && first == nil {
		first = fmt.Errorf("TRANS_END: %w", err)
	}

	return first
}
