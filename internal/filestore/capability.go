package filestore

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Capabilities records what the running kernel/filesystem pair can do,
// latched once at mount by probeCapabilities and never re-checked for
// the life of that mount.
type Capabilities struct {
	UserTrans      bool // btrfs_usertrans
	TransStartEnd  bool // btrfs_trans_start_end
	RangeCloneIoctl bool
}

// probeCapabilities issues the empty-transaction probe described in the
// design notes: deliberately side-effect-free at the filesystem level
// while still exercising the relevant ioctl, so the result can be
// trusted without having mutated anything.
func probeCapabilities(opFd int) Capabilities {
	var caps Capabilities

	if err := issueEmptyUserTrans(opFd, false, nil); err == nil {
		caps.UserTrans = true
		log.Info("capability probe: UserTrans ioctl available")
	} else if err := unix.IoctlSetInt(opFd, ioctlTransStart, 0); err == nil {
		unix.IoctlSetInt(opFd, ioctlTransEnd, 0)
		caps.TransStartEnd = true
		log.Info("capability probe: Bracket TRANS_START/END available")
	} else {
		log.Info("capability probe: falling back to POSIX backend")
	}

	caps.RangeCloneIoctl = probeRangeClone(opFd)
	return caps
}

// probeRangeClone issues a zero-length range-clone with fd as both source
// and destination. Mount passes its basedir fd here, not the fsid file's
// fd. The expected response is -EBADF (the target fd is nonsense
// for cloning into) — seeing exactly that confirms the ioctl exists at
// all, distinct from ENOTTY/ENOSYS meaning it doesn't.
func probeRangeClone(fd int) bool {
	err := unix.IoctlFileCloneRange(fd, &unix.FileCloneRange{
		Src_fd:      int64(fd),
		Src_offset:  0,
		Src_length:  0,
		Dest_offset: 0,
	})
	return err == unix.EBADF
}

// SelectBackend chooses the apply strategy for caps, honoring
// filestore_btrfs_trans as an override that enables Bracket even when
// UserTrans would otherwise be preferred — useful for testing the
// slower path deliberately.
func SelectBackend(caps Capabilities, forceBracket bool) BackendKind {
	switch {
	case caps.UserTrans && !forceBracket:
		return BackendUserTrans
	case caps.TransStartEnd:
		return BackendBracket
	default:
		return BackendPosix
	}
}
