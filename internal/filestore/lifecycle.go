package filestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"filestore/internal/common"
	"filestore/internal/util"
)

const (
	fsidFileName     = "fsid"
	xattrProbeName   = "_mount_probe"
	xattrProbeValue  = "filestore-probe"
)

// Mkfs formats basedir: creates it if missing, wipes any existing
// contents, generates and persists a fresh fsid, and creates journal
// storage if journal is non-nil.
func Mkfs(basedir string, journal Journal) error {
	if err := os.RemoveAll(basedir); err != nil {
		return fmt.Errorf("mkfs: wipe %s: %w", basedir, err)
	}
	if err := os.MkdirAll(basedir, 0755); err != nil {
		return fmt.Errorf("mkfs: create %s: %w", basedir, err)
	}

	id := uuid.New()
	if err := os.WriteFile(filepath.Join(basedir, fsidFileName), id[:8], 0644); err != nil {
		return fmt.Errorf("mkfs: write fsid: %w", err)
	}
	if err := writeOpSeq(basedir, 0); err != nil {
		return fmt.Errorf("mkfs: write op_seq: %w", err)
	}

	if journal != nil {
		if err := journal.Create(); err != nil {
			return fmt.Errorf("mkfs: create journal: %w", err)
		}
	}

	log.WithField("basedir", basedir).Info("mkfs complete")
	return nil
}

// MountOptions configures Mount.
type MountOptions struct {
	Journal      Journal // nil disables the second durability path
	ForceBracket bool    // filestore_btrfs_trans
	MinSync      time.Duration
	MaxSync      time.Duration
}

// Mount brings basedir up as a live Store: validates it, acquires the
// fsid lock, opens and replays the journal, probes backend
// capabilities, and starts the sync loop. Mirrors the exit codes in §6:
// common.ErrNotFound (basedir missing), ErrIO (xattr probe failed),
// ErrBusy (fsid already locked), ErrCorruptJournal (unrecoverable replay).
func Mount(basedir string, opts MountOptions) (*Store, error) {
	if _, err := os.Stat(basedir); err != nil {
		return nil, fmt.Errorf("mount: %w: %v", common.ErrNotFound, err)
	}

	if err := probeXattrRoundTrip(basedir); err != nil {
		return nil, fmt.Errorf("mount: %w: xattr probe failed: %v", ErrIO, err)
	}

	fsidLock := flock.New(filepath.Join(basedir, fsidFileName))
	locked, err := fsidLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("mount: acquire fsid lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("mount: %w: fsid already locked", ErrBusy)
	}

	opFd, err := unix.Open(basedir, unix.O_RDONLY, 0)
	if err != nil {
		fsidLock.Unlock()
		return nil, fmt.Errorf("mount: open basedir: %w", err)
	}

	seq, err := readOpSeq(basedir)
	if err != nil {
		unix.Close(opFd)
		fsidLock.Unlock()
		return nil, fmt.Errorf("mount: read op_seq: %w", err)
	}

	store := &Store{basedir: basedir, opFd: opFd, opSeq: seq, journal: opts.Journal}

	if opts.Journal != nil {
		if err := opts.Journal.Open(); err != nil {
			unix.Close(opFd)
			fsidLock.Unlock()
			return nil, fmt.Errorf("mount: open journal: %w", err)
		}
		if err := opts.Journal.Replay(seq, store.applyReplayed); err != nil {
			opts.Journal.Close()
			unix.Close(opFd)
			fsidLock.Unlock()
			return nil, fmt.Errorf("mount: %w", err)
		}
		if err := opts.Journal.Start(); err != nil {
			opts.Journal.Close()
			unix.Close(opFd)
			fsidLock.Unlock()
			return nil, fmt.Errorf("mount: start journal: %w", err)
		}
	}

	store.caps = probeCapabilities(opFd)
	kind := SelectBackend(store.caps, opts.ForceBracket)
	store.backend = NewBackend(kind, basedir, opFd)
	log.WithField("backend", kind).Info("mount: backend selected")

	minSync, maxSync := opts.MinSync, opts.MaxSync
	if minSync <= 0 {
		minSync = 100 * time.Millisecond
	}
	if maxSync <= 0 {
		maxSync = 5 * time.Second
	}
	store.sync = NewSyncLoop(opts.Journal, opFd, minSync, maxSync, store.OpSeq)
	store.backend.SetStartSync(store.sync.Signal)
	store.sync.Start()

	store.lockFile = fsidLock
	return store, nil
}

// Umount requests a final sync, stops accepting new submissions, joins
// the sync task, stops the journal, and releases every fd the mount
// held.
func (s *Store) Umount() error {
	s.readOnly = true
	s.sync.Signal()

	drained := util.PollUntil(context.Background(), util.PollConfig{
		Timeout:  5 * time.Second,
		Interval: 10 * time.Millisecond,
	}, func() bool { return s.InFlight() == 0 })
	if drained != nil {
		log.WithField("in_flight", s.InFlight()).Warn("umount: timed out draining in-flight applies")
	}

	s.sync.Stop()

	var firstErr error
	if s.journal != nil {
		if err := s.journal.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("umount: stop journal: %w", err)
		}
	}
	if err := unix.Close(s.opFd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("umount: close basedir fd: %w", err)
	}
	if s.lockFile != nil {
		if err := s.lockFile.Unlock(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("umount: release fsid lock: %w", err)
		}
	}
	log.WithField("basedir", s.basedir).Info("umount complete")
	return firstErr
}

// probeXattrRoundTrip confirms the filesystem under basedir supports
// user xattrs by writing and reading back a sentinel value on basedir
// itself, then removing it.
func probeXattrRoundTrip(basedir string) error {
	if err := setAttr(basedir, xattrProbeName, []byte(xattrProbeValue)); err != nil {
		return err
	}
	defer rmAttr(basedir, xattrProbeName)

	got, err := getAttr(basedir, xattrProbeName)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, []byte(xattrProbeValue)) {
		return fmt.Errorf("%w: xattr round-trip mismatch", ErrIO)
	}
	return nil
}
