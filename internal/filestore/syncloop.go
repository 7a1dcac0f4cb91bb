package filestore

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ioctlSync mirrors btrfs's filesystem-wide sync ioctl
// (BTRFS_IOC_SYNC = _IO(0x94, 8)); filesystems that lack it fall back
// to a plain fsync on opFd.
const ioctlSync = 0x9408

// SyncLoop is the dedicated long-running task described by the sync
// protocol: it periodically asks the journal whether there is anything
// to commit, and if so drives a filesystem commit and the journal's
// three-way handshake around it.
type SyncLoop struct {
	journal     Journal
	opFd        int
	minInterval time.Duration
	maxInterval time.Duration
	getSeq      func() uint64

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	hasJournal bool
	lastSync   time.Time
}

// NewSyncLoop constructs a SyncLoop bound to journal (nil if the store
// has no journal configured) and opFd, the mount's basedir fd used for
// the filesystem commit step.
func NewSyncLoop(journal Journal, opFd int, min, max time.Duration, getSeq func() uint64) *SyncLoop {
	return &SyncLoop{
		journal:     journal,
		opFd:        opFd,
		minInterval: min,
		maxInterval: max,
		getSeq:      getSeq,
		hasJournal:  journal != nil,
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		lastSync:    time.Now(),
	}
}

// Start spawns the loop goroutine. It is joined by Stop.
func (s *SyncLoop) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop signals the loop to exit and waits for it to finish its current
// iteration.
func (s *SyncLoop) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Signal implements `_start_sync`: when the store has no journal, the
// sync loop is the store's only durability path, so a signal wakes it
// immediately; when a journal is present, it already provides
// durability and the signal is a no-op.
func (s *SyncLoop) Signal() {
	if s.hasJournal {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *SyncLoop) run() {
	defer s.wg.Done()
	for {
		timer := time.NewTimer(s.maxInterval)
		select {
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			return
		}

		if elapsed := time.Since(s.lastSync); elapsed < s.minInterval {
			select {
			case <-time.After(s.minInterval - elapsed):
			case <-s.stopCh:
				return
			}
		}

		s.tick()
	}
}

func (s *SyncLoop) tick() {
	if s.journal == nil {
		if err := s.fsCommit(); err != nil {
			log.WithError(err).Warn("sync loop: filesystem commit failed")
		}
		s.lastSync = time.Now()
		return
	}

	ok, err := s.journal.CommitStart()
	if err != nil {
		log.WithError(err).Warn("sync loop: commit_start failed")
		return
	}
	if !ok {
		return
	}

	seq := uint64(0)
	if s.getSeq != nil {
		seq = s.getSeq()
	}
	if err := s.journal.CommitStarted(); err != nil {
		log.WithError(err).Warn("sync loop: commit_started failed")
		return
	}
	if err := s.fsCommit(); err != nil {
		log.WithError(err).Error("sync loop: filesystem commit failed")
	}
	if err := s.journal.CommitFinish(); err != nil {
		log.WithError(err).Warn("sync loop: commit_finish failed")
	}
	log.WithField("op_seq", seq).Debug("sync loop: committed")
	s.lastSync = time.Now()
}

// fsCommit issues a filesystem-wide commit: the SYNC ioctl where
// supported, else an ordinary fsync on opFd.
func (s *SyncLoop) fsCommit() error {
	if err := unix.IoctlSetInt(s.opFd, ioctlSync, 0); err == nil {
		return nil
	}
	return unix.Fsync(s.opFd)
}
