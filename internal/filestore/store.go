package filestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"filestore/internal/common"
)

const commitSeqFileName = "commit_op_seq"

// Store is a mounted object store: a basedir, the backend chosen at
// mount, an optional journal, and the sync loop that coordinates
// between them. It is the thing apply_transactions is a method of.
type Store struct {
	basedir string
	opFd    int

	backend *Backend
	journal Journal
	sync    *SyncLoop
	caps    Capabilities

	opSeqMu sync.Mutex
	opSeq   uint64

	inFlight int64 // op_start/op_finish reference count

	readOnly bool
	lockFile *flock.Flock
}

// opStart reference-counts in-flight apply_transactions calls so the
// sync loop (and umount) can observe whether it is safe to proceed.
func (s *Store) opStart() { atomic.AddInt64(&s.inFlight, 1) }

func (s *Store) opFinish() { atomic.AddInt64(&s.inFlight, -1) }

// InFlight reports the current in-flight apply count.
func (s *Store) InFlight() int64 { return atomic.LoadInt64(&s.inFlight) }

// OpSeq returns the current durable commit sequence.
func (s *Store) OpSeq() uint64 {
	s.opSeqMu.Lock()
	defer s.opSeqMu.Unlock()
	return s.opSeq
}

// ReadOpSeq reads basedir's commit_op_seq without requiring a mount —
// used by CLI reporting such as `fsck`'s before/after comparison.
func ReadOpSeq(basedir string) (uint64, error) {
	return readOpSeq(basedir)
}

// ReadFsid reads basedir's fsid file without acquiring its lock.
func ReadFsid(basedir string) ([8]byte, error) {
	var id [8]byte
	b, err := os.ReadFile(filepath.Join(basedir, fsidFileName))
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

func readOpSeq(basedir string) (uint64, error) {
	b, err := os.ReadFile(filepath.Join(basedir, commitSeqFileName))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(b) < 8 {
		return 0, fmt.Errorf("%w: commit_op_seq truncated to %d bytes", ErrCorruptJournal, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// writeOpSeq overwrites commit_op_seq in place with seq, matching the
// apply engine's step 5: a single 8-byte little-endian counter, never
// appended to.
func writeOpSeq(basedir string, seq uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seq)
	path := filepath.Join(basedir, commitSeqFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return err
	}
	return nil
}

// ApplyTransactions is the apply engine's entry point. It runs the
// mounted backend against batch, then hands the same batch to the
// journal for durable logging; on_journal and on_disk are invoked by
// the journal at its two durability points. With no journal configured,
// this function invokes both callbacks itself once the backend has
// returned. It returns the number of ops applied and the first error
// encountered, if any.
func (s *Store) ApplyTransactions(batch []*Transaction, onJournal, onDisk func()) (int, error) {
	if s.readOnly {
		return 0, fmt.Errorf("apply_transactions: %w", common.ErrReadOnly)
	}

	s.opStart()
	defer s.opFinish()

	numOps, numBytes := 0, 0
	for _, t := range batch {
		numOps += t.NumOps()
		numBytes += t.NumBytes()
	}

	if err := s.backend.ApplyBatch(batch); err != nil {
		log.WithFields(log.Fields{"ops": numOps, "bytes": numBytes}).WithError(err).Warn("apply_transactions: backend apply failed")
		return 0, translateErrno(err)
	}

	if s.journal != nil {
		if err := s.journal.Submit(batch, onJournal, onDisk); err != nil {
			return numOps, fmt.Errorf("journal submit: %w", err)
		}
	} else if onJournal != nil || onDisk != nil {
		// No journal: on-disk durability is immediate since each backend
		// call above already returned. Fire both callbacks now.
		if onJournal != nil {
			onJournal()
		}
		if onDisk != nil {
			onDisk()
		}
	}

	s.opSeqMu.Lock()
	s.opSeq++
	seq := s.opSeq
	s.opSeqMu.Unlock()
	if err := writeOpSeq(s.basedir, seq); err != nil {
		return numOps, fmt.Errorf("write op_seq: %w", err)
	}

	s.sync.Signal()
	return numOps, nil
}

// applyReplayed is the recursion point Replay calls back into. Replay
// runs before the capability probe has chosen a backend (mount's order
// is stat -> xattr probe -> lock -> open journal -> replay -> probe
// capabilities), so it always re-applies via plain POSIX calls — safe
// because every op the engine accepts is idempotent under replay
// regardless of which backend originally wrote it. Each successfully
// replayed batch advances op_seq by one and persists it, the same step
// ApplyTransactions takes for a live batch.
func (s *Store) applyReplayed(batch []*Transaction) error {
	var first error
	for _, t := range batch {
		if err := applyOpsPosix(s.basedir, t, nil); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return first
	}
	s.opSeqMu.Lock()
	s.opSeq++
	seq := s.opSeq
	s.opSeqMu.Unlock()
	return writeOpSeq(s.basedir, seq)
}

// Read returns up to length bytes of obj in coll starting at off,
// wrapping the low-level read op the same way ApplyTransactions wraps
// the write path.
func (s *Store) Read(coll CollID, obj ObjectID, off, length int64) ([]byte, error) {
	data, res := read(GetCoName(s.basedir, coll, obj), off, length)
	if err := res.Err(); err != nil {
		return nil, translateErrno(err)
	}
	return data, nil
}

// GetAttr returns the value of a single attribute on obj.
func (s *Store) GetAttr(coll CollID, obj ObjectID, name string) ([]byte, error) {
	v, err := getAttr(GetCoName(s.basedir, coll, obj), name)
	if err != nil {
		return nil, translateErrno(err)
	}
	return v, nil
}

// GetAttrs returns every attribute set on obj, stripped of the storage
// namespace prefix. userVisibleOnly hides names whose unprefixed first
// byte is '_'.
func (s *Store) GetAttrs(coll CollID, obj ObjectID, userVisibleOnly bool) (map[string][]byte, error) {
	v, err := getAttrs(GetCoName(s.basedir, coll, obj), userVisibleOnly)
	if err != nil {
		return nil, translateErrno(err)
	}
	return v, nil
}

// CollectionStat returns the FileInfo of coll's directory.
func (s *Store) CollectionStat(coll CollID) (os.FileInfo, error) {
	fi, err := statColl(s.basedir, coll)
	if err != nil {
		return nil, translateErrno(err)
	}
	return fi, nil
}

// CollectionEmpty reports whether coll has no non-dotfile entries.
func (s *Store) CollectionEmpty(coll CollID) (bool, error) {
	empty, err := collectionEmpty(s.basedir, coll)
	if err != nil {
		return false, translateErrno(err)
	}
	return empty, nil
}

// CollectionList returns every object in coll, sorted by inode number.
func (s *Store) CollectionList(coll CollID) ([]ListEntry, error) {
	entries, err := collectionList(s.basedir, coll)
	if err != nil {
		return nil, translateErrno(err)
	}
	return entries, nil
}

// CollectionListPartial streams coll in pages of at most maxCount
// entries, returning only objects with Snap >= seq. Pass the ListHandle
// returned by the previous call to continue from where it left off;
// handle.Done() reports end-of-stream.
func (s *Store) CollectionListPartial(coll CollID, seq uint64, maxCount int, handle ListHandle) ([]ListEntry, ListHandle, error) {
	entries, next, err := collectionListPartial(s.basedir, coll, seq, maxCount, handle)
	if err != nil {
		return nil, ListHandle{}, translateErrno(err)
	}
	return entries, next, nil
}

// ListCollections enumerates every collection under basedir, mirroring
// Ceph FileStore's list_collections.
func (s *Store) ListCollections() ([]CollID, error) {
	colls, err := listCollections(s.basedir)
	if err != nil {
		return nil, translateErrno(err)
	}
	return colls, nil
}
