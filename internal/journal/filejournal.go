package journal

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"filestore/internal/filestore"
	"filestore/internal/util"
)

// unixDsyncFlag is OR'd into the segment.log open flags when
// journal_dio requests synchronous durability per write.
const unixDsyncFlag = unix.O_DSYNC

const segmentFileName = "segment.log"
const indexFileName = "journal.db"

// frameHeaderSize is len(seq) + len(length) + len(checksum):
// [seq:8][len:8][checksum:32][payload:len].
const frameHeaderSize = 8 + 8 + 32

// batchWire is the on-the-wire shape of one journaled batch: each
// Transaction reduced to its exported op slice, since that is all a
// Transaction's own accessors expose and all a replaying apply needs.
type batchWire struct {
	Txs [][]filestore.Op
}

type submission struct {
	batch     []*filestore.Transaction
	onJournal func()
	onDisk    func()
}

// FileJournal is the reference Journal: an append-only segment.log
// holding framed, checksummed batch payloads, indexed by a sqlite
// table (journal.db) that is strictly a cache of segment.log's
// structure — rebuildable by rescanning frames if ever lost.
type FileJournal struct {
	dir  string
	dio  bool
	seg  *os.File
	db   *bun.DB
	sqlDB *sql.DB

	mu       sync.Mutex
	nextSeq  uint64
	writeOff int64

	pendingMu sync.Mutex
	pending   map[uint64]func() // seq -> onDisk, awaiting commit_finish

	snapshotMu  sync.Mutex
	snapshotSeq uint64
	hasSnapshot bool

	submitCh chan submission
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewFileJournal constructs a FileJournal rooted at dir (segment.log
// and journal.db live directly inside it). dio requests O_DSYNC on the
// segment file as the practical stand-in for journal_dio: true
// O_DIRECT requires sector-aligned buffers the variable-length frame
// format can't guarantee, while O_DSYNC gives the same "durable before
// write() returns" property this journal actually needs.
func NewFileJournal(dir string, dio bool) *FileJournal {
	return &FileJournal{
		dir:     dir,
		dio:     dio,
		pending: make(map[uint64]func()),
	}
}

func (j *FileJournal) segPath() string { return filepath.Join(j.dir, segmentFileName) }
func (j *FileJournal) dbPath() string  { return filepath.Join(j.dir, indexFileName) }

// Create formats a blank journal: empty segment.log and a fresh index.
func (j *FileJournal) Create() error {
	if err := os.MkdirAll(j.dir, 0755); err != nil {
		return fmt.Errorf("journal create: %w", err)
	}
	f, err := os.OpenFile(j.segPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("journal create: segment.log: %w", err)
	}
	f.Close()
	os.Remove(j.dbPath())

	sqlDB, err := sql.Open("sqlite3", BuildDSN(j.dbPath(), 0))
	if err != nil {
		return fmt.Errorf("journal create: open index: %w", err)
	}
	defer sqlDB.Close()
	if _, err := sqlDB.Exec(indexSchema); err != nil {
		return fmt.Errorf("journal create: index schema: %w", err)
	}
	return nil
}

// Open opens an existing journal for use.
func (j *FileJournal) Open() error {
	flags := os.O_RDWR | os.O_APPEND
	if j.dio {
		flags |= unixDsyncFlag
	}
	f, err := os.OpenFile(j.segPath(), flags, 0644)
	if err != nil {
		return fmt.Errorf("journal open: segment.log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	j.seg = f
	j.writeOff = info.Size()

	sqlDB, err := sql.Open("sqlite3", BuildDSN(j.dbPath(), 0))
	if err != nil {
		f.Close()
		return fmt.Errorf("journal open: index: %w", err)
	}
	if _, err := sqlDB.Exec(indexSchema); err != nil {
		sqlDB.Close()
		f.Close()
		return fmt.Errorf("journal open: index schema: %w", err)
	}
	j.sqlDB = sqlDB
	j.db = bun.NewDB(sqlDB, sqlitedialect.New())

	maxSeq, err := j.maxIndexedSeq()
	if err != nil {
		return err
	}
	j.nextSeq = maxSeq + 1
	return nil
}

func (j *FileJournal) maxIndexedSeq() (uint64, error) {
	var seq sql.NullInt64
	err := j.db.NewRaw(`SELECT MAX(seq) FROM journal_entries`).Scan(context.Background(), &seq)
	if err != nil {
		return 0, fmt.Errorf("journal: read max seq: %w", err)
	}
	if seq.Valid {
		return uint64(seq.Int64), nil
	}
	return 0, nil
}

// Close releases the journal's file handles without draining pending
// submissions; callers should Stop first if a writer goroutine is
// running.
func (j *FileJournal) Close() error {
	var firstErr error
	if j.sqlDB != nil {
		if err := j.sqlDB.Close(); err != nil {
			firstErr = err
		}
	}
	if j.seg != nil {
		if err := j.seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Start spawns the dedicated writer goroutine. Submissions are handed
// to it over a channel so that on_journal/on_disk callbacks never run
// inline under a caller's lock.
func (j *FileJournal) Start() error {
	j.submitCh = make(chan submission, 64)
	j.stopCh = make(chan struct{})
	j.wg.Add(1)
	go j.writerLoop()
	return nil
}

// Stop drains any queued submissions and stops the writer goroutine.
func (j *FileJournal) Stop() error {
	close(j.stopCh)
	j.wg.Wait()
	return nil
}

func (j *FileJournal) writerLoop() {
	defer j.wg.Done()
	for {
		select {
		case s := <-j.submitCh:
			j.writeOne(s)
		case <-j.stopCh:
			j.drain()
			return
		}
	}
}

func (j *FileJournal) drain() {
	for {
		select {
		case s := <-j.submitCh:
			j.writeOne(s)
		default:
			return
		}
	}
}

func (j *FileJournal) writeOne(s submission) {
	seq, err := j.appendFrame(s.batch)
	if err != nil {
		log.WithError(err).Error("journal: failed to append frame, batch not durable")
		return
	}
	if s.onDisk != nil {
		j.pendingMu.Lock()
		j.pending[seq] = s.onDisk
		j.pendingMu.Unlock()
	}
	if s.onJournal != nil {
		s.onJournal()
	}
}

// appendFrame serializes batch, writes its frame, fsyncs, and indexes
// it, returning the sequence number assigned.
func (j *FileJournal) appendFrame(batch []*filestore.Transaction) (uint64, error) {
	wire := batchWire{Txs: make([][]filestore.Op, len(batch))}
	for i, t := range batch {
		wire.Txs[i] = t.Ops()
	}
	payload, err := msgpack.Marshal(wire)
	if err != nil {
		return 0, fmt.Errorf("journal: marshal batch: %w", err)
	}
	sum := blake3.Sum256(payload)

	j.mu.Lock()
	seq := j.nextSeq
	j.nextSeq++
	off := j.writeOff
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint64(frame[0:8], seq)
	binary.LittleEndian.PutUint64(frame[8:16], uint64(len(payload)))
	copy(frame[16:48], sum[:])
	copy(frame[48:], payload)

	n, err := j.seg.Write(frame)
	if err == nil {
		j.writeOff += int64(n)
	}
	j.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("journal: write frame: %w", err)
	}
	if err := j.seg.Sync(); err != nil {
		return 0, fmt.Errorf("journal: fsync segment.log: %w", err)
	}

	_, err = j.db.NewInsert().Model(&EntryModel{
		Seq: seq, Offset: off, Length: int64(len(frame)), Checksum: sum[:],
		Durable: true, CreatedAt: time.Now().Unix(),
	}).Exec(context.Background())
	if err != nil {
		return 0, fmt.Errorf("journal: index frame: %w", err)
	}
	return seq, nil
}

// Submit queues batch for durable write. It never blocks on the write
// itself — only on channel capacity, matching the interface's promise
// that callbacks run off the caller's stack.
func (j *FileJournal) Submit(batch []*filestore.Transaction, onJournal, onDisk func()) error {
	select {
	case j.submitCh <- submission{batch: batch, onJournal: onJournal, onDisk: onDisk}:
		return nil
	case <-j.stopCh:
		return fmt.Errorf("journal: submit after stop")
	}
}

// CommitStart reports whether any journaled entry is newer than the
// last snapshot and, if so, records the current nextSeq-1 as the new
// snapshot boundary.
func (j *FileJournal) CommitStart() (bool, error) {
	j.mu.Lock()
	cur := j.nextSeq - 1
	j.mu.Unlock()

	j.snapshotMu.Lock()
	defer j.snapshotMu.Unlock()
	if j.hasSnapshot && cur <= j.snapshotSeq {
		return false, nil
	}
	j.snapshotSeq = cur
	j.hasSnapshot = cur > 0
	return j.hasSnapshot, nil
}

// CommitStarted is a no-op for this implementation: appendFrame never
// blocks on a snapshot, so there is nothing to release.
func (j *FileJournal) CommitStarted() error { return nil }

// CommitFinish fires every pending on_disk callback at or below the
// snapshot taken by CommitStart, then discards their index rows —
// segment.log space is reclaimed lazily by a future compaction, not
// eagerly here.
func (j *FileJournal) CommitFinish() error {
	j.snapshotMu.Lock()
	snap := j.snapshotSeq
	j.snapshotMu.Unlock()

	j.pendingMu.Lock()
	var fired []func()
	for seq, cb := range j.pending {
		if seq <= snap {
			fired = append(fired, cb)
			delete(j.pending, seq)
		}
	}
	j.pendingMu.Unlock()
	for _, cb := range fired {
		cb()
	}

	_, err := util.RetryWithResult(context.Background(), func() (sql.Result, error) {
		return j.db.NewDelete().Model((*EntryModel)(nil)).Where("seq <= ?", snap).Exec(context.Background())
	}, util.DatabaseRetryOptions(context.Background())...)
	if err != nil {
		return fmt.Errorf("journal: discard committed entries: %w", err)
	}
	return nil
}

// VerifyChecksums scans every indexed entry and confirms its stored
// blake3 checksum matches its segment.log payload, without applying
// anything. Used by fsck.
func (j *FileJournal) VerifyChecksums() (int, error) {
	var entries []EntryModel
	err := j.db.NewSelect().Model(&entries).Order("seq ASC").Scan(context.Background())
	if err != nil {
		return 0, fmt.Errorf("journal: verify: list entries: %w", err)
	}
	for _, e := range entries {
		if _, err := j.readFrame(e); err != nil {
			return 0, fmt.Errorf("entry seq %d: %w", e.Seq, err)
		}
	}
	return len(entries), nil
}

// Replay enumerates every indexed entry with seq > sinceSeq, in order,
// verifying its checksum and re-dispatching it through apply without
// re-journaling.
func (j *FileJournal) Replay(sinceSeq uint64, apply func(batch []*filestore.Transaction) error) error {
	var entries []EntryModel
	err := j.db.NewSelect().Model(&entries).Where("seq > ?", sinceSeq).Order("seq ASC").Scan(context.Background())
	if err != nil {
		return fmt.Errorf("journal: replay: list entries: %w", err)
	}

	for _, e := range entries {
		batch, err := j.readFrame(e)
		if err != nil {
			return fmt.Errorf("%w: %v", filestore.ErrCorruptJournal, err)
		}
		if err := apply(batch); err != nil {
			log.WithField("seq", e.Seq).WithError(err).Error("journal: replay: apply failed")
			return fmt.Errorf("%w: replaying seq %d: %v", filestore.ErrCorruptJournal, e.Seq, err)
		}
	}
	log.WithField("count", len(entries)).Info("journal: replay complete")
	return nil
}

func (j *FileJournal) readFrame(e EntryModel) ([]*filestore.Transaction, error) {
	buf := make([]byte, e.Length)
	if _, err := j.seg.ReadAt(buf, e.Offset); err != nil {
		return nil, fmt.Errorf("read frame at %d: %w", e.Offset, err)
	}
	if len(buf) < frameHeaderSize {
		return nil, fmt.Errorf("frame at %d shorter than header", e.Offset)
	}
	payload := buf[frameHeaderSize:]
	sum := blake3.Sum256(payload)
	if !bytesEqual(sum[:], buf[16:48]) {
		return nil, fmt.Errorf("checksum mismatch at seq %d", e.Seq)
	}

	var wire batchWire
	if err := msgpack.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal frame at seq %d: %w", e.Seq, err)
	}
	batch := make([]*filestore.Transaction, len(wire.Txs))
	for i, ops := range wire.Txs {
		batch[i] = filestore.TransactionFromOps(ops)
	}
	return batch, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
