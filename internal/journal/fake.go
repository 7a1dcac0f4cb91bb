package journal

import (
	"sync"

	"filestore/internal/filestore"
)

// FakeJournal is an in-memory Journal used by tests where durability
// across process restarts is not the point — only the three-way commit
// handshake and callback ordering are. The CLI's
// filestore_fake_attrs/filestore_fake_collections mode does not use it;
// it runs with no journal at all.
type FakeJournal struct {
	mu      sync.Mutex
	entries []fakeEntry
	nextSeq uint64

	snapshotSeq uint64
	hasSnapshot bool
}

type fakeEntry struct {
	seq    uint64
	batch  []*filestore.Transaction
	onDisk func()
}

// NewFakeJournal returns a ready-to-use FakeJournal; Create/Open/Start
// are all no-ops since there is no backing storage to format or open.
func NewFakeJournal() *FakeJournal { return &FakeJournal{} }

func (f *FakeJournal) Create() error { return nil }
func (f *FakeJournal) Open() error   { return nil }
func (f *FakeJournal) Close() error  { return nil }
func (f *FakeJournal) Start() error  { return nil }
func (f *FakeJournal) Stop() error   { return nil }

func (f *FakeJournal) Submit(batch []*filestore.Transaction, onJournal, onDisk func()) error {
	f.mu.Lock()
	f.nextSeq++
	seq := f.nextSeq
	f.entries = append(f.entries, fakeEntry{seq: seq, batch: batch, onDisk: onDisk})
	f.mu.Unlock()
	if onJournal != nil {
		onJournal()
	}
	return nil
}

func (f *FakeJournal) CommitStart() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return false, nil
	}
	f.snapshotSeq = f.entries[len(f.entries)-1].seq
	f.hasSnapshot = true
	return true, nil
}

func (f *FakeJournal) CommitStarted() error { return nil }

func (f *FakeJournal) CommitFinish() error {
	f.mu.Lock()
	if !f.hasSnapshot {
		f.mu.Unlock()
		return nil
	}
	var fired []func()
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.seq <= f.snapshotSeq {
			if e.onDisk != nil {
				fired = append(fired, e.onDisk)
			}
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	f.hasSnapshot = false
	f.mu.Unlock()

	for _, cb := range fired {
		cb()
	}
	return nil
}

func (f *FakeJournal) Replay(sinceSeq uint64, apply func(batch []*filestore.Transaction) error) error {
	f.mu.Lock()
	entries := append([]fakeEntry(nil), f.entries...)
	f.mu.Unlock()

	for _, e := range entries {
		if e.seq <= sinceSeq {
			continue
		}
		if err := apply(e.batch); err != nil {
			return err
		}
	}
	return nil
}
