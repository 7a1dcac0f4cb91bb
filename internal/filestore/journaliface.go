package filestore

// Journal is the interface the core depends on but does not implement.
// A concrete Journal durably records batches submitted through Submit
// and can replay everything recorded since a given op_seq after a
// crash. The core never re-journals what Replay feeds back in.
type Journal interface {
	Create() error
	Open() error
	Close() error
	Start() error
	Stop() error

	// Replay enumerates every previously journaled batch whose sequence
	// exceeds sinceSeq, calling apply for each in order. apply is the
	// core's own apply path, entered without re-journaling. Replay
	// returns ErrCorruptJournal on unrecoverable corruption.
	Replay(sinceSeq uint64, apply func(batch []*Transaction) error) error

	// Submit queues batch for durable write. onJournal fires once the
	// write is durable on the journal device; onDisk fires once a
	// subsequent filesystem commit has advanced op_seq past batch.
	Submit(batch []*Transaction, onJournal, onDisk func()) error

	// CommitStart reports whether there is anything to commit and, if
	// so, takes a logical snapshot of what would be committed.
	CommitStart() (bool, error)
	// CommitStarted releases the journal to keep accepting entries past
	// the snapshot taken by CommitStart.
	CommitStarted() error
	// CommitFinish is called after the filesystem commit completes, so
	// the journal may discard entries at or below the snapshot.
	CommitFinish() error
}
