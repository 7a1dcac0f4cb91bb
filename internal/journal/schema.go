package journal

import "fmt"

// SchemaVersion is the journal index's own schema generation, bumped
// whenever journal_entries or schema_info change shape.
const SchemaVersion = "1"

// DefaultBusyTimeout mirrors the pack-wide convention of a generous
// sqlite busy_timeout so the journal writer and any concurrent reader
// (fsck, stat) don't spuriously collide on SQLITE_BUSY.
const DefaultBusyTimeout = 30000

// BuildDSN builds the sqlite DSN for the journal index with WAL mode
// and the pack's busy_timeout convention.
func BuildDSN(path string, busyTimeoutMs int) string {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = DefaultBusyTimeout
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", path, busyTimeoutMs)
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS schema_info (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_entries (
	seq INTEGER PRIMARY KEY,
	offset INTEGER NOT NULL,
	length INTEGER NOT NULL,
	checksum BLOB NOT NULL,
	durable INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_durable ON journal_entries(durable);
`
