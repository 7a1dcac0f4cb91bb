package journal

import "github.com/uptrace/bun"

// SchemaInfoModel tracks the journal index's own schema version, the
// same convention the rest of the pack uses for its sqlite stores.
type SchemaInfoModel struct {
	bun.BaseModel `bun:"table:schema_info"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// EntryModel indexes one journaled batch. The payload itself lives in
// segment.log at [Offset, Offset+Length); this row is what Replay and
// commit-discard scan to find it without reading the whole segment.
type EntryModel struct {
	bun.BaseModel `bun:"table:journal_entries"`

	Seq       uint64 `bun:"seq,pk"`
	Offset    int64  `bun:"offset,notnull"`
	Length    int64  `bun:"length,notnull"`
	Checksum  []byte `bun:"checksum,notnull"` // blake3-256
	Durable   bool   `bun:"durable,notnull"`  // set once fsync on segment.log returns
	CreatedAt int64  `bun:"created_at,notnull"`
}
