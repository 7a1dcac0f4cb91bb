package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filestore/internal/filestore"
	"filestore/internal/journal"
)

// TestWriteAndReadBack is S1: mkfs, mount, apply a small batch
// (MKCOLL, TOUCH, WRITE), and confirm both the logical read-back and
// the on-disk path the spec's naming scheme predicts.
func TestWriteAndReadBack(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "store")
	require.NoError(t, filestore.Mkfs(base, nil))

	store, err := filestore.Mount(base, filestore.MountOptions{})
	require.NoError(t, err)
	defer store.Umount()

	coll := filestore.CollID("0xAB")
	obj := filestore.NewObject("foo")

	tx := filestore.NewTransaction()
	tx.MkColl(coll)
	tx.Touch(coll, obj)
	tx.Write(coll, obj, 0, []byte("hello"))

	n, err := store.ApplyTransactions([]*filestore.Transaction{tx}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	path := filestore.GetCoName(base, coll, obj)
	assert.FileExists(t, path)
	assert.Equal(t, filepath.Join(base, "0xAB", "foo_head"), path)

	data, err := store.Read(coll, obj, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

// TestAttrRoundTripScenario is S4: SETATTR then GETATTR round-trips a
// value, and RMATTRS clears every attribute on the object.
func TestAttrRoundTripScenario(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "store")
	require.NoError(t, filestore.Mkfs(base, nil))
	store, err := filestore.Mount(base, filestore.MountOptions{})
	require.NoError(t, err)
	defer store.Umount()

	coll := filestore.CollID("c")
	obj := filestore.NewObject("o")

	tx := filestore.NewTransaction()
	tx.MkColl(coll)
	tx.Touch(coll, obj)
	tx.SetAttr(coll, obj, "k", []byte("v"))
	_, err = store.ApplyTransactions([]*filestore.Transaction{tx}, nil, nil)
	require.NoError(t, err)

	v, err := store.GetAttr(coll, obj, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	attrs, err := store.GetAttrs(coll, obj, true)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k": []byte("v")}, attrs)

	tx2 := filestore.NewTransaction()
	tx2.RmAttrs(coll, obj)
	_, err = store.ApplyTransactions([]*filestore.Transaction{tx2}, nil, nil)
	require.NoError(t, err)

	attrs, err = store.GetAttrs(coll, obj, true)
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

// TestCrashReplayScenario is S6: a batch submitted through a journal
// is durable once on_journal fires; remounting the same basedir replays
// anything the journal holds and advances op_seq to match.
func TestCrashReplayScenario(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "store")
	journalDir := filepath.Join(t.TempDir(), "store.journal")

	j := journal.NewFileJournal(journalDir, false)
	require.NoError(t, filestore.Mkfs(base, j))

	j2 := journal.NewFileJournal(journalDir, false)
	store, err := filestore.Mount(base, filestore.MountOptions{Journal: j2})
	require.NoError(t, err)

	coll := filestore.CollID("c")
	obj := filestore.NewObject("o")
	tx := filestore.NewTransaction()
	tx.MkColl(coll)
	tx.Touch(coll, obj)
	tx.Write(coll, obj, 0, []byte("durable"))

	journaled := make(chan struct{})
	_, err = store.ApplyTransactions([]*filestore.Transaction{tx}, func() { close(journaled) }, nil)
	require.NoError(t, err)
	<-journaled

	require.NoError(t, store.Umount())

	seq, err := filestore.ReadOpSeq(base)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	j3 := journal.NewFileJournal(journalDir, false)
	store2, err := filestore.Mount(base, filestore.MountOptions{Journal: j3})
	require.NoError(t, err)
	defer store2.Umount()

	data, err := os.ReadFile(filestore.GetCoName(base, coll, obj))
	require.NoError(t, err)
	assert.Equal(t, "durable", string(data))
}
