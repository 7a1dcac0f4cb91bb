package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filestore/internal/common"
)

func TestMkCollRmColl(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	coll := CollID("0xAB")

	require.True(t, mkColl(base, coll).Ok())
	fi, err := os.Stat(GetCDir(base, coll))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	require.True(t, rmColl(base, coll).Ok())
	_, err = os.Stat(GetCDir(base, coll))
	assert.True(t, os.IsNotExist(err))
}

func TestCollAddAndRemoveShareInode(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	src := CollID("src")
	dst := CollID("dst")
	obj := NewObject("foo")

	require.True(t, mkColl(base, src).Ok())
	require.True(t, mkColl(base, dst).Ok())
	require.True(t, write(GetCoName(base, src, obj), 0, [][]byte{[]byte("hello")}).Ok())

	require.True(t, collAdd(base, src, dst, obj).Ok())

	srcStat, err := os.Stat(GetCoName(base, src, obj))
	require.NoError(t, err)
	dstStat, err := os.Stat(GetCoName(base, dst, obj))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcStat, dstStat))

	require.True(t, collRemove(base, src, obj).Ok())
	_, err = os.Stat(GetCoName(base, src, obj))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(GetCoName(base, dst, obj))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCollectionListOrdersByInode(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	coll := CollID("c")
	require.True(t, mkColl(base, coll).Ok())

	for _, name := range []string{"a", "b", "c"} {
		require.True(t, touch(GetCoName(base, coll, NewObject(name))).Ok())
	}

	entries, err := collectionList(base, coll)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.LessOrEqual(t, entries[i-1].Ino, entries[i].Ino, "entries not in inode order")
	}

	names := make(map[string]bool)
	for _, e := range entries {
		names[string(e.Obj.Name)] = true
	}
	assert.True(t, names["a"] && names["b"] && names["c"])

	empty, err := collectionEmpty(base, coll)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestCollectionEmpty(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	coll := CollID("c")
	require.True(t, mkColl(base, coll).Ok())

	empty, err := collectionEmpty(base, coll)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestCollectionListSkipsDotfilesAndUnparsable(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	coll := CollID("c")
	require.True(t, mkColl(base, coll).Ok())
	require.True(t, touch(GetCoName(base, coll, NewObject("real"))).Ok())

	require.NoError(t, os.WriteFile(filepath.Join(GetCDir(base, coll), ".hidden"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(GetCDir(base, coll), "garbage-no-tag"), nil, 0644))

	entries, err := collectionList(base, coll)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "real", string(entries[0].Obj.Name))
}

// TestCollectionListPartialCoversEveryEntry is invariant 8 (partial
// listing coverage): paging through collectionListPartial with a small
// maxCount must, across all pages, return exactly the objects a single
// unpaginated collectionList call returns.
func TestCollectionListPartialCoversEveryEntry(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	coll := CollID("c")
	require.True(t, mkColl(base, coll).Ok())

	want := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	for _, name := range want {
		require.True(t, touch(GetCoName(base, coll, NewObject(name))).Ok())
	}

	seen := make(map[string]bool)
	var handle ListHandle
	pages := 0
	for {
		entries, next, err := collectionListPartial(base, coll, 0, 2, handle)
		require.NoError(t, err)
		pages++
		for _, e := range entries {
			seen[string(e.Obj.Name)] = true
		}
		if next.Done() {
			break
		}
		handle = next
	}

	require.Greater(t, pages, 1, "expected paging to span more than one call with maxCount=2 and 5 entries")
	require.Len(t, seen, len(want))
	for _, name := range want {
		assert.True(t, seen[name], "missing %s from paginated listing", name)
	}
}

func TestCollectionListPartialRejectsNegativeOffset(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	coll := CollID("c")
	require.True(t, mkColl(base, coll).Ok())

	_, _, err := collectionListPartial(base, coll, 0, 10, ListHandle{offset: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidHandle))
}

func TestListCollectionsSkipsBookkeepingFiles(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	require.True(t, mkColl(base, CollID("0xAB")).Ok())
	require.True(t, mkColl(base, CollID("0xCD")).Ok())

	require.NoError(t, os.WriteFile(filepath.Join(base, "fsid"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "commit_op_seq"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "trans.3"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(base, ".hidden"), 0755))

	colls, err := listCollections(base)
	require.NoError(t, err)
	require.Len(t, colls, 2)

	names := make(map[CollID]bool)
	for _, c := range colls {
		names[c] = true
	}
	assert.True(t, names[CollID("0xAB")])
	assert.True(t, names[CollID("0xCD")])
}

func TestCollSetAttrRmAttr(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	coll := CollID("c")
	require.True(t, mkColl(base, coll).Ok())

	require.True(t, collSetAttr(base, coll, "k", []byte("v")).Ok())
	got, err := getAttr(GetCDir(base, coll), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.True(t, collRmAttr(base, coll, "k").Ok())
	_, err = getAttr(GetCDir(base, coll), "k")
	assert.Error(t, err)
}
