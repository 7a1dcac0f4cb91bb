package filestore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFDTableSaveGet(t *testing.T) {
	t.Parallel()

	tbl := newFDTable()

	f1, err := os.CreateTemp(t.TempDir(), "fd1")
	require.NoError(t, err)
	defer f1.Close()
	f2, err := os.CreateTemp(t.TempDir(), "fd2")
	require.NoError(t, err)
	defer f2.Close()

	s1 := tbl.save(f1)
	s2 := tbl.save(f2)
	assert.NotEqual(t, s1, s2)

	got1, ok := tbl.get(s1)
	require.True(t, ok)
	assert.Equal(t, f1, got1)

	got2, ok := tbl.get(s2)
	require.True(t, ok)
	assert.Equal(t, f2, got2)

	_, ok = tbl.get(fdSlot(999))
	assert.False(t, ok)
}

func TestFDTableCloseAllIsNilSafe(t *testing.T) {
	t.Parallel()

	tbl := newFDTable()
	tbl.save(nil)
	tbl.save(nil)

	assert.NotPanics(t, func() { tbl.closeAll() })

	_, ok := tbl.get(fdSlot(0))
	assert.False(t, ok)
}
