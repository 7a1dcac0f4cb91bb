package filestore

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFileForXattr(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obj")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	return path
}

// TestAttrRoundTrip is S4: set an attribute, read it back, then remove
// every attribute and confirm the listing comes back empty.
func TestAttrRoundTrip(t *testing.T) {
	t.Parallel()

	path := tempFileForXattr(t)

	require.NoError(t, setAttr(path, "k", []byte("v")))
	got, err := getAttr(path, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, rmAttrs(path))
	attrs, err := getAttrs(path, false)
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestGetAttrMissingIsENODATA(t *testing.T) {
	t.Parallel()

	path := tempFileForXattr(t)
	_, err := getAttr(path, "nope")
	assert.ErrorIs(t, err, syscall.ENODATA)
}

func TestRmAttrMissingIsNotAnError(t *testing.T) {
	t.Parallel()

	path := tempFileForXattr(t)
	assert.NoError(t, rmAttr(path, "nope"))
}

func TestGetAttrsHidesUnderscorePrefixedWhenUserVisibleOnly(t *testing.T) {
	t.Parallel()

	path := tempFileForXattr(t)
	require.NoError(t, setAttr(path, "visible", []byte("1")))
	require.NoError(t, setAttr(path, "_private", []byte("2")))

	all, err := getAttrs(path, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	visibleOnly, err := getAttrs(path, true)
	require.NoError(t, err)
	assert.Len(t, visibleOnly, 1)
	_, ok := visibleOnly["visible"]
	assert.True(t, ok)
}

func TestGetAttrsIgnoresForeignNamespace(t *testing.T) {
	t.Parallel()

	path := tempFileForXattr(t)
	require.NoError(t, setAttr(path, "ours", []byte("1")))
	_ = setxattr(path, "user.other.ns", []byte("ignored"))

	attrs, err := getAttrs(path, false)
	require.NoError(t, err)
	_, hasOurs := attrs["ours"]
	assert.True(t, hasOurs)
	_, hasForeign := attrs["other.ns"]
	assert.False(t, hasForeign)
}
