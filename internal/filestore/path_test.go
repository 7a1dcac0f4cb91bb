package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{"plain", "foo"},
		{"leading dot", ".secret"},
		{"embedded slash", "with/slash"},
		{"embedded backslash", `with\backslash`},
		{"leading dot plus slash plus backslash", `.secret/with\slash`},
		{"empty", ""},
		{"dot not at start", "a.b.c"},
		{"embedded underscore", "foo_bar"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			escaped := escapeName([]byte(tc.in))
			got := unescapeName(escaped)
			assert.Equal(t, tc.in, string(got))
		})
	}
}

// TestEscapingScenario is S2 from the external scenarios: TOUCH of an
// object named ".secret/with\slash" creates a file named
// "\.secret\swith\\slash_head", and parsing that basename yields the
// original name back.
func TestEscapingScenario(t *testing.T) {
	t.Parallel()

	obj := NewObject(`.secret/with\slash`)
	basename := objectBasename(obj)
	require.Equal(t, `\.secret\swith\\slash_head`, basename)

	parsed, ok := ParseObject(basename)
	require.True(t, ok)
	assert.Equal(t, obj.Name, parsed.Name)
	assert.Equal(t, obj.Snap, parsed.Snap)
}

func TestObjectBasenameRoundTrip(t *testing.T) {
	t.Parallel()

	objs := []ObjectID{
		NewObject("foo"),
		NewObject(".dotfile"),
		NewObject("a/b/c"),
		NewObjectSnap("x", 0x2a),
		{Name: []byte("x"), Snap: SnapDir},
		NewObject("foo_bar_baz"),
		NewObject(""),
	}

	for _, obj := range objs {
		basename := objectBasename(obj)
		parsed, ok := ParseObject(basename)
		require.True(t, ok, "basename %q should parse", basename)
		assert.True(t, obj.Equal(parsed), "round trip mismatch for %q: got %+v", basename, parsed)
	}
}

// TestSnapshotNamingScenario is S5: a concrete snapshot id renders as
// lowercase hex, and the two sentinel values render as their literal
// tags.
func TestSnapshotNamingScenario(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x_2a", objectBasename(NewObjectSnap("x", 0x2a)))
	assert.Equal(t, "x_snapdir", objectBasename(ObjectID{Name: []byte("x"), Snap: SnapDir}))
	assert.Equal(t, "x_head", objectBasename(NewObject("x")))
}

func TestParseObjectFindsLastUnescapedUnderscore(t *testing.T) {
	t.Parallel()

	// A literal underscore inside the name never needs escaping, so the
	// encoder may emit one there; only the final, unescaped underscore
	// is the name/snaptag separator.
	obj, ok := ParseObject("foo_bar_head")
	require.True(t, ok)
	assert.Equal(t, "foo_bar", string(obj.Name))
	assert.Equal(t, NoSnap, obj.Snap)
}

func TestParseObjectRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, ok := ParseObject("noseparator")
	assert.False(t, ok)

	_, ok = ParseObject("name_notahextag")
	assert.False(t, ok)
}

func TestNewCollID(t *testing.T) {
	t.Parallel()

	_, err := NewCollID("")
	assert.Error(t, err)

	_, err = NewCollID("has/slash")
	assert.Error(t, err)

	id, err := NewCollID("0xAB")
	require.NoError(t, err)
	assert.Equal(t, CollID("0xAB"), id)
}

func TestParseColl(t *testing.T) {
	t.Parallel()

	id, ok := ParseColl("mycoll")
	require.True(t, ok)
	assert.Equal(t, CollID("mycoll"), id)

	_, ok = ParseColl("")
	assert.False(t, ok)
}

func TestGetCoNameAndCDir(t *testing.T) {
	t.Parallel()

	base := "/tmp/store"
	coll := CollID("0xAB")
	obj := NewObject("foo")

	assert.Equal(t, "/tmp/store/0xAB", GetCDir(base, coll))
	assert.Equal(t, "/tmp/store/0xAB/foo_head", GetCoName(base, coll, obj))
}
