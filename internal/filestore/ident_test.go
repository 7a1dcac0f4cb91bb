package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewObjectDefaultsToNoSnap(t *testing.T) {
	t.Parallel()

	obj := NewObject("foo")
	assert.Equal(t, "foo", string(obj.Name))
	assert.Equal(t, NoSnap, obj.Snap)
}

func TestObjectIDString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "foo@head", NewObject("foo").String())
	assert.Equal(t, "foo@snapdir", ObjectID{Name: []byte("foo"), Snap: SnapDir}.String())
	assert.Equal(t, "foo@2a", NewObjectSnap("foo", 0x2a).String())
}

func TestObjectIDEqual(t *testing.T) {
	t.Parallel()

	a := NewObject("foo")
	b := NewObject("foo")
	c := NewObject("bar")
	d := NewObjectSnap("foo", 1)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}
