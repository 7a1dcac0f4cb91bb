package filestore

import "fmt"

// CollID is an opaque printable token naming a collection directory
// directly under basedir.
type CollID string

// Sentinel snapshot values for ObjectID.Snap.
const (
	// NoSnap is the sentinel for the live head of an object.
	NoSnap uint64 = ^uint64(0)
	// SnapDir is the sentinel for the directory-of-snaps view of an object.
	SnapDir uint64 = ^uint64(0) - 1
)

// ObjectID names an object within a collection: a byte-string name paired
// with a snapshot id (NoSnap, SnapDir, or a concrete snapshot number).
type ObjectID struct {
	Name []byte
	Snap uint64
}

// NewObject builds an ObjectID for the live head of name.
func NewObject(name string) ObjectID {
	return ObjectID{Name: []byte(name), Snap: NoSnap}
}

// NewObjectSnap builds an ObjectID pinned to a concrete snapshot.
func NewObjectSnap(name string, snap uint64) ObjectID {
	return ObjectID{Name: []byte(name), Snap: snap}
}

func (o ObjectID) String() string {
	return fmt.Sprintf("%s@%s", o.Name, snapTagString(o.Snap))
}

// Equal reports whether two object ids name the same (name, snap) pair.
func (o ObjectID) Equal(other ObjectID) bool {
	return string(o.Name) == string(other.Name) && o.Snap == other.Snap
}
