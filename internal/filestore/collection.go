package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"filestore/internal/common"
)

// ListEntry is one object returned from collection listing.
type ListEntry struct {
	Obj ObjectID
	Ino uint64
}

// mkColl creates coll's directory.
func mkColl(basedir string, coll CollID) Result {
	return ResultOf(0, os.Mkdir(GetCDir(basedir, coll), 0755))
}

// rmColl removes coll's (empty) directory.
func rmColl(basedir string, coll CollID) Result {
	return ResultOf(0, os.Remove(GetCDir(basedir, coll)))
}

// collAdd hard-links obj from src into dst, so the same inode can appear
// in multiple collections at once — the mechanism behind snapshot
// isolation of an object set across collections.
func collAdd(basedir string, src, dst CollID, obj ObjectID) Result {
	return ResultOf(0, os.Link(GetCoName(basedir, src, obj), GetCoName(basedir, dst, obj)))
}

// collRemove unlinks obj's entry from coll without touching other links
// to the same inode.
func collRemove(basedir string, coll CollID, obj ObjectID) Result {
	return remove(GetCoName(basedir, coll, obj))
}

// collectionEmpty reports whether coll has no non-dotfile entries.
func collectionEmpty(basedir string, coll CollID) (bool, error) {
	entries, err := collectionList(basedir, coll)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// collectionList returns every object in coll sorted by inode number —
// a deliberate optimization that lets a caller which subsequently opens
// the objects in listing order minimize seeking.
func collectionList(basedir string, coll CollID) ([]ListEntry, error) {
	dir := GetCDir(basedir, coll)
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, ".") {
			continue
		}
		obj, ok := ParseObject(name)
		if !ok {
			log.WithFields(log.Fields{"coll": coll, "name": name}).Warn("skipping unparsable directory entry")
			continue
		}
		fi, err := os.Lstat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		entries = append(entries, ListEntry{Obj: obj, Ino: inoOf(fi)})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Ino < entries[j].Ino })
	return entries, nil
}

// listCollections enumerates every collection directly under basedir,
// sorted by name (the order os.ReadDir returns). Non-directory entries (fsid, commit_op_seq, transient
// trans.<fd> breadcrumbs) and dotfiles are skipped.
func listCollections(basedir string) ([]CollID, error) {
	entries, err := os.ReadDir(basedir)
	if err != nil {
		return nil, err
	}
	var colls []CollID
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		coll, ok := ParseColl(e.Name())
		if !ok {
			log.WithField("name", e.Name()).Warn("list_collections: skipping unparsable directory entry")
			continue
		}
		colls = append(colls, coll)
	}
	return colls, nil
}

// ListHandle opaquely carries a directory cursor across calls to
// collectionListPartial, analogous to a telldir/seekdir token. The zero
// value means "start from the beginning"; a handle LEFT at its zero
// value after a call signals end-of-stream.
type ListHandle struct {
	offset int
}

// collectionListPartial streams coll in pages of at most maxCount
// entries, returning only objects with Snap >= seq. Directory order
// (not inode order) is used for paging, matching the source's telldir-
// based cursor semantics; dotfiles are always skipped.
func collectionListPartial(basedir string, coll CollID, seq uint64, maxCount int, handle ListHandle) ([]ListEntry, ListHandle, error) {
	if handle.offset < 0 {
		return nil, ListHandle{}, fmt.Errorf("collection_list_partial: offset %d: %w", handle.offset, common.ErrInvalidHandle)
	}

	dir := GetCDir(basedir, coll)
	f, err := os.Open(dir)
	if err != nil {
		return nil, ListHandle{}, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, ListHandle{}, err
	}

	var out []ListEntry
	i := handle.offset
	for ; i < len(names) && len(out) < maxCount; i++ {
		name := names[i]
		if strings.HasPrefix(name, ".") {
			continue
		}
		obj, ok := ParseObject(name)
		if !ok {
			continue
		}
		if obj.Snap < seq {
			continue
		}
		fi, err := os.Lstat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		out = append(out, ListEntry{Obj: obj, Ino: inoOf(fi)})
	}

	if i >= len(names) {
		return out, ListHandle{}, nil
	}
	return out, ListHandle{offset: i}, nil
}

// Done reports whether a ListHandle represents end-of-stream.
func (h ListHandle) Done() bool { return h.offset == 0 }

// statColl returns the directory FileInfo for coll; it backs
// Store.CollectionStat.
func statColl(basedir string, coll CollID) (os.FileInfo, error) {
	return os.Stat(GetCDir(basedir, coll))
}

// collSetAttr/collRmAttr treat the collection directory itself as the
// attribute target (collection attributes are xattrs on the directory).
func collSetAttr(basedir string, coll CollID, name string, value []byte) Result {
	return ResultOf(0, setAttr(GetCDir(basedir, coll), name, value))
}

func collRmAttr(basedir string, coll CollID, name string) Result {
	return ResultOf(0, rmAttr(GetCDir(basedir, coll), name))
}
