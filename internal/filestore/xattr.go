package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// xattrPrefix is the fixed filesystem namespace every attribute this
// store touches lives under. Non-prefixed xattrs on the same inode are
// invisible to this layer.
const xattrPrefix = "user.ceph."

// getxattr reads the value of a single user xattr from path. It probes
// with a zero-length buffer to learn the required size before
// re-issuing, which is the portable way to handle ERANGE across
// platforms that differ on whether a short buffer is even reported as
// an error up front.
func getxattr(path, name string) ([]byte, error) {
	size, err := unix.Getxattr(path, name, nil)
	if err != nil {
		return nil, wrapXattrErr("getxattr", path, name, err)
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	for {
		n, err := unix.Getxattr(path, name, buf)
		if err == nil {
			return buf[:n], nil
		}
		if err == unix.ERANGE {
			buf = make([]byte, len(buf)*2)
			continue
		}
		return nil, wrapXattrErr("getxattr", path, name, err)
	}
}

// setxattr writes a user xattr value to path, creating the attribute if
// absent.
func setxattr(path, name string, value []byte) error {
	if err := unix.Setxattr(path, name, value, 0); err != nil {
		return wrapXattrErr("setxattr", path, name, err)
	}
	return nil
}

// removexattr removes a single user xattr from path.
func removexattr(path, name string) error {
	if err := unix.Removexattr(path, name); err != nil {
		return wrapXattrErr("removexattr", path, name, err)
	}
	return nil
}

// listxattr returns every xattr name set on path, auto-growing its
// buffer on ERANGE the same way getxattr does.
func listxattr(path string) ([]string, error) {
	size, err := unix.Listxattr(path, nil)
	if err != nil {
		return nil, wrapXattrErr("listxattr", path, "", err)
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	for {
		n, err := unix.Listxattr(path, buf)
		if err == nil {
			return splitXattrNames(buf[:n]), nil
		}
		if err == unix.ERANGE {
			buf = make([]byte, len(buf)*2)
			continue
		}
		return nil, wrapXattrErr("listxattr", path, "", err)
	}
}

func splitXattrNames(buf []byte) []string {
	var names []string
	for _, part := range bytes.Split(buf, []byte{0}) {
		if len(part) > 0 {
			names = append(names, string(part))
		}
	}
	return names
}

func wrapXattrErr(op, path, name string, err error) error {
	log.WithFields(log.Fields{"op": op, "path": path, "attr": name}).Debug("xattr syscall failed")
	return fmt.Errorf("%s %s %s: %w", op, path, name, err)
}

// getAttr reads attribute name (unprefixed) from path.
func getAttr(path, name string) ([]byte, error) {
	v, err := getxattr(path, xattrPrefix+name)
	if err != nil {
		if errIsENOATTR(err) {
			return nil, syscall.ENODATA
		}
		return nil, err
	}
	return v, nil
}

// setAttr writes attribute name (unprefixed) on path.
func setAttr(path, name string, value []byte) error {
	return setxattr(path, xattrPrefix+name, value)
}

// rmAttr removes attribute name (unprefixed) from path.
func rmAttr(path, name string) error {
	if err := removexattr(path, xattrPrefix+name); err != nil {
		if errIsENOATTR(err) {
			return nil
		}
		return err
	}
	return nil
}

// getAttrs lists every attribute this layer manages on path, stripped of
// the namespace prefix. When userVisibleOnly is set, names whose
// unprefixed first byte is '_' are hidden — the convention this layer
// uses for attributes that are implementation-private.
func getAttrs(path string, userVisibleOnly bool) (map[string][]byte, error) {
	names, err := listxattr(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	for _, n := range names {
		if !strings.HasPrefix(n, xattrPrefix) {
			continue
		}
		bare := strings.TrimPrefix(n, xattrPrefix)
		if userVisibleOnly && strings.HasPrefix(bare, "_") {
			continue
		}
		v, err := getxattr(path, n)
		if err != nil {
			return nil, err
		}
		out[bare] = v
	}
	return out, nil
}

// rmAttrs removes every attribute this layer manages on path.
func rmAttrs(path string) error {
	names, err := listxattr(path)
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, n := range names {
		if !strings.HasPrefix(n, xattrPrefix) {
			continue
		}
		if err := removexattr(path, n); err != nil && !errIsENOATTR(err) {
			return err
		}
	}
	return nil
}

// errIsENOATTR reports whether err is the platform's "no such attribute"
// errno. Linux has no distinct ENOATTR — ENODATA is reused for both.
func errIsENOATTR(err error) bool {
	return errors.Is(err, unix.ENODATA)
}
