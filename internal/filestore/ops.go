package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"filestore/internal/util"
)

// cloneChunkSize bounds the buffered-copy fallback for CLONERANGE when no
// kernel range-clone primitive is available.
const cloneChunkSize = 128 * 1024

// touch creates obj if it does not already exist, leaving existing
// content untouched. Idempotent, matching invariant 5 (replay safety).
func touch(path string) Result {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return ResultOf(0, err)
	}
	defer f.Close()
	return Result(0)
}

// write seeks to off and writes every buffer in bufs in order, asserting
// the seek landed exactly where requested. A short write is an error —
// the spec's low-level ops never partially apply a single WRITE.
func write(path string, off int64, bufs [][]byte) Result {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return ResultOf(0, err)
	}
	defer f.Close()

	got, err := f.Seek(off, io.SeekStart)
	if err != nil {
		return ResultOf(0, err)
	}
	if got != off {
		log.WithFields(log.Fields{"path": path, "want": off, "got": got}).Error("seek landed at wrong offset")
		return Result(-int64(syscall.EIO))
	}

	var total int
	for _, buf := range bufs {
		n, err := util.RetryWithResult(context.Background(), func() (int, error) {
			return f.Write(buf)
		}, util.IOOptions(context.Background())...)
		if err != nil {
			return ResultOf(total, err)
		}
		if n != len(buf) {
			log.WithFields(log.Fields{"path": path, "want": len(buf), "got": n}).Error("short write")
			return Result(-int64(syscall.EIO))
		}
		total += n
	}
	return Result(total)
}

// read returns up to length bytes of path starting at off, mirroring
// write's seek-then-retry structure. A read that hits EOF before filling
// the whole buffer is not an error — it returns the shorter slice, per
// the spec's byte-count convention (Result holds the count actually read).
func read(path string, off, length int64) ([]byte, Result) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ResultOf(0, err)
	}
	defer f.Close()

	got, err := f.Seek(off, io.SeekStart)
	if err != nil {
		return nil, ResultOf(0, err)
	}
	if got != off {
		log.WithFields(log.Fields{"path": path, "want": off, "got": got}).Error("seek landed at wrong offset")
		return nil, Result(-int64(syscall.EIO))
	}

	buf := make([]byte, length)
	var total int
	for total < len(buf) {
		n, err := util.RetryWithResult(context.Background(), func() (int, error) {
			return f.Read(buf[total:])
		}, util.IOOptions(context.Background())...)
		if n > 0 {
			total += n
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return buf[:total], ResultOf(total, err)
		}
		if n == 0 {
			break
		}
	}
	return buf[:total], Result(total)
}

// zero writes len zero bytes at off. The spec permits but does not
// require a sparse-hole implementation; this one prefers
// fallocate(FALLOC_FL_PUNCH_HOLE) when the filesystem supports it and
// falls back to writing a zero-filled buffer otherwise.
func zero(path string, off, length int64) Result {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return ResultOf(0, err)
	}
	defer f.Close()

	if err := punchHole(f, off, length); err == nil {
		// The hole punch keeps the file size, so a range past EOF still
		// has to be covered by extending the file.
		fi, err := f.Stat()
		if err != nil {
			return ResultOf(0, err)
		}
		if fi.Size() < off+length {
			if err := f.Truncate(off + length); err != nil {
				return ResultOf(0, err)
			}
		}
		return Result(length)
	}

	buf := make([]byte, min64(length, cloneChunkSize))
	remaining := length
	pos := off
	for remaining > 0 {
		n := min64(remaining, int64(len(buf)))
		if _, err := f.WriteAt(buf[:n], pos); err != nil {
			return ResultOf(0, err)
		}
		pos += n
		remaining -= n
	}
	return Result(length)
}

// punchHole attempts FALLOC_FL_PUNCH_HOLE; callers fall back to a
// zero-filled write when it fails (ENOSYS/EOPNOTSUPP on filesystems that
// don't support hole punching, e.g. most non-extent-based ones).
func punchHole(f *os.File, off, length int64) error {
	return unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, length)
}

// truncate resizes obj to size, extending with a hole if size is larger
// than the current length.
func truncate(path string, size int64) Result {
	return ResultOf(0, os.Truncate(path, size))
}

// remove unlinks obj. Removing a file that does not exist is reported as
// ENOENT — callers that want idempotence check for it explicitly (TOUCH
// is idempotent by construction; REMOVE is not, matching the spec's
// invariant 5 caveat "provided ops are themselves idempotent").
func remove(path string) Result {
	return ResultOf(0, os.Remove(path))
}

// clone makes dst a byte-for-byte independent copy of src's current
// content. It prefers the kernel's whole-file copy-on-write primitive
// (FICLONE) when available and falls back to a buffered read/write copy.
func clone(src, dst string) Result {
	srcF, err := os.Open(src)
	if err != nil {
		return ResultOf(0, err)
	}
	defer srcF.Close()

	dstF, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return ResultOf(0, err)
	}
	defer dstF.Close()

	if err := ficlone(dstF, srcF); err == nil {
		return Result(0)
	}

	n, err := io.Copy(dstF, srcF)
	return ResultOf(int(n), err)
}

// ficlone issues the kernel's FICLONE ioctl (whole-file reflink).
func ficlone(dst, src *os.File) error {
	return unix.IoctlFileClone(int(dst.Fd()), int(src.Fd()))
}

// ficloneRange issues the kernel's FICLONERANGE ioctl (ranged reflink).
func ficloneRange(dst, src *os.File, off, length int64) error {
	return unix.IoctlFileCloneRange(int(dst.Fd()), &unix.FileCloneRange{
		Src_fd:      int64(src.Fd()),
		Src_offset:  uint64(off),
		Src_length:  uint64(length),
		Dest_offset: uint64(off),
	})
}

// cloneRange copies [off, off+length) from src to the same range in dst.
// It prefers the kernel range-clone ioctl and falls back to a buffered
// copy in cloneChunkSize chunks.
func cloneRange(src, dst string, off, length int64) Result {
	srcF, err := os.Open(src)
	if err != nil {
		return ResultOf(0, err)
	}
	defer srcF.Close()

	dstF, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return ResultOf(0, err)
	}
	defer dstF.Close()

	if err := ficloneRange(dstF, srcF, off, length); err == nil {
		return Result(length)
	}
	log.WithField("path", dst).Debug("kernel range-clone unavailable, falling back to buffered copy")

	buf := make([]byte, min64(length, cloneChunkSize))
	remaining := length
	pos := off
	for remaining > 0 {
		n := min64(remaining, int64(len(buf)))
		read, err := srcF.ReadAt(buf[:n], pos)
		if err != nil && err != io.EOF {
			return ResultOf(0, err)
		}
		if read == 0 {
			break
		}
		if _, err := dstF.WriteAt(buf[:read], pos); err != nil {
			return ResultOf(0, err)
		}
		pos += int64(read)
		remaining -= int64(read)
	}
	return Result(length)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// objStat returns the os.FileInfo of path.
func objStat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func inoOf(fi os.FileInfo) uint64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Ino
	}
	return 0
}

// fmtErr wraps a low-level op failure with the path and operation name
// for logs; the Result itself stays the spec's negated-errno int.
func fmtErr(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w", op, path, err)
}
