// Package fsadapter is the narrow filesystem + event-stream interface the
// scan engine consumes (spec §6: "Out of scope ... the underlying
// filesystem abstraction (real vs. simulated) with event watcher"). The
// package supplies both a real implementation (backed directly by os.*,
// the way the teacher's internal/index calls os.ReadDir/os.Lstat directly,
// and counting its ReadDir calls) and a test double event source with
// pause/flush hooks. There is no test double for FS itself.
package fsadapter

import (
	"errors"
	"io/fs"
	"time"
)

// DirEntry is one child returned by ReadDir.
type DirEntry struct {
	Name      string
	IsDir     bool
	IsSymlink bool
}

// Metadata is what Stat/Lstat supplies for an Entry (spec §3).
type Metadata struct {
	Size      int64
	ModTime   time.Time
	IsDir     bool
	IsSymlink bool
	Inode     uint64
	HasInode  bool
}

// FS is the filesystem surface the scan engine and worktree handle depend
// on. A real implementation is provided by NewRealFS; tests may supply a
// double.
type FS interface {
	ReadDir(path string) ([]DirEntry, error)
	// Metadata stats path. If followSymlink is false, a symlink itself is
	// described rather than its target (i.e. lstat semantics).
	Metadata(path string, followSymlink bool) (Metadata, error)
	ReadLink(path string) (string, error)
	// ReadFile returns the full contents of path, for small metadata files
	// such as .gitignore and load_file reads.
	ReadFile(path string) ([]byte, error)
	CreateFile(path string) error
	CreateDir(path string) error
	// Rename moves oldPath to newPath. If overwrite is false and newPath
	// exists, Rename fails; if ignoreIfExists is true, a pre-existing
	// newPath is treated as success without modification.
	Rename(oldPath, newPath string, overwrite, ignoreIfExists bool) error
	RemoveFile(path string) error
	// RemoveDir removes path. If recursive is false, path must be empty.
	// If ignoreIfNotExists is true, a missing path is not an error.
	RemoveDir(path string, recursive, ignoreIfNotExists bool) error
	// Save writes contents to path, creating it if necessary.
	Save(path string, contents []byte) error
	// AtomicWrite writes contents to path via a temp-file-then-rename
	// sequence where the underlying filesystem supports it.
	AtomicWrite(path string, contents []byte) error
	IsFile(path string) bool
	CreateSymlink(target, linkPath string) error
	TouchPath(path string) error
	// ReadDirCallCount returns the number of ReadDir calls made so far,
	// for tests asserting bounded directory reads (spec §8).
	ReadDirCallCount() int64
}

// IsNotExist reports whether err indicates the path is absent.
func IsNotExist(err error) bool {
	return err != nil && errors.Is(err, fs.ErrNotExist)
}
