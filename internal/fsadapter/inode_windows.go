//go:build windows

package fsadapter

import "os"

// Windows file info does not expose an inode number through os.FileInfo
// without reopening the file for a handle-based query; detecting a
// deletion+recreation of the same inode degenerates to mtime/size
// comparison on this platform.
func inodeOf(info os.FileInfo) (uint64, bool) {
	return 0, false
}
