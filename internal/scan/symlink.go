package scan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/example/worktreed/internal/fsadapter"
)

// dirIdentity returns a string that uniquely names a directory's real
// location, for symlink-cycle detection (spec §4.4.1 "symlink-cycle
// safety"). When the filesystem exposes an inode number it is used
// (cheapest, survives renames); otherwise the cleaned absolute path is
// used as a fallback identity.
func dirIdentity(absPath string, meta fsadapter.Metadata) string {
	if meta.HasInode {
		return fmt.Sprintf("inode:%d", meta.Inode)
	}
	return "path:" + filepath.Clean(absPath)
}

// withinRoot reports whether resolved (an absolute, cleaned path) lies at
// or under root. A symlink resolving outside the worktree root is
// classified external (spec §3 is_external) and not traversed.
func withinRoot(resolved, root string) bool {
	resolved = filepath.Clean(resolved)
	root = filepath.Clean(root)
	if resolved == root {
		return true
	}
	return strings.HasPrefix(resolved, root+string(filepath.Separator))
}

// cloneAncestry copies an ancestry set so a child goroutine can extend it
// without mutating the set siblings still hold (each descent branch needs
// its own chain; a symlink loop back to a sibling's target is not a cycle).
func cloneAncestry(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in)+1)
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
