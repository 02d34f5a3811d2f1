// Package settings is the configuration surface spec §6 requires an
// external settings store to expose. It is a plain struct, matching the
// teacher's internal/session.Config: zero-value-sensible, no env or flag
// binding baked in (cmd/worktreed binds flags to it explicitly, the way
// cmd/rovo-bridge/main.go does for session.Config).
package settings

// Settings holds the glob policies recognized by the worktree (spec §6).
// Changing any of these fields and calling Handle.ApplySettings rescans the
// whole tree; the rescan is not limited to the subtrees a changed pattern
// can affect.
type Settings struct {
	// FileScanExclusions: matching paths are omitted from the store
	// entirely.
	FileScanExclusions []string
	// FileScanInclusions: matching paths are always present and marked
	// is_always_included; they override gitignore for visibility but not
	// FileScanExclusions.
	FileScanInclusions []string
	// PrivateFiles: matching entries are marked is_private.
	PrivateFiles []string
}

// Equal reports whether s and other hold the same glob lists, in order.
// Handle uses this to decide whether an ApplySettings call is a no-op.
func (s Settings) Equal(other Settings) bool {
	return stringSliceEqual(s.FileScanExclusions, other.FileScanExclusions) &&
		stringSliceEqual(s.FileScanInclusions, other.FileScanInclusions) &&
		stringSliceEqual(s.PrivateFiles, other.PrivateFiles)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
