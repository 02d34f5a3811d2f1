package scan

import (
	"path/filepath"

	"github.com/example/worktreed/internal/fsadapter"
	"github.com/example/worktreed/internal/globpolicy"
	"github.com/example/worktreed/internal/ignore"
	"github.com/example/worktreed/internal/pathkey"
	"github.com/example/worktreed/internal/store"
)

// idFor returns the id an entry at key should carry: the id already on
// record for that path (an mtime bump, or a renamed-in entry that
// reapplyRenamedIDs will correct afterwards), or a freshly allocated one
// for a path observed for the first time (spec §3 "id ... preserved
// across renames/mtime bumps").
func (e *Engine) idFor(key pathkey.Key) uint64 {
	e.mu.Lock()
	existing, ok := e.store.Get(key)
	e.mu.Unlock()
	if ok {
		return existing.ID
	}
	return e.ids.Next()
}

// classify decides the store.Entry for one directory child, and whether
// (and where) to recurse. It returns the absolute path to recurse into
// (only meaningful when shouldRecurse is true, which differs from absPath
// for a followed directory symlink) and the ancestry set the recursive
// call should use.
func (e *Engine) classify(
	key pathkey.Key,
	absPath string,
	de fsadapter.DirEntry,
	stack *ignore.Stack,
	decision globpolicy.Decision,
	ancestry map[string]struct{},
) (entry store.Entry, recurseAbs string, recurseAncestry map[string]struct{}, shouldRecurse bool, err error) {
	entry = store.Entry{
		Path:             key,
		IsAlwaysIncluded: decision.AlwaysIncluded,
		IsPrivate:        decision.Private,
	}

	if de.IsSymlink {
		return e.classifySymlink(key, absPath, stack, decision, ancestry, entry)
	}

	ignoredHere := stack.IsIgnored(key, de.IsDir) && !decision.AlwaysIncluded
	entry.IsIgnored = ignoredHere

	if !de.IsDir {
		meta, merr := e.fs.Metadata(absPath, false)
		if merr != nil {
			return store.Entry{}, "", nil, false, merr
		}
		entry.Kind = store.File
		entry.ID = e.idFor(key)
		entry.Size = meta.Size
		entry.MTime = meta.ModTime.UnixNano()
		entry.Inode = meta.Inode
		entry.HasInode = meta.HasInode
		return entry, "", nil, false, nil
	}

	meta, merr := e.fs.Metadata(absPath, false)
	if merr != nil {
		return store.Entry{}, "", nil, false, merr
	}
	entry.MTime = meta.ModTime.UnixNano()

	if ignoredHere {
		entry.Kind = store.UnloadedDir
		entry.ID = e.idFor(key)
		return entry, "", nil, false, nil
	}

	identity := dirIdentity(absPath, meta)
	if _, seen := ancestry[identity]; seen {
		// A real (non-symlink) directory can't normally revisit an ancestor
		// identity, but bind mounts and similar tricks can; stop rather than
		// loop forever.
		entry.Kind = store.UnloadedDir
		entry.ID = e.idFor(key)
		return entry, "", nil, false, nil
	}

	entry.Kind = store.Dir
	entry.ID = e.idFor(key)
	next := cloneAncestry(ancestry)
	next[identity] = struct{}{}
	return entry, absPath, next, true, nil
}

func (e *Engine) classifySymlink(
	key pathkey.Key,
	absPath string,
	stack *ignore.Stack,
	decision globpolicy.Decision,
	ancestry map[string]struct{},
	entry store.Entry,
) (store.Entry, string, map[string]struct{}, bool, error) {
	entry.IsSymlink = true

	target, err := e.fs.ReadLink(absPath)
	if err != nil {
		return store.Entry{}, "", nil, false, err
	}
	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(absPath), target)
	}
	resolved = filepath.Clean(resolved)

	if !withinRoot(resolved, e.root) {
		entry.IsExternal = true
		meta, merr := e.fs.Metadata(absPath, false)
		if merr != nil {
			return store.Entry{}, "", nil, false, merr
		}
		entry.Kind = store.File
		entry.ID = e.idFor(key)
		entry.Size = meta.Size
		entry.MTime = meta.ModTime.UnixNano()
		return entry, "", nil, false, nil
	}

	targetMeta, err := e.fs.Metadata(absPath, true)
	if err != nil {
		// Broken symlink (dangling target): record it as a leaf using its
		// own lstat metadata rather than failing the scan.
		lmeta, lerr := e.fs.Metadata(absPath, false)
		if lerr != nil {
			return store.Entry{}, "", nil, false, lerr
		}
		entry.Kind = store.File
		entry.ID = e.idFor(key)
		entry.MTime = lmeta.ModTime.UnixNano()
		return entry, "", nil, false, nil
	}

	if !targetMeta.IsDir {
		entry.Kind = store.File
		entry.ID = e.idFor(key)
		entry.Size = targetMeta.Size
		entry.MTime = targetMeta.ModTime.UnixNano()
		entry.Inode = targetMeta.Inode
		entry.HasInode = targetMeta.HasInode
		return entry, "", nil, false, nil
	}

	ignoredHere := stack.IsIgnored(key, true) && !decision.AlwaysIncluded
	entry.IsIgnored = ignoredHere
	entry.MTime = targetMeta.ModTime.UnixNano()
	if ignoredHere {
		entry.Kind = store.UnloadedDir
		entry.ID = e.idFor(key)
		return entry, "", nil, false, nil
	}

	identity := dirIdentity(resolved, targetMeta)
	if _, seen := ancestry[identity]; seen {
		entry.Kind = store.UnloadedDir
		entry.ID = e.idFor(key)
		return entry, "", nil, false, nil
	}

	entry.Kind = store.Dir
	entry.ID = e.idFor(key)
	next := cloneAncestry(ancestry)
	next[identity] = struct{}{}
	return entry, resolved, next, true, nil
}
