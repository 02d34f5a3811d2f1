package scan

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/example/worktreed/internal/fsadapter"
	"github.com/example/worktreed/internal/pathkey"
	"github.com/example/worktreed/internal/store"
)

// HandleEvent applies one filesystem event to the store (spec §4.4.3): it
// excludes paths the glob policy hides, stats the changed path, detects a
// kind or identity change (treated as a remove followed by an add), keeps
// a changed directory's children in sync by re-reading and diffing it,
// re-evaluates the ignore stack when a .gitignore itself changes, and
// delegates anything under a repository's .git directory to the git
// index instead of the entry store.
func (e *Engine) HandleEvent(ev fsadapter.Event) ChangeSet {
	rel, err := filepath.Rel(e.root, ev.Path)
	if err != nil || rel == "." || rel == "" {
		return e.refreshDir("", e.root)
	}
	key := pathkey.New(rel)

	if dotGitRoot, ok := dotGitAnchor(key); ok {
		e.handleGitEvent(dotGitRoot, key)
		return ChangeSet{}
	}

	if pathkey.Name(key) == ".gitignore" {
		return e.handleGitignoreChange(key)
	}

	meta, statErr := e.fs.Metadata(ev.Path, false)
	if statErr != nil {
		if fsadapter.IsNotExist(statErr) {
			return e.removePath(key)
		}
		return ChangeSet{}
	}

	e.mu.Lock()
	policy := e.policy
	existing, had := e.store.Get(key)
	e.mu.Unlock()

	decision := policy.Evaluate(key, meta.IsDir)
	if !decision.Visible {
		if had {
			return e.removePath(key)
		}
		return ChangeSet{}
	}

	if had && kindOrIdentityChanged(existing, meta) {
		var cs ChangeSet
		cs.merge(e.removePath(key))
		cs.merge(e.addOrRefreshPath(key, ev.Path, meta, had))
		return cs
	}
	return e.addOrRefreshPath(key, ev.Path, meta, had)
}

// kindOrIdentityChanged reports whether meta describes a different
// filesystem object than existing does: a file replaced by a directory or
// vice versa, or (when inode numbers are available) the same path now
// pointing at different underlying storage, as editors do with an
// atomic-rename save.
func kindOrIdentityChanged(existing store.Entry, meta fsadapter.Metadata) bool {
	wasDir := existing.Kind == store.Dir || existing.Kind == store.UnloadedDir
	if wasDir != meta.IsDir {
		return true
	}
	if !meta.IsDir && existing.HasInode && meta.HasInode && existing.Inode != meta.Inode {
		return true
	}
	return false
}

// addOrRefreshPath (re)classifies a single path that an event reported as
// present, and if it is a directory, re-reads its subtree, removing any
// entry under it that is no longer on disk.
func (e *Engine) addOrRefreshPath(key pathkey.Key, absPath string, meta fsadapter.Metadata, hadExisting bool) ChangeSet {
	parentKey, _ := pathkey.Parent(key)
	parentStack := e.ensureStack(parentKey)

	e.mu.Lock()
	policy := e.policy
	e.mu.Unlock()
	decision := policy.Evaluate(key, meta.IsDir)

	de := fsadapter.DirEntry{Name: pathkey.Name(key), IsDir: meta.IsDir, IsSymlink: meta.IsSymlink}
	entry, recurseAbs, recurseAncestry, shouldRecurse, err := e.classify(key, absPath, de, parentStack, decision, map[string]struct{}{})
	if err != nil {
		return ChangeSet{}
	}

	e.mu.Lock()
	e.store.Put(entry)
	e.mu.Unlock()

	var cs ChangeSet
	kind := Created
	if hadExisting {
		kind = Updated
	}
	cs.addUpsert(entry.Path, kind)

	if shouldRecurse {
		var before []pathkey.Key
		e.mu.Lock()
		e.store.Subtree(key, func(en store.Entry) bool {
			if en.Path != key {
				before = append(before, en.Path)
			}
			return true
		})
		e.mu.Unlock()
		childCS, touched, err := e.walkAndTrack(context.Background(), key, recurseAbs, recurseAncestry)
		if err == nil {
			cs.merge(childCS)
			e.mu.Lock()
			for _, p := range before {
				if _, ok := touched[p]; !ok {
					e.store.Remove(p)
					cs.addRemoval(p)
				}
			}
			e.mu.Unlock()
		}
	}
	return cs
}

// refreshDir re-reads directory dir (absDir its absolute path) and its
// full subtree, upserting every entry still present and removing any
// entry that has disappeared, mirroring the teacher's
// applyPendingIncremental "rescan subtree, then drop what wasn't
// touched" shape but generalized into a ChangeSet.
func (e *Engine) refreshDir(dir pathkey.Key, absDir string) ChangeSet {
	e.mu.Lock()
	var before []pathkey.Key
	e.store.Subtree(dir, func(en store.Entry) bool {
		if en.Path != dir {
			before = append(before, en.Path)
		}
		return true
	})
	e.mu.Unlock()

	cs, touched, err := e.walkAndTrack(context.Background(), dir, absDir, map[string]struct{}{})
	if err != nil {
		return cs
	}

	e.mu.Lock()
	for _, p := range before {
		if _, ok := touched[p]; !ok {
			e.store.Remove(p)
			cs.addRemoval(p)
		}
	}
	e.mu.Unlock()
	return cs
}

// removePath deletes key (and, if it is a directory, its whole subtree)
// from the store.
func (e *Engine) removePath(key pathkey.Key) ChangeSet {
	var cs ChangeSet
	e.mu.Lock()
	entry, had := e.store.Get(key)
	if !had {
		e.mu.Unlock()
		return cs
	}
	if entry.Kind == store.Dir || entry.Kind == store.UnloadedDir || entry.Kind == store.PendingDir {
		var removed []pathkey.Key
		e.store.Subtree(key, func(en store.Entry) bool {
			removed = append(removed, en.Path)
			return true
		})
		e.store.RemoveSubtree(key)
		for _, p := range removed {
			cs.addRemoval(p)
		}
	} else {
		e.store.Remove(key)
		cs.addRemoval(key)
	}
	e.mu.Unlock()
	e.invalidateStack(key)
	return cs
}

// handleGitignoreChange re-evaluates the ignore stack rooted at the
// .gitignore's own directory and refreshes that directory's subtree,
// since newly-(un)ignored descendants need to be added to or removed from
// the store.
func (e *Engine) handleGitignoreChange(gitignoreKey pathkey.Key) ChangeSet {
	dir, _ := pathkey.Parent(gitignoreKey)
	e.invalidateStack(dir)
	absDir := e.root
	if dir != "" {
		absDir = filepath.Join(e.root, filepath.FromSlash(string(dir)))
	}
	return e.refreshDir(dir, absDir)
}

// dotGitAnchor reports whether key names a path inside some directory's
// ".git" entry, returning the worktree-relative directory the repository
// is anchored at.
func dotGitAnchor(key pathkey.Key) (pathkey.Key, bool) {
	parts := pathkey.Components(key)
	for i, p := range parts {
		if p == ".git" {
			return pathkey.New(strings.Join(parts[:i], "/")), true
		}
	}
	return "", false
}

// handleGitEvent refreshes the repository anchored at anchor in response
// to a change under its .git directory (spec §4.5: "refreshed on events
// under .git"), discovering it for the first time if this is the first
// event observed for a newly-initialized repository, or dropping it if
// the .git directory itself was removed.
func (e *Engine) handleGitEvent(anchor pathkey.Key, changedKey pathkey.Key) {
	if e.git == nil {
		return
	}
	absAnchor := e.root
	if anchor != "" {
		absAnchor = filepath.Join(e.root, filepath.FromSlash(string(anchor)))
	}
	if _, err := e.fs.Metadata(filepath.Join(absAnchor, ".git"), false); err != nil {
		if fsadapter.IsNotExist(err) {
			e.git.Remove(anchor)
		}
		return
	}
	repo, _, ok := e.git.EnclosingRepository(changedKey)
	if !ok || repo == nil || !repo.WorkDir.InProject || repo.WorkDir.RelPath != anchor {
		_, _ = e.git.DiscoverAt(anchor)
		return
	}

	e.mu.Lock()
	now := e.clock.Now()
	last, seen := e.lastGitRefresh[anchor]
	due := !seen || now.Sub(last) >= minGitRefreshInterval
	if due {
		e.lastGitRefresh[anchor] = now
	}
	e.mu.Unlock()
	if !due {
		return
	}
	_ = repo.Refresh()
}
