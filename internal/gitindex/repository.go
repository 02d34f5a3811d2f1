// Package gitindex implements the repository index (spec §4.5, §3
// "Repository record"): discovering the git repository enclosing a
// subtree, keeping per-path status fresh, and aggregating GitSummary
// values that respect nested-repository boundaries.
//
// Status computation and HEAD/discovery are delegated to
// github.com/go-git/go-git/v5, the pack's git library; the StatusCode /
// FileStatus shape is modeled directly on go-git's own status.go (Status
// map[string]*FileStatus, StatusCode enum) rather than re-deriving porcelain
// codes by hand.
package gitindex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/example/worktreed/internal/pathkey"
)

// StatusCode mirrors go-git's status.go StatusCode, the vocabulary spec §3
// calls index_status/worktree_status.
type StatusCode int8

const (
	Unmodified StatusCode = iota
	Untracked
	Modified
	Added
	Deleted
	Renamed
	Copied
	UpdatedButUnmerged
)

// FileStatus is a tracked path's combined index and worktree status (spec
// §3 Tracked{index_status, worktree_status}).
type FileStatus struct {
	Index    StatusCode
	Worktree StatusCode
}

// Kind distinguishes the tagged status variants spec §3 defines for a
// repo-relative path.
type Kind int

const (
	KindUntracked Kind = iota
	KindIgnoredByGit
	KindTracked
	KindUnmerged
)

// PathStatus is one entry in Repository.Statuses (spec §3).
type PathStatus struct {
	Kind     Kind
	Tracked  FileStatus // valid when Kind == KindTracked
	FirstHead  string   // valid when Kind == KindUnmerged
	SecondHead string
}

// WorkDirectory is where a repository's working copy lives relative to the
// worktree (spec §3): either inside the worktree, or the worktree is a
// subfolder of a larger repository rooted above it.
type WorkDirectory struct {
	InProject        bool
	RelPath          pathkey.Key // valid when InProject: where the .git lives, relative to worktree root
	AbsPath          string      // valid when !InProject: the repo's absolute root
	LocationInRepo   pathkey.Key // valid when !InProject: worktree root's path relative to AbsPath
}

// Repository is one entry in the Index (spec §3 "Repository record").
type Repository struct {
	WorkDir             WorkDirectory
	Statuses            map[pathkey.Key]PathStatus
	CurrentMergeConflicts map[pathkey.Key]struct{}
	Degraded            bool // true after a git adapter failure; Statuses is then stale/empty

	repo     *git.Repository
	worktree *git.Worktree
	gitDir   string // absolute path to the .git directory, for raw MERGE_HEAD reads
}

// HeadFingerprint returns the current HEAD commit hash, or "" if
// unavailable (e.g. an unborn branch).
func (r *Repository) HeadFingerprint() string {
	if r == nil || r.repo == nil {
		return ""
	}
	ref, err := r.repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

// Index maps worktree subtrees to their enclosing repository (spec §4.5).
type Index struct {
	worktreeRootAbs string
	// byAnchor holds one Repository per discovered .git, keyed by the
	// worktree-relative directory it was discovered at ("" for the root).
	byAnchor map[pathkey.Key]*Repository
	// aboveRoot holds the repository found by searching upward from the
	// worktree root, when that repository's root lies strictly above the
	// worktree root (spec §3 AboveProject).
	aboveRoot *Repository
}

// New returns an Index for a worktree rooted at worktreeRootAbs (an
// absolute path).
func New(worktreeRootAbs string) *Index {
	return &Index{
		worktreeRootAbs: worktreeRootAbs,
		byAnchor:        make(map[pathkey.Key]*Repository),
	}
}

// DiscoverAt opens the repository whose .git lives directly at
// worktree-relative directory dir (dir == "" means the worktree root
// itself) and registers it as an InProject repository, replacing any
// previous record at the same anchor. It returns the new Repository.
func (ix *Index) DiscoverAt(dir pathkey.Key) (*Repository, error) {
	abs := filepath.Join(ix.worktreeRootAbs, filepath.FromSlash(string(dir)))
	repo, err := git.PlainOpen(abs)
	if err != nil {
		return nil, fmt.Errorf("gitindex: open repository at %q: %w", abs, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("gitindex: repository at %q has no worktree: %w", abs, err)
	}
	r := &Repository{
		WorkDir: WorkDirectory{InProject: true, RelPath: dir},
		repo:    repo,
		worktree: wt,
		gitDir:  filepath.Join(abs, ".git"),
	}
	ix.byAnchor[dir] = r
	return r, r.refresh()
}

// DiscoverAbove searches upward from the worktree root for an enclosing
// repository whose root lies strictly above it (spec §3 AboveProject). It
// is a no-op (clearing any previous AboveProject record) if no such
// repository exists, or if the nearest repository's root coincides with
// the worktree root itself (that case belongs to DiscoverAt("")).
func (ix *Index) DiscoverAbove() (*Repository, error) {
	ix.aboveRoot = nil
	repo, err := git.PlainOpenWithOptions(ix.worktreeRootAbs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, nil
		}
		return nil, fmt.Errorf("gitindex: detect enclosing repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("gitindex: enclosing repository has no worktree: %w", err)
	}
	repoRoot := wt.Filesystem.Root()
	if samePath(repoRoot, ix.worktreeRootAbs) {
		// The repository root IS the worktree root; that's an InProject
		// repository, not AboveProject.
		return nil, nil
	}
	loc, err := filepath.Rel(repoRoot, ix.worktreeRootAbs)
	if err != nil {
		return nil, fmt.Errorf("gitindex: compute location in repo: %w", err)
	}
	r := &Repository{
		WorkDir: WorkDirectory{
			InProject:      false,
			AbsPath:        repoRoot,
			LocationInRepo: pathkey.New(loc),
		},
		repo:     repo,
		worktree: wt,
		gitDir:   filepath.Join(repoRoot, ".git"),
	}
	ix.aboveRoot = r
	return r, r.refresh()
}

// Remove drops the repository anchored at dir (spec: "destroyed when that
// .git disappears").
func (ix *Index) Remove(dir pathkey.Key) {
	delete(ix.byAnchor, dir)
}

// Anchors returns the worktree-relative directories of every InProject
// repository currently discovered, for callers that need to enumerate
// repositories (e.g. to publish UpdatedGitRepositories events).
func (ix *Index) Anchors() []pathkey.Key {
	out := make([]pathkey.Key, 0, len(ix.byAnchor))
	for a := range ix.byAnchor {
		out = append(out, a)
	}
	return out
}

// Clone returns an independent copy of ix: mutating either Index's map of
// repositories (discovering or removing an anchor) does not affect the
// other. Each Repository itself is also snapshotted (see Repository.clone)
// so that a later Refresh of the live index does not mutate state a
// snapshot reader is looking at, mirroring store.Store.Clone's "rebuild
// rather than share the mutable gods tree" strategy (see DESIGN.md).
func (ix *Index) Clone() *Index {
	out := &Index{
		worktreeRootAbs: ix.worktreeRootAbs,
		byAnchor:        make(map[pathkey.Key]*Repository, len(ix.byAnchor)),
	}
	for a, r := range ix.byAnchor {
		out.byAnchor[a] = r.clone()
	}
	if ix.aboveRoot != nil {
		out.aboveRoot = ix.aboveRoot.clone()
	}
	return out
}

// clone copies r's observable state. The underlying *git.Repository and
// *git.Worktree handles are shared (go-git's own types are safe to read
// concurrently once opened; they are not what Refresh mutates in place).
func (r *Repository) clone() *Repository {
	out := &Repository{
		WorkDir:  r.WorkDir,
		Degraded: r.Degraded,
		repo:     r.repo,
		worktree: r.worktree,
		gitDir:   r.gitDir,
	}
	if r.Statuses != nil {
		out.Statuses = make(map[pathkey.Key]PathStatus, len(r.Statuses))
		for k, v := range r.Statuses {
			out.Statuses[k] = v
		}
	}
	if r.CurrentMergeConflicts != nil {
		out.CurrentMergeConflicts = make(map[pathkey.Key]struct{}, len(r.CurrentMergeConflicts))
		for k := range r.CurrentMergeConflicts {
			out.CurrentMergeConflicts[k] = struct{}{}
		}
	}
	return out
}

// AboveRoot returns the AboveProject repository discovered by
// DiscoverAbove, if any (spec §3 AboveProject: the worktree root is a
// subfolder of a larger repository rooted above it).
func (ix *Index) AboveRoot() (*Repository, bool) {
	return ix.aboveRoot, ix.aboveRoot != nil
}

// EnclosingRepository returns the nearest repository whose work directory
// is an ancestor of path, shadowing outer repositories with inner ones
// (spec §4.5: "nested repositories correctly shadow outer ones"). It also
// returns the anchor directory (the InProject repo's RelPath, or "" for an
// AboveProject repo) so callers can test "same repository" by anchor
// identity when respecting repo boundaries in summaries.
func (ix *Index) EnclosingRepository(path pathkey.Key) (*Repository, pathkey.Key, bool) {
	var bestAnchor pathkey.Key
	var best *Repository
	haveBest := false
	for anchor, r := range ix.byAnchor {
		if !pathkey.HasPrefix(path, anchor) {
			continue
		}
		if !haveBest || pathkey.Depth(anchor) > pathkey.Depth(bestAnchor) {
			bestAnchor, best, haveBest = anchor, r, true
		}
	}
	if haveBest {
		return best, bestAnchor, true
	}
	if ix.aboveRoot != nil {
		return ix.aboveRoot, "", true
	}
	return nil, "", false
}

// Refresh re-reads HEAD/index/worktree status for repo. Call it when an
// event arrives under repo's .git directory, or when the working copy
// changes (spec §4.5 "refreshed on events under .git or when the working
// copy changes").
func (r *Repository) Refresh() error { return r.refresh() }

func (r *Repository) refresh() error {
	statuses, err := r.worktree.Status()
	if err != nil {
		r.Degraded = true
		r.Statuses = nil
		r.CurrentMergeConflicts = nil
		return fmt.Errorf("gitindex: status: %w", err)
	}
	r.Degraded = false
	r.Statuses = make(map[pathkey.Key]PathStatus, len(statuses))
	r.CurrentMergeConflicts = make(map[pathkey.Key]struct{})
	mergeHeads := r.readMergeHeads()
	for p, fs := range statuses {
		key := pathkey.New(p)
		ps := translateFileStatus(fs, mergeHeads)
		r.Statuses[key] = ps
		if ps.Kind == KindUnmerged {
			r.CurrentMergeConflicts[key] = struct{}{}
		}
	}
	return nil
}

func translateFileStatus(fs *git.FileStatus, mergeHeads [2]string) PathStatus {
	if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
		return PathStatus{Kind: KindUntracked}
	}
	if fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged {
		return PathStatus{Kind: KindUnmerged, FirstHead: mergeHeads[0], SecondHead: mergeHeads[1]}
	}
	// go-git's codes are porcelain letters (' ', 'M', 'A', ...), not this
	// package's enum values, so they are translated rather than cast.
	codes := map[git.StatusCode]StatusCode{
		git.Unmodified: Unmodified, git.Untracked: Untracked, git.Modified: Modified,
		git.Added: Added, git.Deleted: Deleted, git.Renamed: Renamed,
		git.Copied: Copied, git.UpdatedButUnmerged: UpdatedButUnmerged,
	}
	return PathStatus{
		Kind: KindTracked,
		Tracked: FileStatus{
			Index:    codes[fs.Staging],
			Worktree: codes[fs.Worktree],
		},
	}
}

// readMergeHeads best-effort reads HEAD and .git/MERGE_HEAD for unmerged
// path reporting (spec §3 Unmerged{first_head, second_head}); go-git has
// no porcelain accessor for the ephemeral MERGE_HEAD file, so it is read
// directly, the way maruel-pre-commit-go's scm package shells out to read
// repository-specific state go-git/the exec git CLI don't expose uniformly.
func (r *Repository) readMergeHeads() [2]string {
	var heads [2]string
	if ref, err := r.repo.Head(); err == nil {
		heads[0] = ref.Hash().String()
	}
	data, err := os.ReadFile(filepath.Join(r.gitDir, "MERGE_HEAD"))
	if err != nil {
		return heads
	}
	h := strings.TrimSpace(string(data))
	if plumbing.IsHash(h) {
		heads[1] = h
	}
	return heads
}

func samePath(a, b string) bool {
	ca, err1 := filepath.Abs(a)
	cb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return filepath.Clean(ca) == filepath.Clean(cb)
}
