package gitindex

import (
	"strings"

	"github.com/example/worktreed/internal/pathkey"
)

// RepoRelativePath translates entryPath (relative to the worktree root)
// into the path a Repository's Statuses map keys on (relative to wd's own
// work directory), per spec §3's InProject/AboveProject distinction.
func RepoRelativePath(wd WorkDirectory, entryPath pathkey.Key) pathkey.Key {
	if wd.InProject {
		base := string(wd.RelPath)
		if base == "" {
			return entryPath
		}
		rel := strings.TrimPrefix(string(entryPath), base)
		rel = strings.TrimPrefix(rel, "/")
		return pathkey.Key(rel)
	}
	if wd.LocationInRepo == "" {
		return entryPath
	}
	if entryPath == "" {
		return wd.LocationInRepo
	}
	return pathkey.Join(wd.LocationInRepo, string(entryPath))
}

// GitSummary aggregates path statuses under a directory, stopping at
// nested-repository boundaries (spec §4.5, §8 scenario 5: a summary for
// x/ must not count paths that live inside x/y/.git's own repository).
type GitSummary struct {
	Modified   int
	Added      int
	Deleted    int
	Renamed    int
	Untracked  int
	Conflicted int
	Total      int
}

// SummaryBuilder accumulates PathStatus values one at a time. Callers (in
// package worktreed) walk the ordered entry store under a directory,
// resolving each path's enclosing repository via Index.EnclosingRepository
// and skipping any path whose repository differs from the directory's own, so
// nested repositories shadow rather than contribute to an outer summary.
type SummaryBuilder struct {
	sum GitSummary
}

// Add folds one path's status into the running summary.
func (b *SummaryBuilder) Add(ps PathStatus) {
	b.sum.Total++
	switch ps.Kind {
	case KindUntracked:
		b.sum.Untracked++
	case KindUnmerged:
		b.sum.Conflicted++
	case KindIgnoredByGit:
		// not counted in any bucket; present only for completeness checks
	case KindTracked:
		addStatusCode(&b.sum, ps.Tracked.Worktree)
		if ps.Tracked.Worktree == Unmodified {
			addStatusCode(&b.sum, ps.Tracked.Index)
		}
	}
}

func addStatusCode(sum *GitSummary, code StatusCode) {
	switch code {
	case Modified:
		sum.Modified++
	case Added:
		sum.Added++
	case Deleted:
		sum.Deleted++
	case Renamed:
		sum.Renamed++
	}
}

// Build returns the accumulated summary.
func (b *SummaryBuilder) Build() GitSummary { return b.sum }
