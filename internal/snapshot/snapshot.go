// Package snapshot implements the worktree's versioned, cloneable snapshot
// and append-only update log (spec §4.6, §3 "Snapshot"/"Update"): a
// structural-sharing-as-cheaply-as-gods-allows view of the entry store and
// repository index at a given scan-id, and the deltas a remote observer
// replays to catch up from any earlier snapshot.
//
// It generalizes the teacher's Indexer.Snapshot() (internal/index/model.go),
// which copies a flat []Entry slice wholesale on every read; here a
// Snapshot instead shares one store.Store/gitindex.Index clone across every
// subscriber of a scan cycle, and the cycle's changes are recorded once as
// an Update rather than recomputed per reader.
package snapshot

import (
	"fmt"

	"github.com/example/worktreed/internal/gitindex"
	"github.com/example/worktreed/internal/pathkey"
	"github.com/example/worktreed/internal/scan"
	"github.com/example/worktreed/internal/store"
)

// PathChange classifies why a path appears in an Update (spec §3).
type PathChange int

const (
	// Added: the path did not exist in the prior snapshot.
	Added PathChange = iota
	// Removed: the path existed and is now gone (and, for a directory,
	// so is its subtree).
	Removed
	// Updated: the path existed and some attribute of it changed.
	Updated
	// AddedOrUpdated: the writer did not track whether the path is new,
	// only that it is now present with this content. Nothing in this module
	// emits it: FromChangeSet maps every upsert to Added, Updated or Loaded,
	// and a settings rescan is diffed into Created/Updated upserts.
	AddedOrUpdated
	// Loaded: the path became visible because an ancestor UnloadedDir was
	// lazily expanded, not because anything changed on disk (spec §4.4.2).
	Loaded
)

func (c PathChange) String() string {
	switch c {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Updated:
		return "updated"
	case AddedOrUpdated:
		return "added-or-updated"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// EntryChange is one path's change within an Update (spec §3).
type EntryChange struct {
	Path   pathkey.Key
	ID     uint64
	Change PathChange
}

// RepoChange reports that the repository anchored at Anchor was
// (re)discovered or dropped, for UpdatedGitRepositories subscribers.
type RepoChange struct {
	Anchor  pathkey.Key
	Removed bool
}

// Update is one scan cycle's delta: every entry that was added, removed,
// updated, or loaded, plus any repository index changes, keyed by the
// scan-id the cycle produced (spec §3 "Update (delta)").
type Update struct {
	ScanID  uint64
	Entries []EntryChange
	Repos   []RepoChange
}

func (u Update) isEmpty() bool {
	return len(u.Entries) == 0 && len(u.Repos) == 0
}

// FromChangeSet builds the EntryChange list an Update carries from a
// scan.ChangeSet, looking up each changed path's current id in store (the
// post-change store). If loaded is true, Created/Updated changes are
// reported as Loaded instead (spec §4.4.2: "Loaded distinguishes 'now
// visible due to expansion' from 'newly created on disk'").
func FromChangeSet(cs scan.ChangeSet, s *store.Store, loaded bool) []EntryChange {
	out := make([]EntryChange, 0, len(cs.Upserts)+len(cs.Removed))
	for _, u := range cs.Upserts {
		e, ok := s.Get(u.Path)
		var id uint64
		if ok {
			id = e.ID
		}
		change := Updated
		if u.Kind == scan.Created {
			change = Added
		}
		if loaded {
			change = Loaded
		}
		out = append(out, EntryChange{Path: u.Path, ID: id, Change: change})
	}
	for _, p := range cs.Removed {
		out = append(out, EntryChange{Path: p, Change: Removed})
	}
	return out
}

// Snapshot is an immutable view of the worktree at ScanID (spec §3). The
// zero value is not valid; use New.
type Snapshot struct {
	ScanID uint64
	Store  *store.Store
	Git    *gitindex.Index // nil when git integration is disabled
}

// New wraps the given store/index as a Snapshot at scanID. Callers publish
// a Snapshot by cloning the live store/index once per completed cycle
// (store.Store.Clone / gitindex.Index.Clone) and handing the same clone to
// every subscriber of that cycle — see worktree.Handle.
func New(scanID uint64, s *store.Store, git *gitindex.Index) Snapshot {
	return Snapshot{ScanID: scanID, Store: s, Git: git}
}

// Log is the append-only sequence of Updates a Handle publishes, in
// ascending ScanID order, from which Since returns the updates a remote
// observer still has to replay (spec §4.6).
type Log struct {
	updates []Update
}

// Append records u. u.ScanID must be strictly greater than every
// previously appended update's ScanID; Append panics otherwise, since that
// would indicate the writer itself produced out-of-order scan-ids, a
// programmer error rather than a caller mistake.
func (l *Log) Append(u Update) {
	if n := len(l.updates); n > 0 && u.ScanID <= l.updates[n-1].ScanID {
		panic(fmt.Sprintf("snapshot: out-of-order append: scan_id %d after %d", u.ScanID, l.updates[n-1].ScanID))
	}
	if u.isEmpty() {
		return
	}
	l.updates = append(l.updates, u)
}

// Since returns every recorded Update whose ScanID is strictly greater
// than fromScanID, in ascending order — the sequence a remote observer
// starting from a snapshot at fromScanID must replay to catch up (spec
// §4.6, §8 invariant).
func (l *Log) Since(fromScanID uint64) []Update {
	// updates is small and append-only in practice (bounded by how long a
	// subscriber has been disconnected); a linear scan from the front is
	// simpler than maintaining a parallel index and is what matters here.
	var out []Update
	for _, u := range l.updates {
		if u.ScanID > fromScanID {
			out = append(out, u)
		}
	}
	return out
}

// Latest returns the scan-id of the most recently appended update, or 0 if
// none have been appended yet.
func (l *Log) Latest() uint64 {
	if len(l.updates) == 0 {
		return 0
	}
	return l.updates[len(l.updates)-1].ScanID
}

// ErrOutOfOrder is returned by ApplyRemoteUpdate when update.ScanID does
// not strictly follow the snapshot's current ScanID (spec §7: "Invariant
// violation during delta apply ... fail the apply call; the cloner must
// re-fetch a full snapshot").
var ErrOutOfOrder = fmt.Errorf("snapshot: update scan_id is not the snapshot's direct successor")

// ApplyRemoteUpdate advances snap by one step using update, mutating
// snap.Store in place and returning the new ScanID. Applying an update
// whose ScanID is not strictly greater than snap.ScanID is a documented
// no-op (spec §4.6); applying one that skips ahead (the caller missed an
// intermediate update) fails with ErrOutOfOrder rather than silently
// producing a store that doesn't match any real cycle.
//
// fetchEntry looks up the authoritative Entry for a changed path (e.g. from
// the writer's current live store, or from a side-channel the RPC layer
// populates) — ApplyRemoteUpdate does not know how to reconstruct a full
// Entry from just (path, id, PathChange).
//
// includePolicy, when non-nil, is consulted for every Added/Updated/Loaded
// path; a path it rejects is skipped rather than inserted, letting a
// remote observer apply the same delta stream while honoring its own
// narrower view (e.g. a partial checkout) without the writer needing to
// know about it.
func ApplyRemoteUpdate(snap *Snapshot, update Update, fetchEntry func(pathkey.Key) (store.Entry, bool), includePolicy func(pathkey.Key) bool) error {
	if update.ScanID <= snap.ScanID {
		return nil
	}
	if update.ScanID != snap.ScanID+1 {
		return fmt.Errorf("%w: snapshot at %d, update is %d", ErrOutOfOrder, snap.ScanID, update.ScanID)
	}
	for _, ec := range update.Entries {
		switch ec.Change {
		case Removed:
			snap.Store.RemoveSubtree(ec.Path)
		default:
			if includePolicy != nil && !includePolicy(ec.Path) {
				continue
			}
			e, ok := fetchEntry(ec.Path)
			if !ok {
				return fmt.Errorf("%w: no entry available for %q at scan_id %d", ErrOutOfOrder, ec.Path, update.ScanID)
			}
			snap.Store.Put(e)
		}
	}
	snap.ScanID = update.ScanID
	return nil
}
