package scan

import "github.com/example/worktreed/internal/pathkey"

// ChangeSet is what one scan cycle or user operation produced: the entries
// that were created or replaced, and the paths that were removed (spec
// §4.6's update/delta protocol is built on top of these by package
// snapshot).
type ChangeSet struct {
	Upserts []EntryChange
	Removed []pathkey.Key
}

// EntryChange pairs a store entry with the event that produced it, letting
// subscribers distinguish "this file was just created" from "its mtime
// changed" without re-diffing the store themselves.
type EntryChange struct {
	Path pathkey.Key
	Kind ChangeKind
}

// ChangeKind classifies why an entry appears in a ChangeSet.
type ChangeKind int

const (
	Created ChangeKind = iota
	Updated
	Moved
)

func (cs *ChangeSet) addUpsert(p pathkey.Key, kind ChangeKind) {
	cs.Upserts = append(cs.Upserts, EntryChange{Path: p, Kind: kind})
}

func (cs *ChangeSet) addRemoval(p pathkey.Key) {
	cs.Removed = append(cs.Removed, p)
}

func (cs *ChangeSet) merge(other ChangeSet) {
	cs.Upserts = append(cs.Upserts, other.Upserts...)
	cs.Removed = append(cs.Removed, other.Removed...)
}
