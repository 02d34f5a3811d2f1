// Package store implements the ordered Entry container keyed by path
// (spec §4.2): get/replace in O(log n), atomic subtree removal, and ordered
// range scans used both for traversal and for finding a directory's
// contiguous subtree.
//
// It is backed by github.com/emirpasic/gods's red-black tree rather than a
// plain sorted slice (the teacher's internal/index/scan.go re-sorts a whole
// []Entry on every scan) so that incremental updates don't pay an O(n log n)
// resort per cycle.
package store

import (
	"sync"

	rbt "github.com/emirpasic/gods/trees/redblacktree"

	"github.com/example/worktreed/internal/pathkey"
)

// Kind is the entry's node kind (spec §3).
type Kind int

const (
	File Kind = iota
	Dir
	UnloadedDir
	PendingDir
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Dir:
		return "dir"
	case UnloadedDir:
		return "unloaded-dir"
	case PendingDir:
		return "pending-dir"
	default:
		return "unknown"
	}
}

// Entry is one node in the worktree tree (spec §3).
type Entry struct {
	Path             pathkey.Key
	Kind             Kind
	ID               uint64
	MTime            int64 // unix nanoseconds
	Size             int64
	Inode            uint64
	HasInode         bool
	IsSymlink        bool
	IsIgnored        bool
	IsExternal       bool
	IsAlwaysIncluded bool
	IsPrivate        bool
}

func comparator(a, b interface{}) int {
	ak, bk := a.(pathkey.Key), b.(pathkey.Key)
	return pathkey.Compare(ak, bk)
}

// Store is an ordered container of Entry keyed by Path. It is not
// internally synchronized: per spec §5 it is mutated only by the owning
// scan task, and readers operate on cloned snapshots.
type Store struct {
	tree *rbt.Tree
}

// New returns an empty Store.
func New() *Store {
	return &Store{tree: rbt.NewWith(comparator)}
}

// Get returns the entry at path, if present.
func (s *Store) Get(path pathkey.Key) (Entry, bool) {
	v, ok := s.tree.Get(path)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Put inserts or replaces the entry at e.Path.
func (s *Store) Put(e Entry) {
	s.tree.Put(e.Path, e)
}

// Remove deletes the single entry at path, if present. It does not touch
// any subtree; use RemoveSubtree for directories.
func (s *Store) Remove(path pathkey.Key) {
	s.tree.Remove(path)
}

// RemoveSubtree removes prefix and every entry whose path lies within its
// subtree, atomically from the caller's point of view. It returns the
// number of entries removed.
func (s *Store) RemoveSubtree(prefix pathkey.Key) int {
	var toRemove []pathkey.Key
	s.RangeFrom(prefix, func(e Entry) bool {
		if !pathkey.HasPrefix(e.Path, prefix) {
			return false
		}
		toRemove = append(toRemove, e.Path)
		return true
	})
	for _, p := range toRemove {
		s.tree.Remove(p)
	}
	return len(toRemove)
}

// Len returns the number of entries in the store.
func (s *Store) Len() int { return s.tree.Size() }

// RangeFrom calls fn for every entry with Path >= start, in ascending
// order, until fn returns false or entries are exhausted. Passing the empty
// key starts at the root.
func (s *Store) RangeFrom(start pathkey.Key, fn func(Entry) bool) {
	node, found := s.tree.Ceiling(start)
	if !found {
		return
	}
	for node != nil {
		if !fn(node.Value.(Entry)) {
			return
		}
		node = successor(node)
	}
}

// Subtree calls fn for prefix itself (if present) and every entry in its
// subtree, in path order.
func (s *Store) Subtree(prefix pathkey.Key, fn func(Entry) bool) {
	s.RangeFrom(prefix, func(e Entry) bool {
		if !pathkey.HasPrefix(e.Path, prefix) {
			return false
		}
		return fn(e)
	})
}

// All calls fn for every entry in ascending path order.
func (s *Store) All(fn func(Entry) bool) {
	s.RangeFrom("", fn)
}

// Clone returns a deep-enough independent copy of s: subsequent mutations to
// either store do not affect the other. gods's red-black tree is a plain
// mutable structure, not a persistent one, so this rebuilds a fresh tree
// rather than sharing nodes (see DESIGN.md's Open Questions entry on
// snapshot sharing).
func (s *Store) Clone() *Store {
	out := New()
	s.All(func(e Entry) bool {
		out.Put(e)
		return true
	})
	return out
}

// successor returns the in-order successor of n within its tree, or nil if
// n is the last node. This is the standard BST successor walk; gods
// exposes Node.Left/Right/Parent precisely so callers can do this.
func successor(n *rbt.Node) *rbt.Node {
	if n == nil {
		return nil
	}
	if n.Right != nil {
		n = n.Right
		for n.Left != nil {
			n = n.Left
		}
		return n
	}
	p := n.Parent
	for p != nil && n == p.Right {
		n = p
		p = p.Parent
	}
	return p
}

// IDAllocator hands out stable, monotonically increasing Entry ids (spec
// §3: "id is never reused").
type IDAllocator struct {
	mu   sync.Mutex
	next uint64
}

// Next returns the next id, starting at 1.
func (a *IDAllocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next
}
