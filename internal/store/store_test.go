package store

import (
	"testing"

	"github.com/example/worktreed/internal/pathkey"
)

func TestPutGet(t *testing.T) {
	s := New()
	s.Put(Entry{Path: "a/b", Kind: File, ID: 1})
	e, ok := s.Get("a/b")
	if !ok || e.ID != 1 {
		t.Fatalf("Get(a/b) = %+v, %v", e, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("expected missing path to be absent")
	}
}

func TestOrderedTraversal(t *testing.T) {
	s := New()
	for _, p := range []pathkey.Key{"b", "a/c", "a", "a/b", ""} {
		s.Put(Entry{Path: p})
	}
	var got []pathkey.Key
	s.All(func(e Entry) bool {
		got = append(got, e.Path)
		return true
	})
	want := []pathkey.Key{"", "a", "a/b", "a/c", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRemoveSubtreeIsAtomic(t *testing.T) {
	s := New()
	for _, p := range []pathkey.Key{"", "a", "a/b", "a/b/c", "a/d", "z"} {
		s.Put(Entry{Path: p})
	}
	n := s.RemoveSubtree("a")
	if n != 4 { // a, a/b, a/b/c, a/d
		t.Fatalf("removed %d entries, want 4", n)
	}
	if s.Len() != 2 {
		t.Fatalf("store has %d entries left, want 2 (root, z)", s.Len())
	}
	if _, ok := s.Get("a/b"); ok {
		t.Fatalf("a/b should have been removed")
	}
}

func TestSubtreeDoesNotLeakSiblings(t *testing.T) {
	s := New()
	for _, p := range []pathkey.Key{"a", "a/b", "ab", "a/c"} {
		s.Put(Entry{Path: p})
	}
	var got []pathkey.Key
	s.Subtree("a", func(e Entry) bool {
		got = append(got, e.Path)
		return true
	})
	want := []pathkey.Key{"a", "a/b", "a/c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v (must not include sibling 'ab')", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	s.Put(Entry{Path: "a", ID: 1})
	clone := s.Clone()
	s.Put(Entry{Path: "b", ID: 2})
	if clone.Len() != 1 {
		t.Fatalf("clone should not observe mutations made after Clone()")
	}
	if _, ok := clone.Get("b"); ok {
		t.Fatalf("clone should not contain entries added after Clone()")
	}
}

func TestReplacePreservesID(t *testing.T) {
	s := New()
	s.Put(Entry{Path: "a", ID: 7, Size: 1})
	s.Put(Entry{Path: "a", ID: 7, Size: 2})
	e, _ := s.Get("a")
	if e.ID != 7 || e.Size != 2 {
		t.Fatalf("replace should keep id and update fields: %+v", e)
	}
}
