package pathkey

import "testing"

func TestCompareDepthFirst(t *testing.T) {
	// A directory must sort immediately before its children, which in turn
	// sort before the directory's following siblings.
	paths := []Key{"", "a", "a/b", "a/c", "b"}
	for i := 0; i < len(paths)-1; i++ {
		if !Less(paths[i], paths[i+1]) {
			t.Fatalf("expected %q < %q", paths[i], paths[i+1])
		}
	}
}

func TestCompareRootFirst(t *testing.T) {
	if !Less("", "a") {
		t.Fatalf("root should sort before any non-empty key")
	}
	if Compare("", "") != 0 {
		t.Fatalf("root should compare equal to itself")
	}
}

func TestParentAndName(t *testing.T) {
	p, ok := Parent("a/b/c")
	if !ok || p != "a/b" {
		t.Fatalf("Parent(a/b/c) = %q, %v", p, ok)
	}
	if Name("a/b/c") != "c" {
		t.Fatalf("Name(a/b/c) = %q", Name("a/b/c"))
	}
	if _, ok := Parent(""); ok {
		t.Fatalf("root should have no parent")
	}
	p, ok = Parent("a")
	if !ok || p != "" {
		t.Fatalf("Parent(a) = %q, %v, want root", p, ok)
	}
}

func TestHasPrefix(t *testing.T) {
	if !HasPrefix("a/b", "a") {
		t.Fatalf("a/b should be under a")
	}
	if HasPrefix("ab", "a") {
		t.Fatalf("ab should not be under a (no separator)")
	}
	if !HasPrefix("a", "") {
		t.Fatalf("everything is under the root")
	}
	if !HasPrefix("a", "a") {
		t.Fatalf("a directory is under itself")
	}
}

func TestNewNormalizesSeparators(t *testing.T) {
	if New(`a\b`) != Key("a/b") {
		t.Fatalf("New should normalize backslashes")
	}
	if New(".") != "" {
		t.Fatalf("New(.) should be the root key")
	}
}
