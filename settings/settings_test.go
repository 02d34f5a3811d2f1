package settings

import "testing"

func TestEqualSameContent(t *testing.T) {
	a := Settings{FileScanExclusions: []string{"node_modules"}, PrivateFiles: []string{".env"}}
	b := Settings{FileScanExclusions: []string{"node_modules"}, PrivateFiles: []string{".env"}}
	if !a.Equal(b) {
		t.Fatalf("expected equal settings")
	}
}

func TestEqualDiffersOnOrder(t *testing.T) {
	a := Settings{FileScanExclusions: []string{"a", "b"}}
	b := Settings{FileScanExclusions: []string{"b", "a"}}
	if a.Equal(b) {
		t.Fatalf("expected order-sensitive inequality")
	}
}

func TestEqualDiffersOnLength(t *testing.T) {
	a := Settings{PrivateFiles: []string{".env"}}
	b := Settings{}
	if a.Equal(b) {
		t.Fatalf("expected inequality when lengths differ")
	}
}
