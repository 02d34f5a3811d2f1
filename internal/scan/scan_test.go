package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/example/worktreed/internal/fsadapter"
	"github.com/example/worktreed/internal/gitindex"
	"github.com/example/worktreed/internal/globpolicy"
	"github.com/example/worktreed/internal/pathkey"
	"github.com/example/worktreed/internal/store"
)

func newEngine(t *testing.T, root string, policy globpolicy.Set) *Engine {
	t.Helper()
	return New(root, fsadapter.NewRealFS(), nil, policy, 4)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitialScanBasic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")

	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}

	snap := e.Snapshot()
	if _, ok := snap.Get(pathkey.New("a.txt")); !ok {
		t.Fatalf("expected a.txt in store")
	}
	sub, ok := snap.Get(pathkey.New("sub"))
	if !ok || sub.Kind != store.Dir {
		t.Fatalf("expected sub to be a scanned directory, got %+v (ok=%v)", sub, ok)
	}
	if _, ok := snap.Get(pathkey.New("sub/b.txt")); !ok {
		t.Fatalf("expected sub/b.txt in store")
	}
}

func TestInitialScanIgnoredDirectoryStaysUnloaded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "node_modules/\n")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "index.js"), "x")

	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}

	snap := e.Snapshot()
	nm, ok := snap.Get(pathkey.New("node_modules"))
	if !ok || nm.Kind != store.UnloadedDir {
		t.Fatalf("expected node_modules to be an UnloadedDir, got %+v (ok=%v)", nm, ok)
	}
	if _, ok := snap.Get(pathkey.New("node_modules/pkg")); ok {
		t.Fatalf("expected node_modules/pkg not to be scanned")
	}
}

func TestInitialScanExcludeOmitsEntirely(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".DS_Store"), "x")

	policy := globpolicy.NewSet([]string{".DS_Store"}, []string{".DS_Store"}, nil)
	e := newEngine(t, root, policy)
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}
	snap := e.Snapshot()
	if _, ok := snap.Get(pathkey.New(".DS_Store")); ok {
		t.Fatalf("expected .DS_Store to be absent: exclude wins over include")
	}
}

func TestInitialScanSymlinkCycleStopsTraversal(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(root, filepath.Join(root, "a", "loop")); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	done := make(chan error, 1)
	go func() {
		_, err := e.InitialScan(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("InitialScan: %v", err)
		}
	case <-contextTimeout():
		t.Fatalf("InitialScan did not terminate: symlink cycle not broken")
	}

	snap := e.Snapshot()
	loop, ok := snap.Get(pathkey.New("a/loop"))
	if !ok || loop.Kind != store.UnloadedDir {
		t.Fatalf("expected a/loop (a cycle back to root) to stop as an UnloadedDir, got %+v (ok=%v)", loop, ok)
	}
}

func TestHandleEventCreateAndRemove(t *testing.T) {
	root := t.TempDir()
	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}

	p := filepath.Join(root, "new.txt")
	writeFile(t, p, "x")
	cs := e.HandleEvent(fsadapter.Event{Path: p, Op: fsadapter.OpCreate})
	if len(cs.Upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %+v", cs)
	}
	if _, ok := e.Snapshot().Get(pathkey.New("new.txt")); !ok {
		t.Fatalf("expected new.txt in store after create event")
	}

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	cs = e.HandleEvent(fsadapter.Event{Path: p, Op: fsadapter.OpRemove})
	if len(cs.Removed) != 1 {
		t.Fatalf("expected 1 removal, got %+v", cs)
	}
	if _, ok := e.Snapshot().Get(pathkey.New("new.txt")); ok {
		t.Fatalf("expected new.txt gone from store after remove event")
	}
}

func TestRenameEntryOverwriteProtection(t *testing.T) {
	root := t.TempDir()
	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}
	if _, err := e.CreateEntry(pathkey.New("a.txt"), false); err != nil {
		t.Fatalf("CreateEntry a: %v", err)
	}
	if _, err := e.CreateEntry(pathkey.New("b.txt"), false); err != nil {
		t.Fatalf("CreateEntry b: %v", err)
	}

	if _, err := e.RenameEntry(pathkey.New("a.txt"), pathkey.New("b.txt"), false); err != ErrWouldOverwrite {
		t.Fatalf("expected ErrWouldOverwrite, got %v", err)
	}
	if _, err := e.RenameEntry(pathkey.New("a.txt"), pathkey.New("b.txt"), true); err != nil {
		t.Fatalf("expected overwrite rename to succeed: %v", err)
	}
	snap := e.Snapshot()
	if _, ok := snap.Get(pathkey.New("a.txt")); ok {
		t.Fatalf("expected a.txt gone after rename")
	}
	if _, ok := snap.Get(pathkey.New("b.txt")); !ok {
		t.Fatalf("expected b.txt present after rename")
	}
}

func TestRenameEntryPreservesID(t *testing.T) {
	root := t.TempDir()
	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}
	if _, err := e.CreateEntry(pathkey.New("a.txt"), false); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	before, ok := e.Snapshot().Get(pathkey.New("a.txt"))
	if !ok {
		t.Fatalf("expected a.txt after create")
	}

	cs, err := e.RenameEntry(pathkey.New("a.txt"), pathkey.New("b.txt"), false)
	if err != nil {
		t.Fatalf("RenameEntry: %v", err)
	}
	after, ok := e.Snapshot().Get(pathkey.New("b.txt"))
	if !ok || after.ID != before.ID {
		t.Fatalf("expected b.txt to carry a.txt's id %d, got %+v (ok=%v)", before.ID, after, ok)
	}
	var sawMoved bool
	for _, u := range cs.Upserts {
		if u.Path == pathkey.New("b.txt") {
			sawMoved = u.Kind == Moved
		}
	}
	if !sawMoved {
		t.Fatalf("expected the b.txt upsert to be classified Moved, got %+v", cs.Upserts)
	}

	// Rename(a, b) then Rename(b, a) preserves the entry's id.
	if _, err := e.RenameEntry(pathkey.New("b.txt"), pathkey.New("a.txt"), false); err != nil {
		t.Fatalf("RenameEntry back: %v", err)
	}
	roundTripped, ok := e.Snapshot().Get(pathkey.New("a.txt"))
	if !ok || roundTripped.ID != before.ID {
		t.Fatalf("expected round-trip rename to preserve id %d, got %+v (ok=%v)", before.ID, roundTripped, ok)
	}
}

func TestRenameDirectoryPreservesDescendantIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dir", "f.txt"), "x")

	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}
	fileBefore, ok := e.Snapshot().Get(pathkey.New("dir/f.txt"))
	if !ok {
		t.Fatalf("expected dir/f.txt after initial scan")
	}

	if _, err := e.RenameEntry(pathkey.New("dir"), pathkey.New("moved"), false); err != nil {
		t.Fatalf("RenameEntry: %v", err)
	}
	fileAfter, ok := e.Snapshot().Get(pathkey.New("moved/f.txt"))
	if !ok || fileAfter.ID != fileBefore.ID {
		t.Fatalf("expected moved/f.txt to keep dir/f.txt's id %d, got %+v (ok=%v)", fileBefore.ID, fileAfter, ok)
	}
}

func TestLoadFileExpandsUnloadedDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "vendor/\n")
	writeFile(t, filepath.Join(root, "vendor", "lib", "code.go"), "package lib")

	e := newEngine(t, root, globpolicy.NewSet(nil, nil, nil))
	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}

	loaded, loadCS, err := e.LoadFile(pathkey.New("vendor/lib/code.go"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(loadCS.Upserts) == 0 {
		t.Fatalf("expected LoadFile to report the ancestors it expanded")
	}
	if loaded.Entry.Kind != store.File {
		t.Fatalf("expected a file entry, got %+v", loaded.Entry)
	}
	if loaded.AbsolutePath != filepath.Join(root, "vendor", "lib", "code.go") {
		t.Fatalf("unexpected AbsolutePath: %s", loaded.AbsolutePath)
	}

	vendor, ok := e.Snapshot().Get(pathkey.New("vendor"))
	if !ok || vendor.Kind != store.Dir {
		t.Fatalf("expected vendor to have been expanded to Dir, got %+v (ok=%v)", vendor, ok)
	}
}

func contextTimeout() <-chan time.Time {
	return time.After(5 * time.Second)
}

func TestHandleGitEventRateLimitsRefresh(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	writeFile(t, filepath.Join(root, "f.txt"), "a")
	if _, err := wt.Add("f.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Unix(0, 0)}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	gi := gitindex.New(root)
	e := New(root, fsadapter.NewRealFS(), gi, globpolicy.NewSet(nil, nil, nil), 4)
	clock := fsadapter.NewFakeClock(time.Unix(1000, 0))
	e.SetClock(clock)

	if _, err := e.InitialScan(context.Background()); err != nil {
		t.Fatalf("InitialScan: %v", err)
	}

	r, _, ok := gi.EnclosingRepository("")
	if !ok {
		t.Fatalf("expected a discovered repository at the worktree root")
	}
	if len(r.Statuses) != 0 {
		t.Fatalf("expected a clean worktree after commit, got %+v", r.Statuses)
	}

	writeFile(t, filepath.Join(root, "f.txt"), "changed")
	gitEvent := fsadapter.Event{Path: filepath.Join(root, ".git", "index"), Op: fsadapter.OpWrite}

	e.HandleEvent(gitEvent)
	r, _, _ = gi.EnclosingRepository("")
	if _, ok := r.Statuses[pathkey.New("f.txt")]; !ok {
		t.Fatalf("expected the first .git event to refresh status and see f.txt modified")
	}

	// Restore the committed contents within the rate-limit window: a refresh
	// would now find f.txt clean, so a status that still lists it proves
	// the refresh was skipped.
	writeFile(t, filepath.Join(root, "f.txt"), "a")
	e.HandleEvent(gitEvent)
	r, _, _ = gi.EnclosingRepository("")
	if _, ok := r.Statuses[pathkey.New("f.txt")]; !ok {
		t.Fatalf("expected a .git event within the rate-limit window not to refresh status")
	}

	clock.Advance(minGitRefreshInterval)
	e.HandleEvent(gitEvent)
	r, _, _ = gi.EnclosingRepository("")
	if _, ok := r.Statuses[pathkey.New("f.txt")]; ok {
		t.Fatalf("expected refresh to resume once the rate-limit window elapsed")
	}
}
