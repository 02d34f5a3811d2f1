package worktreed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/example/worktreed/internal/fsadapter"
	"github.com/example/worktreed/internal/gitindex"
	"github.com/example/worktreed/internal/pathkey"
	"github.com/example/worktreed/internal/snapshot"
	"github.com/example/worktreed/internal/store"
	"github.com/example/worktreed/settings"
)

func newTestHandle(t *testing.T, root string, events fsadapter.EventSource, enableGit bool) *Handle {
	t.Helper()
	h, err := New(root, fsadapter.NewRealFS(), events, settings.Settings{}, Config{EnableGit: enableGit})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
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

func TestStartScansAndSignalsScanComplete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)
	select {
	case <-h.ScanComplete():
	default:
		t.Fatalf("expected ScanComplete to already be closed after Start returns")
	}

	if _, ok := h.EntryForPath(pathkey.New("a.txt")); !ok {
		t.Fatalf("expected a.txt to be present after initial scan")
	}
	if h.Snapshot().ScanID != 1 {
		t.Fatalf("expected scan_id 1 after the initial scan, got %d", h.Snapshot().ScanID)
	}
}

func TestCreateEntryPublishesAndAssignsID(t *testing.T) {
	root := t.TempDir()
	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)

	before := h.Snapshot().ScanID
	entry, err := h.CreateEntry(pathkey.New("new.txt"), false)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if entry.ID == 0 {
		t.Fatalf("expected a nonzero id")
	}
	if h.Snapshot().ScanID != before+1 {
		t.Fatalf("expected scan_id to advance by exactly 1, got %d -> %d", before, h.Snapshot().ScanID)
	}

	p, ok := h.ResolveID(entry.ID)
	if !ok || p != pathkey.New("new.txt") {
		t.Fatalf("expected ResolveID(%d) = new.txt, got %q (ok=%v)", entry.ID, p, ok)
	}
}

func TestRenameEntryUpdatesIDMapping(t *testing.T) {
	root := t.TempDir()
	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)

	entry, err := h.CreateEntry(pathkey.New("old.txt"), false)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if _, err := h.RenameEntry(entry.ID, pathkey.New("new.txt"), false); err != nil {
		t.Fatalf("RenameEntry: %v", err)
	}

	p, ok := h.ResolveID(entry.ID)
	if !ok || p != pathkey.New("new.txt") {
		t.Fatalf("expected id %d to resolve to new.txt after rename, got %q (ok=%v)", entry.ID, p, ok)
	}
	if _, ok := h.EntryForPath(pathkey.New("old.txt")); ok {
		t.Fatalf("expected old.txt to be gone after rename")
	}
}

func TestRenameEntryRejectsIntoDescendant(t *testing.T) {
	root := t.TempDir()
	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)

	dir, err := h.CreateEntry(pathkey.New("a"), true)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if _, err := h.RenameEntry(dir.ID, pathkey.New("a/b"), false); !errors.Is(err, ErrRenameIntoDescendant) {
		t.Fatalf("expected ErrRenameIntoDescendant, got %v", err)
	}
}

func TestDeleteEntryRemovesFromStoreAndIDMap(t *testing.T) {
	root := t.TempDir()
	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)

	entry, err := h.CreateEntry(pathkey.New("gone.txt"), false)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if err := h.DeleteEntry(entry.ID, false); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, ok := h.EntryForPath(pathkey.New("gone.txt")); ok {
		t.Fatalf("expected gone.txt to be removed")
	}
	if _, ok := h.ResolveID(entry.ID); ok {
		t.Fatalf("expected id to no longer resolve after delete")
	}
}

func TestSubscribeEntriesReceivesUpdates(t *testing.T) {
	root := t.TempDir()
	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)

	var got []snapshot.Update
	cancel := h.SubscribeEntries(func(u snapshot.Update) { got = append(got, u) })
	defer cancel()

	if _, err := h.CreateEntry(pathkey.New("watched.txt"), false); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 published update, got %d", len(got))
	}
	if len(got[0].Entries) != 1 || got[0].Entries[0].Path != pathkey.New("watched.txt") {
		t.Fatalf("unexpected update contents: %+v", got[0])
	}

	cancel()
	if _, err := h.CreateEntry(pathkey.New("unwatched.txt"), false); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected no further updates after unsubscribing, got %d", len(got))
	}
}

func TestFlushFSEventsWaitsForProcessing(t *testing.T) {
	root := t.TempDir()
	events := fsadapter.NewFakeEventSource(root)
	h := newTestHandle(t, root, events, false)

	events.PauseEvents()
	p := filepath.Join(root, "flushed.txt")
	writeFile(t, p, "x")
	events.Inject(fsadapter.Event{Path: p, Op: fsadapter.OpCreate})

	h.FlushFSEvents(1)

	if _, ok := h.EntryForPath(pathkey.New("flushed.txt")); !ok {
		t.Fatalf("expected flushed.txt to be visible once FlushFSEvents returns")
	}
}

func TestLoadFileReportsLoadedAncestors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "vendor/\n")
	writeFile(t, filepath.Join(root, "vendor", "lib", "code.go"), "package lib")

	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)

	var got []snapshot.Update
	cancel := h.SubscribeEntries(func(u snapshot.Update) { got = append(got, u) })
	defer cancel()

	loaded, err := h.LoadFile(pathkey.New("vendor/lib/code.go"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Entry.Kind != store.File {
		t.Fatalf("expected a file entry, got %+v", loaded.Entry)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 published update for the load, got %d", len(got))
	}
	for _, ec := range got[0].Entries {
		if ec.Change != snapshot.Loaded {
			t.Fatalf("expected every entry in a LoadFile update to be marked Loaded, got %+v", ec)
		}
	}
}

func TestApplySettingsIsNoOpWhenUnchanged(t *testing.T) {
	root := t.TempDir()
	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)

	before := h.Snapshot().ScanID
	if err := h.ApplySettings(context.Background(), settings.Settings{}); err != nil {
		t.Fatalf("ApplySettings: %v", err)
	}
	if h.Snapshot().ScanID != before {
		t.Fatalf("expected ApplySettings with identical settings to be a no-op, scan_id moved %d -> %d", before, h.Snapshot().ScanID)
	}
}

func TestApplySettingsExcludesMatchingPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "a")
	writeFile(t, filepath.Join(root, "drop.log"), "b")

	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), false)
	if _, ok := h.EntryForPath(pathkey.New("drop.log")); !ok {
		t.Fatalf("expected drop.log to be present before the settings change")
	}

	if err := h.ApplySettings(context.Background(), settings.Settings{FileScanExclusions: []string{"*.log"}}); err != nil {
		t.Fatalf("ApplySettings: %v", err)
	}
	if _, ok := h.EntryForPath(pathkey.New("drop.log")); ok {
		t.Fatalf("expected drop.log to be excluded after the settings change")
	}
	if _, ok := h.EntryForPath(pathkey.New("keep.txt")); !ok {
		t.Fatalf("expected keep.txt to remain present")
	}
}

func TestGitIntegrationReportsStatus(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	writeFile(t, filepath.Join(root, "tracked.txt"), "a")
	if _, err := wt.Add("tracked.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Unix(0, 0)}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	writeFile(t, filepath.Join(root, "untracked.txt"), "b")

	h := newTestHandle(t, root, fsadapter.NewFakeEventSource(root), true)

	ps, ok := h.StatusForFile(pathkey.New("untracked.txt"))
	if !ok || ps.Kind != gitindex.KindUntracked {
		t.Fatalf("expected untracked.txt to report KindUntracked, got %+v (ok=%v)", ps, ok)
	}

	repoHandle, ok := h.RepositoryForPath(pathkey.New("tracked.txt"))
	if !ok || !repoHandle.WorkDir.InProject {
		t.Fatalf("expected tracked.txt to resolve to an InProject repository")
	}
}
