package fsadapter

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FakeEventSource is the deterministic test double for EventSource (spec
// §6, §8 "Test harness hooks"). Tests inject events directly via Inject
// rather than relying on a real, timing-sensitive fsnotify watcher; the
// pause/flush controls let a test hold events back and release them one
// batch at a time to assert on intermediate scan state.
type FakeEventSource struct {
	root string // used only by Paths, to list real files under a temp dir

	mu      sync.Mutex
	paused  bool
	pending []Event
	events  chan Event
	errors  chan error
}

// NewFakeEventSource returns a FakeEventSource rooted at root (a real
// directory, typically t.TempDir()) for Paths to enumerate.
func NewFakeEventSource(root string) *FakeEventSource {
	return &FakeEventSource{
		root:   root,
		events: make(chan Event, 1024),
		errors: make(chan error, 16),
	}
}

func (f *FakeEventSource) Events() <-chan Event { return f.events }
func (f *FakeEventSource) Errors() <-chan error { return f.errors }
func (f *FakeEventSource) Add(dir string) error { return nil }
func (f *FakeEventSource) Remove(dir string) error { return nil }
func (f *FakeEventSource) Close() error {
	close(f.events)
	close(f.errors)
	return nil
}

// Inject queues ev for delivery. If events are not paused, it is
// delivered immediately; otherwise it is buffered until FlushEvents.
func (f *FakeEventSource) Inject(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused {
		f.pending = append(f.pending, ev)
		return
	}
	f.events <- ev
}

// PauseEvents stops delivering injected events until FlushEvents is
// called; they accumulate in an internal buffer instead.
func (f *FakeEventSource) PauseEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

// BufferedEventCount returns how many events are currently held back by
// a pause.
func (f *FakeEventSource) BufferedEventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// FlushEvents releases up to n buffered events (or all of them, if n <= 0)
// to the Events channel, in the order they were injected, and un-pauses if
// the buffer drains. It returns how many events were actually released, so
// a caller (worktree.Handle.FlushFSEvents) can wait for exactly that many
// acknowledgements from the scan task before returning.
func (f *FakeEventSource) FlushEvents(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || n > len(f.pending) {
		n = len(f.pending)
	}
	for i := 0; i < n; i++ {
		f.events <- f.pending[i]
	}
	f.pending = f.pending[n:]
	if len(f.pending) == 0 {
		f.paused = false
	}
	return n
}

// Paths returns every relative path under root, for tests asserting on
// the real directory tree an incremental scan should have observed.
// Dotfiles are omitted unless includeHidden is set.
func (f *FakeEventSource) Paths(includeHidden bool) []string {
	var out []string
	_ = filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || path == f.root {
			return nil
		}
		rel, _ := filepath.Rel(f.root, path)
		rel = strings.ReplaceAll(rel, string(filepath.Separator), "/")
		if !includeHidden && strings.HasPrefix(filepath.Base(rel), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out
}
