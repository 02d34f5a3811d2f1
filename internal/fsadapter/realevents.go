package fsadapter

import (
	"github.com/fsnotify/fsnotify"
)

// RealEventSource adapts fsnotify.Watcher to EventSource. The watcher
// lifecycle (adding/removing watched directories, translating fsnotify's
// Op bits) is lifted from the teacher's tryStartFsnotify /
// rebuildWatchers in internal/index/fsnotify.go.
type RealEventSource struct {
	w       *fsnotify.Watcher
	events  chan Event
	errors  chan error
	closeCh chan struct{}
}

// NewRealEventSource starts an fsnotify watcher with no directories
// watched yet; call Add to subscribe.
func NewRealEventSource() (*RealEventSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	r := &RealEventSource{
		w:       w,
		events:  make(chan Event, 256),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	go r.pump()
	return r, nil
}

func (r *RealEventSource) pump() {
	for {
		select {
		case <-r.closeCh:
			return
		case ev, ok := <-r.w.Events:
			if !ok {
				return
			}
			select {
			case r.events <- Event{Path: ev.Name, Op: translateOp(ev.Op)}:
			case <-r.closeCh:
				return
			}
		case err, ok := <-r.w.Errors:
			if !ok {
				return
			}
			select {
			case r.errors <- err:
			case <-r.closeCh:
				return
			}
		}
	}
}

func translateOp(op fsnotify.Op) Op {
	var out Op
	if op&fsnotify.Create != 0 {
		out |= OpCreate
	}
	if op&fsnotify.Write != 0 {
		out |= OpWrite
	}
	if op&fsnotify.Remove != 0 {
		out |= OpRemove
	}
	if op&fsnotify.Rename != 0 {
		out |= OpRename
	}
	if op&fsnotify.Chmod != 0 {
		out |= OpChmod
	}
	return out
}

func (r *RealEventSource) Events() <-chan Event { return r.events }
func (r *RealEventSource) Errors() <-chan error { return r.errors }
func (r *RealEventSource) Add(dir string) error { return r.w.Add(dir) }
func (r *RealEventSource) Remove(dir string) error {
	return r.w.Remove(dir)
}
func (r *RealEventSource) Close() error {
	close(r.closeCh)
	return r.w.Close()
}
