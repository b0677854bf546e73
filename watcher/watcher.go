// Package watcher turns fsnotify notifications for whole directory trees into
// debounced batches of normalised actions.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/log"
)

type Watcher struct {
	mu        sync.Mutex
	log       *log.Logger
	opts      WatcherOptions
	fsWatcher *fsnotify.Watcher
	stat      statFunc

	roots   map[string]struct{}
	watched map[string]struct{}

	updates chan []Action
	lost    chan string

	closeOnce sync.Once
}

func New(logger *log.Logger, opts ...WatcherOption) (*Watcher, error) {
	options := newDefaultWatcherOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.Discard()
	}

	fsw, err := fsnotify.NewBufferedWatcher(options.EventBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		log:       logger,
		opts:      *options,
		fsWatcher: fsw,
		stat:      os.Stat,
		roots:     make(map[string]struct{}),
		watched:   make(map[string]struct{}),
		updates:   make(chan []Action, options.UpdateBuffer),
		lost:      make(chan string, options.UpdateBuffer),
	}, nil
}

// Updates delivers one batch of actions per debounce interval with changes.
func (w *Watcher) Updates() <-chan []Action {
	return w.updates
}

// LostTrack delivers watched roots whose notifications were dropped. Everything
// below such a root must be rescanned.
func (w *Watcher) LostTrack() <-chan string {
	return w.lost
}

// AddPath watches absolutePath and every directory below it. It returns false
// when the path is already watched or cannot be watched.
func (w *Watcher) AddPath(absolutePath string) bool {
	root := cleanPath(absolutePath)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.roots[root]; ok {
		return false
	}
	if err := w.unsafeWatchTree(root); err != nil {
		w.log.Warn("Unable to watch '%s': %v", root, err)
		return false
	}

	w.roots[root] = struct{}{}
	return true
}

// RemovePath stops watching a path added with AddPath. Directories still
// covered by another watched root stay watched.
func (w *Watcher) RemovePath(absolutePath string) bool {
	root := cleanPath(absolutePath)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.roots[root]; !ok {
		return false
	}
	delete(w.roots, root)

	for dir := range w.watched {
		if !data.HasPrefix(dir, root) || w.unsafeCovered(dir) {
			continue
		}
		delete(w.watched, dir)
		if err := w.fsWatcher.Remove(osPath(dir)); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			w.log.Debug("Unable to unwatch '%s': %v", dir, err)
		}
	}
	return true
}

// Roots returns the watched roots in sorted order.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.roots))
	for root := range w.roots {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

// Run reads notifications until ctx is cancelled or the watcher is closed.
// Both output channels are closed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.updates)
	defer close(w.lost)

	ticker := time.NewTicker(w.opts.Debounce)
	defer ticker.Stop()

	var pending []fsnotify.Event
	held := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				pending = append(pending, ev)
				pending = append(pending, w.watchCreated(cleanPath(ev.Name))...)
				continue
			}
			pending = append(pending, ev)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				pending, held = nil, false
				for _, root := range w.Roots() {
					w.log.Warn("Lost track of '%s', notifications overflowed", root)
					select {
					case w.lost <- root:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				continue
			}
			w.log.Error("fsnotify error: %v", err)

		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}

			// A trailing rename-from may still get its partner with the next
			// tick. It is held back once.
			batch := pending
			if last := pending[len(pending)-1]; last.Has(fsnotify.Rename) && !held {
				batch = pending[:len(pending)-1]
				pending = []fsnotify.Event{last}
				held = true
			} else {
				pending, held = nil, false
			}

			actions := normalize(batch, w.stat)
			w.forgetRemoved(actions)
			if len(actions) == 0 {
				continue
			}
			select {
			case w.updates <- actions:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsWatcher.Close()
	})
	return err
}

// watchCreated watches a newly created directory tree. Entries created inside
// it before the watch was in place are reported as synthetic creations.
func (w *Watcher) watchCreated(name string) []fsnotify.Event {
	fi, err := w.stat(name)
	if err != nil || !fi.IsDir() || isHidden(name) {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.unsafeCovered(name) {
		return nil
	}

	var synthetic []fsnotify.Event
	err = filepath.WalkDir(osPath(name), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		clean := cleanPath(p)
		if clean != name {
			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			synthetic = append(synthetic, fsnotify.Event{Name: p, Op: fsnotify.Create})
		}
		if d.IsDir() {
			w.unsafeWatch(clean)
		}
		return nil
	})
	if err != nil {
		w.log.Debug("Unable to walk '%s': %v", name, err)
	}
	return synthetic
}

// forgetRemoved drops watches of directories that were removed or renamed.
// fsnotify removes the kernel watch itself.
func (w *Watcher) forgetRemoved(actions []Action) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, a := range actions {
		if a.Kind != Remove && a.Kind != Rename {
			continue
		}
		for dir := range w.watched {
			if data.HasPrefix(dir, a.Path) {
				delete(w.watched, dir)
			}
		}
	}
}

// Must be called with lock held.
func (w *Watcher) unsafeWatchTree(root string) error {
	info, err := w.stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return data.ErrNotDirectory
	}

	return filepath.WalkDir(osPath(root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		clean := cleanPath(p)
		if clean != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		w.unsafeWatch(clean)
		return nil
	})
}

// Must be called with lock held.
func (w *Watcher) unsafeWatch(dir string) {
	if _, ok := w.watched[dir]; ok {
		return
	}
	if err := w.fsWatcher.Add(osPath(dir)); err != nil {
		w.log.Debug("Unable to watch '%s': %v", dir, err)
		return
	}
	w.watched[dir] = struct{}{}
}

// unsafeCovered reports whether dir lies in any watched root.
// Must be called with lock held.
func (w *Watcher) unsafeCovered(dir string) bool {
	for root := range w.roots {
		if data.HasPrefix(dir, root) {
			return true
		}
	}
	return false
}

func osPath(abs string) string {
	if abs == "" {
		return "/"
	}
	return filepath.FromSlash(abs)
}
