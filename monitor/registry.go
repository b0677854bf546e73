package monitor

import (
	"sort"
	"sync"
	"weak"

	"github.com/google/uuid"
	"github.com/mwantia/vfsindex/log"
	"github.com/mwantia/vfsindex/snapshot"
)

type entry struct {
	id      uuid.UUID
	matcher *snapshot.FileMatcher
	// seq orders delivery between monitors.
	seq uint64

	file    FileMonitor
	subtree SubTreeMonitor
}

// reclaimable is implemented by monitors that only hold their subscriber weakly.
type reclaimable interface {
	reclaimed() bool
}

// Registry keeps the running monitors. Monitors wrapped with WeakFile or
// WeakSubTree are dropped once their subscriber has been garbage collected,
// which is noticed the next time an update would have been delivered.
type Registry struct {
	mu       sync.Mutex
	log      *log.Logger
	entries  map[uuid.UUID]*entry
	reserved map[uuid.UUID]struct{}
	next     uint64
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Discard()
	}
	return &Registry{
		log:      logger,
		entries:  make(map[uuid.UUID]*entry),
		reserved: make(map[uuid.UUID]struct{}),
	}
}

// Reserve returns an id for a monitor that is activated later. Stopping a
// reserved id prevents its activation.
func (r *Registry) Reserve() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.reserved[id] = struct{}{}
	return id
}

// StartFileMonitor registers m and activates it with current.
func (r *Registry) StartFileMonitor(current *snapshot.Snapshot, filter snapshot.FileFilter, m FileMonitor) uuid.UUID {
	id := r.Reserve()
	r.ActivateFileMonitor(id, current, filter, m)
	return id
}

// StartSubTreeMonitor registers m and activates it with current.
func (r *Registry) StartSubTreeMonitor(current *snapshot.Snapshot, filter snapshot.FileFilter, m SubTreeMonitor) uuid.UUID {
	id := r.Reserve()
	r.ActivateSubTreeMonitor(id, current, filter, m)
	return id
}

// ActivateFileMonitor registers m under a reserved id. It reports false when
// the id was stopped before activation.
func (r *Registry) ActivateFileMonitor(id uuid.UUID, current *snapshot.Snapshot, filter snapshot.FileFilter, m FileMonitor) bool {
	if !r.add(&entry{id: id, matcher: filter.Matcher(), file: m}) {
		return false
	}
	m.Activated(current)
	return true
}

// ActivateSubTreeMonitor is ActivateFileMonitor for subtree monitors.
func (r *Registry) ActivateSubTreeMonitor(id uuid.UUID, current *snapshot.Snapshot, filter snapshot.FileFilter, m SubTreeMonitor) bool {
	if !r.add(&entry{id: id, matcher: filter.Matcher(), subtree: m}) {
		return false
	}
	m.Activated(current)
	return true
}

// StartWeakFileMonitor is StartFileMonitor without keeping m alive.
func StartWeakFileMonitor[T any, PT interface {
	*T
	FileMonitor
}](r *Registry, current *snapshot.Snapshot, filter snapshot.FileFilter, m PT) uuid.UUID {
	return r.StartFileMonitor(current, filter, WeakFile(m))
}

// StartWeakSubTreeMonitor is StartSubTreeMonitor without keeping m alive.
func StartWeakSubTreeMonitor[T any, PT interface {
	*T
	SubTreeMonitor
}](r *Registry, current *snapshot.Snapshot, filter snapshot.FileFilter, m PT) uuid.UUID {
	return r.StartSubTreeMonitor(current, filter, WeakSubTree(m))
}

// Stop unregisters the monitor. It reports false for unknown ids.
func (r *Registry) Stop(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reserved[id]; ok {
		delete(r.reserved, id)
		return true
	}
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Dispatch hands update to every monitor whose view it changes. It returns
// the number of monitors that received an update.
func (r *Registry) Dispatch(update *snapshot.Update) int {
	if update.IsEmpty() {
		return 0
	}

	delivered := 0
	for _, e := range r.snapshot() {
		if !r.registered(e.id) {
			continue
		}

		var m any = e.file
		if e.subtree != nil {
			m = e.subtree
		}
		if w, ok := m.(reclaimable); ok && w.reclaimed() {
			r.reclaim(e.id)
			continue
		}

		switch {
		case e.file != nil:
			files := FilterFiles(update, e.matcher)
			if len(files) == 0 {
				continue
			}
			e.file.Update(&FileUpdate{From: update.From, To: update.To, Files: files})
			delivered++

		case e.subtree != nil:
			roots := FilterSubTree(update, e.matcher)
			if len(roots) == 0 {
				continue
			}
			e.subtree.Update(&SubTreeUpdate{From: update.From, To: update.To, Roots: roots})
			delivered++
		}
	}
	return delivered
}

func (r *Registry) add(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reserved[e.id]; !ok {
		return false
	}
	delete(r.reserved, e.id)

	e.seq = r.next
	r.next++
	r.entries[e.id] = e
	return true
}

func (r *Registry) registered(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[id]
	return ok
}

func (r *Registry) reclaim(id uuid.UUID) {
	if r.Stop(id) {
		r.log.Debug("Monitor '%s' reclaimed", id)
	}
}

// snapshot returns the registered entries in registration order.
func (r *Registry) snapshot() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

type weakFile[T any, PT interface {
	*T
	FileMonitor
}] struct {
	p weak.Pointer[T]
}

// WeakFile wraps m without keeping it alive. Once m is collected the
// registry drops the monitor.
func WeakFile[T any, PT interface {
	*T
	FileMonitor
}](m PT) FileMonitor {
	return &weakFile[T, PT]{p: weak.Make((*T)(m))}
}

func (w *weakFile[T, PT]) Activated(s *snapshot.Snapshot) {
	if p := w.p.Value(); p != nil {
		PT(p).Activated(s)
	}
}

func (w *weakFile[T, PT]) Update(u *FileUpdate) {
	if p := w.p.Value(); p != nil {
		PT(p).Update(u)
	}
}

func (w *weakFile[T, PT]) reclaimed() bool {
	return w.p.Value() == nil
}

type weakSubTree[T any, PT interface {
	*T
	SubTreeMonitor
}] struct {
	p weak.Pointer[T]
}

// WeakSubTree wraps m without keeping it alive.
func WeakSubTree[T any, PT interface {
	*T
	SubTreeMonitor
}](m PT) SubTreeMonitor {
	return &weakSubTree[T, PT]{p: weak.Make((*T)(m))}
}

func (w *weakSubTree[T, PT]) Activated(s *snapshot.Snapshot) {
	if p := w.p.Value(); p != nil {
		PT(p).Activated(s)
	}
}

func (w *weakSubTree[T, PT]) Update(u *SubTreeUpdate) {
	if p := w.p.Value(); p != nil {
		PT(p).Update(u)
	}
}

func (w *weakSubTree[T, PT]) reclaimed() bool {
	return w.p.Value() == nil
}
