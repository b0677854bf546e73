// Package mounts translates between engine paths and absolute physical paths.
package mounts

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/vfsindex/data"
	"github.com/tidwall/btree"
)

// Mount associates an engine path prefix with an absolute physical directory.
type Mount struct {
	EnginePath   data.EnginePath `json:"engine_path"`
	AbsolutePath string          `json:"absolute_path"`
	Link         bool            `json:"link,omitempty"`
	MountedAt    time.Time       `json:"mounted_at"`
}

// Table holds every mount. Mounts below the root mount may not nest, neither by
// engine path nor by absolute path. One absolute path may be mounted at
// several engine paths.
type Table struct {
	mu      sync.RWMutex
	mounts  *btree.Map[string, *Mount]
	targets map[string]map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		mounts:  btree.NewMap[string, *Mount](0),
		targets: make(map[string]map[string]struct{}),
	}
}

// AddMountPoint mounts absolutePath at enginePath. It returns false and leaves
// the table unchanged when the mount already exists or would nest.
func (t *Table) AddMountPoint(enginePath string, absolutePath string) bool {
	return t.add(enginePath, absolutePath, false)
}

// AddLinkMount mounts the target of a directory link found at enginePath. The
// link must lie inside an existing mount and may not contain another mount.
// Its target may not nest with any other target, so one physical tree is
// never indexed twice.
func (t *Table) AddLinkMount(enginePath string, absolutePath string) bool {
	return t.add(enginePath, absolutePath, true)
}

func (t *Table) add(enginePath string, absolutePath string, link bool) bool {
	ep := data.NewEnginePath(enginePath)
	abs := Clean(absolutePath)
	if abs == "" && absolutePath == "" {
		return false
	}
	if link && ep.IsRoot() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.mounts.Get(ep.Key); exists {
		return false
	}
	if link && t.unsafeNearest(ep.Key) == nil {
		return false
	}

	if !ep.IsRoot() {
		nested := false
		t.mounts.Scan(func(key string, m *Mount) bool {
			if key == "" {
				return true
			}
			if data.HasPrefix(key, ep.Key) || (!link && data.HasPrefix(ep.Key, key)) {
				nested = true
			} else if other := m.AbsolutePath; other != abs && (hasPathPrefix(other, abs) || hasPathPrefix(abs, other)) {
				nested = true
			}
			return !nested
		})
		if nested {
			return false
		}
	}

	t.mounts.Set(ep.Key, &Mount{
		EnginePath:   ep,
		AbsolutePath: abs,
		Link:         link,
		MountedAt:    time.Now(),
	})
	t.addTarget(abs, ep.Key)
	return true
}

// GetAbsolutePath rewrites enginePath through the nearest mount above it. It
// returns an empty string for unmounted paths.
func (t *Table) GetAbsolutePath(enginePath string) string {
	ep := data.NewEnginePath(enginePath)

	t.mu.RLock()
	defer t.mu.RUnlock()

	m := t.unsafeNearest(ep.Key)
	if m == nil {
		return ""
	}

	rest := segments(ep.Full)[len(segments(m.EnginePath.Key)):]
	if len(rest) == 0 {
		if m.AbsolutePath == "" {
			return "/"
		}
		return m.AbsolutePath
	}
	return m.AbsolutePath + "/" + strings.Join(rest, "/")
}

// GetEnginePath returns the first engine path absolutePath is visible at.
func (t *Table) GetEnginePath(absolutePath string) (data.EnginePath, bool) {
	var out data.EnginePath
	found := false
	t.ForEachEnginePath(absolutePath, func(ep data.EnginePath) {
		if !found {
			out, found = ep, true
		}
	})
	return out, found
}

// ForEachEnginePath calls fn with every engine path absolutePath is visible at,
// in engine key order. Only the mounts with the deepest matching target are used.
func (t *Table) ForEachEnginePath(absolutePath string, fn func(ep data.EnginePath)) {
	abs := Clean(absolutePath)

	t.mu.RLock()
	var best string
	found := false
	for target := range t.targets {
		if hasPathPrefix(abs, target) && (!found || len(target) > len(best)) {
			best, found = target, true
		}
	}

	var out []data.EnginePath
	if found {
		relative := strings.TrimPrefix(strings.TrimPrefix(abs, best), "/")
		for _, key := range sortedKeys(t.targets[best]) {
			m, _ := t.mounts.Get(key)
			out = append(out, m.EnginePath.Append(relative))
		}
	}
	t.mu.RUnlock()

	for _, ep := range out {
		fn(ep)
	}
}

// ForEachMountPoint calls fn once per engine path absolutePath itself is mounted at.
func (t *Table) ForEachMountPoint(absolutePath string, fn func(ep data.EnginePath)) {
	abs := Clean(absolutePath)

	t.mu.RLock()
	var out []data.EnginePath
	for _, key := range sortedKeys(t.targets[abs]) {
		m, _ := t.mounts.Get(key)
		out = append(out, m.EnginePath)
	}
	t.mu.RUnlock()

	for _, ep := range out {
		fn(ep)
	}
}

// IsMountPoint reports whether enginePath is mounted itself.
func (t *Table) IsMountPoint(enginePath string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.mounts.Get(data.Key(enginePath))
	return ok
}

// RenameMount follows the rename of the directory at engineKeyPath to newName.
// The mount at that path and every mount below it move along, absolute
// targets stay untouched.
func (t *Table) RenameMount(engineKeyPath string, newName string) {
	from := data.NewEnginePath(engineKeyPath)
	if from.IsRoot() {
		return
	}
	to := from.Dir().Join(newName)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.unsafeBelow(from.Key) {
		t.mounts.Delete(m.EnginePath.Key)
		t.removeTarget(m.AbsolutePath, m.EnginePath.Key)

		relative := segments(m.EnginePath.Full)[len(segments(from.Key)):]
		m.EnginePath = to.Append(strings.Join(relative, "/"))

		t.mounts.Set(m.EnginePath.Key, m)
		t.addTarget(m.AbsolutePath, m.EnginePath.Key)
	}
}

// RemoveMountsIn removes every mount at or below enginePath. fn is called once
// per absolute path that is no longer mounted anywhere.
func (t *Table) RemoveMountsIn(enginePath string, fn func(absolutePath string)) {
	key := data.Key(enginePath)

	t.mu.Lock()
	var released []string
	for _, m := range t.unsafeBelow(key) {
		if t.unsafeRemove(m) {
			released = append(released, m.AbsolutePath)
		}
	}
	t.mu.Unlock()

	notify(released, fn)
}

// RemoveLinkTarget removes every link mount whose target is absolutePath or
// lies below it and returns their engine key paths. Regular mounts stay. fn is
// called once per released absolute path.
func (t *Table) RemoveLinkTarget(absolutePath string, fn func(absolutePath string)) []string {
	abs := Clean(absolutePath)

	t.mu.Lock()
	var removed, released []string
	for _, m := range t.unsafeMounts() {
		if !m.Link || !hasPathPrefix(m.AbsolutePath, abs) {
			continue
		}
		removed = append(removed, m.EnginePath.Key)
		if t.unsafeRemove(m) {
			released = append(released, m.AbsolutePath)
		}
	}
	t.mu.Unlock()

	notify(released, fn)
	return removed
}

// Mounts returns a copy of every mount in engine key order.
func (t *Table) Mounts() []Mount {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Mount, 0, t.mounts.Len())
	for _, m := range t.unsafeMounts() {
		out = append(out, *m)
	}
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.mounts.Len()
}

// unsafeNearest returns the deepest mount at or above key.
// Must be called with lock held.
func (t *Table) unsafeNearest(key string) *Mount {
	for {
		if m, ok := t.mounts.Get(key); ok {
			return m
		}
		if key == "" {
			return nil
		}
		key = data.Dir(key)
	}
}

// unsafeBelow returns the mounts at or below key, the root mount only for the root itself.
// Must be called with lock held.
func (t *Table) unsafeBelow(key string) []*Mount {
	var out []*Mount
	t.mounts.Ascend(key, func(k string, m *Mount) bool {
		if !strings.HasPrefix(k, key) {
			return false
		}
		if data.HasPrefix(k, key) {
			out = append(out, m)
		}
		return true
	})
	return out
}

// Must be called with lock held.
func (t *Table) unsafeMounts() []*Mount {
	out := make([]*Mount, 0, t.mounts.Len())
	t.mounts.Scan(func(_ string, m *Mount) bool {
		out = append(out, m)
		return true
	})
	return out
}

// unsafeRemove deletes m and reports whether its target is no longer mounted.
// Must be called with lock held.
func (t *Table) unsafeRemove(m *Mount) bool {
	t.mounts.Delete(m.EnginePath.Key)
	return t.removeTarget(m.AbsolutePath, m.EnginePath.Key)
}

func (t *Table) addTarget(abs, key string) {
	keys, ok := t.targets[abs]
	if !ok {
		keys = make(map[string]struct{})
		t.targets[abs] = keys
	}
	keys[key] = struct{}{}
}

func (t *Table) removeTarget(abs, key string) bool {
	keys := t.targets[abs]
	delete(keys, key)
	if len(keys) == 0 {
		delete(t.targets, abs)
		return true
	}
	return false
}

// Clean normalises an absolute path to forward slashes without a trailing slash.
// The file system root becomes the empty string.
func Clean(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.ToSlash(filepath.Clean(path)), "/")
}

// hasPathPrefix is data.HasPrefix for cleaned absolute paths.
func hasPathPrefix(path, prefix string) bool {
	return data.HasPrefix(path, prefix)
}

func segments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func notify(released []string, fn func(string)) {
	if fn == nil {
		return
	}
	seen := make(map[string]struct{}, len(released))
	for _, abs := range released {
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		fn(abs)
	}
}
