// Package inflight accumulates scanner results, monitor events and archive
// contents against a base snapshot and commits them into the next snapshot.
//
// An Update is not safe for concurrent use. It is owned by the worker
// goroutine, which is the only writer of the virtual tree.
package inflight

import (
	"strings"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/snapshot"
)

type Update struct {
	base  *snapshot.Snapshot
	root  *change
	types *filetype.Store

	// renamed maps key paths renamed in this window to their new engine path.
	renamed map[string]data.EnginePath

	retype bool
	dirty  bool
}

// New starts an empty update on top of base. A nil base starts from an empty tree.
func New(base *snapshot.Snapshot, types *filetype.Store) *Update {
	if base == nil {
		base = snapshot.Empty()
	}

	return &Update{
		base:    base,
		root:    newRoot(base),
		types:   types,
		renamed: make(map[string]data.EnginePath),
	}
}

// Base returns the snapshot pending changes are applied to.
func (u *Update) Base() *snapshot.Snapshot {
	return u.base
}

// IsDirty reports whether any operation was recorded since the last commit.
func (u *Update) IsDirty() bool {
	return u.dirty
}

// RegisterFileTypes replaces the type table. Every file is classified again on the next commit.
func (u *Update) RegisterFileTypes(types *filetype.Store) {
	u.types = types
	u.retype = true
	u.dirty = true
}

// AddDirectory records that provider p contributes a directory at path. Missing
// parents are created for p.
func (u *Update) AddDirectory(p data.Provider, path string, info data.ProviderInfo) {
	u.add(p, data.NewEnginePath(path), info, false)
}

// AddFile records that provider p contributes a file at path.
func (u *Update) AddFile(p data.Provider, path string, info data.ProviderInfo) {
	u.add(p, data.NewEnginePath(path), info, true)
}

// UpdateFile refreshes the size and modification time of a file seen by p. An
// unknown file is added.
func (u *Update) UpdateFile(p data.Provider, path string, info data.ProviderInfo) {
	ep := data.NewEnginePath(path)
	if c := u.find(ep.Key); c != nil && info.FullName == "" {
		if current, ok := c.providers.Get(p); ok {
			info.FullName = current.FullName
		}
	}
	u.add(p, ep, info, true)
}

// RemovePath removes the contribution of p at path and below it. Nodes left
// without providers disappear.
func (u *Update) RemovePath(p data.Provider, path string) {
	key := data.Key(path)
	if key == "" {
		return
	}

	if c := u.find(key); c != nil {
		u.removeProvider(c, p)
	}
}

// ApplyDirectoryScanResult makes entries the complete child list of path for
// provider p: children p contributed that are missing from entries are
// removed, every entry is added or updated. Nothing happens when the directory
// itself is unknown.
func (u *Update) ApplyDirectoryScanResult(p data.Provider, path string, entries []data.ProviderInfo) {
	c := u.find(data.Key(path))
	if c == nil || c.isFile() {
		return
	}
	if !c.providers.Has(p) && c.parent != nil {
		u.setProvider(c, p, data.ProviderInfo{FullName: c.fullName()})
	}

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.FullName = strings.Trim(entry.FullName, "/\\"); entry.FullName != "" {
			names[data.Fold(entry.FullName)] = struct{}{}
		}
	}

	for _, key := range c.keys() {
		if _, ok := names[key]; ok {
			continue
		}
		if ps, ok := c.providersOf(key); !ok || !ps.Has(p) {
			continue
		}
		u.removeProvider(c.get(key, false), p)
	}

	for _, entry := range entries {
		if entry.FullName == "" {
			continue
		}
		key := data.Fold(entry.FullName)
		if ps, ok := c.providersOf(key); ok {
			if current, ok := ps.Get(p); ok && current.Equal(entry) {
				continue
			}
		}
		u.setProvider(c.get(key, true), p, entry)
	}
}

func (u *Update) add(p data.Provider, ep data.EnginePath, info data.ProviderInfo, isFile bool) {
	if ep.IsRoot() {
		return
	}

	info.IsFile = isFile
	if info.FullName == "" {
		info.FullName = ep.Base()
	}

	parent := u.ensure(p, ep.Dir())
	u.setProvider(parent.get(ep.KeyName(), true), p, info)
}

// ensure returns the change of the directory at ep and makes sure p contributes
// every directory on the way there.
func (u *Update) ensure(p data.Provider, ep data.EnginePath) *change {
	return u.ensureFrom(u.root, p, segments(ep.Full))
}

func (u *Update) ensureFrom(c *change, p data.Provider, names []string) *change {
	for _, name := range names {
		ch := c.get(data.Fold(name), true)
		if info, ok := ch.providers.Get(p); !ok || info.IsFile {
			u.setProvider(ch, p, data.ProviderInfo{FullName: name})
		}
		c = ch
	}
	return c
}

// find returns the existing change at key, adopting base nodes along the way,
// or nil when nothing exists there.
func (u *Update) find(key string) *change {
	c := u.root
	for _, name := range segments(key) {
		c = c.get(name, false)
		if c == nil || !c.exists() {
			return nil
		}
	}
	return c
}

// setProvider sets the view of p on c. A provider switching from directory to
// file takes its contributions below c with it.
func (u *Update) setProvider(c *change, p data.Provider, info data.ProviderInfo) {
	current, had := c.providers.Get(p)
	if had && current.Equal(info) {
		return
	}

	wasFile := c.isFile()
	c.providers = c.providers.With(p, info)
	u.dirty = true

	if had && !current.IsFile && info.IsFile {
		for _, key := range c.keys() {
			if ps, ok := c.providersOf(key); ok && ps.Has(p) {
				u.removeProvider(c.get(key, false), p)
			}
		}
	}
	u.settle(c, wasFile)
}

// removeProvider removes p from c and from every descendant it contributes.
func (u *Update) removeProvider(c *change, p data.Provider) {
	if c == nil || c.parent == nil || !c.providers.Has(p) {
		return
	}
	u.dirty = true

	if len(c.providers) == 1 {
		u.remove(c)
		return
	}

	wasFile := c.isFile()
	c.providers = c.providers.Without(p)
	if !c.isFile() {
		for _, key := range c.keys() {
			if ps, ok := c.providersOf(key); ok && ps.Has(p) {
				u.removeProvider(c.get(key, false), p)
			}
		}
	}
	u.settle(c, wasFile)
}

// dropProvider removes p from c alone.
func (u *Update) dropProvider(c *change, p data.Provider) {
	if c == nil || c.parent == nil || !c.providers.Has(p) {
		return
	}
	u.dirty = true

	if len(c.providers) == 1 {
		u.remove(c)
		return
	}
	wasFile := c.isFile()
	c.providers = c.providers.Without(p)
	u.settle(c, wasFile)
}

// remove deletes c with everything below it.
func (u *Update) remove(c *change) {
	if c.archive != nil {
		u.cleanArchive(c)
	}
	c.clear()
	u.dirty = true
}

// settle drops the archive content of c once c stops being a physical file
// and brings back archive members masked while c was a file.
func (u *Update) settle(c *change, wasFile bool) {
	if c.archive != nil {
		if info, ok := c.providers.Get(data.Physical); !ok || !info.IsFile || !c.isFile() {
			u.cleanArchive(c)
		}
	}
	if wasFile && !c.isFile() {
		u.unmask(c)
	}
}

// Inspection is the state of a path in the pending tree.
type Inspection int

const (
	NotFound Inspection = iota
	UnchangedFile
	ChangedFile
	UnchangedDirectory
	ChangedDirectory
)

func (i Inspection) Exists() bool {
	return i != NotFound
}

func (i Inspection) IsFile() bool {
	return i == UnchangedFile || i == ChangedFile
}

// InspectKeyEnginePath reports what lives at path without adopting anything.
// Unchanged nodes are returned from the base snapshot.
func (u *Update) InspectKeyEnginePath(path string) (Inspection, *snapshot.Directory, *snapshot.File) {
	c := u.root
	names := segments(data.Key(path))

	for i, name := range names {
		last := i == len(names)-1

		if ch, ok := c.children[name]; ok {
			if !ch.exists() || (ch.isFile() && !last) {
				return NotFound, nil, nil
			}
			c = ch
			continue
		}

		d, ok := c.baseDirectory(name)
		if !ok {
			if f, ok := c.baseFile(name); ok && last {
				return UnchangedFile, nil, f
			}
			return NotFound, nil, nil
		}

		rest := names[i+1:]
		for j, sub := range rest {
			if j == len(rest)-1 {
				if f, ok := d.Files[sub]; ok {
					return UnchangedFile, nil, f
				}
			}
			if d, ok = d.Directories[sub]; !ok {
				return NotFound, nil, nil
			}
		}
		return UnchangedDirectory, d, nil
	}

	if c.isFile() {
		return ChangedFile, nil, nil
	}
	if c.parent == nil && !u.dirty {
		return UnchangedDirectory, u.base.Root(), nil
	}
	return ChangedDirectory, nil, nil
}

// GetLatestKeyEnginePath maps a key path through the renames recorded in this
// window. It returns an empty string when the parent of the result does not exist.
func (u *Update) GetLatestKeyEnginePath(path string) string {
	if ep, ok := u.GetLatestEnginePath(path); ok {
		return ep.Key
	}
	return ""
}

// GetLatestEnginePath is GetLatestKeyEnginePath keeping the case of path and
// of the new names.
func (u *Update) GetLatestEnginePath(path string) (data.EnginePath, bool) {
	ep := data.NewEnginePath(path)

	for range len(u.renamed) + 1 {
		best := ""
		for from := range u.renamed {
			if data.HasPrefix(ep.Key, from) && len(from) > len(best) {
				best = from
			}
		}
		if best == "" {
			break
		}
		rest := segments(ep.Full)[len(segments(best)):]
		ep = u.renamed[best].Join(strings.Join(rest, "/"))
	}

	if parent := data.Dir(ep.Key); parent != "" {
		if inspection, _, _ := u.InspectKeyEnginePath(parent); !inspection.Exists() || inspection.IsFile() {
			return data.EnginePath{}, false
		}
	}
	return ep, true
}

func segments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/'
	})
}
