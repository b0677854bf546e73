package inflight

import (
	"github.com/mwantia/vfsindex/data"
)

// record is the contribution of one provider to one node, relative to the
// node a rename starts from.
type record struct {
	names []string
	info  data.ProviderInfo
}

// RenamePath renames the contribution of p at path to newName inside the same
// directory.
//
// A node only p contributes is moved as a whole when nothing is visible at the
// destination, so it keeps its origin and shows up as renamed. Otherwise the
// contribution of p is split off the node and merged into whatever lives at
// the destination, which may be a new node.
func (u *Update) RenamePath(p data.Provider, path string, newName string) {
	c := u.find(data.Key(path))
	if c == nil || c.parent == nil || !c.providers.Has(p) {
		return
	}

	newKey := data.Fold(newName)
	if newKey == "" {
		return
	}

	info, _ := c.providers.Get(p)
	info.FullName = newName

	if newKey == c.name {
		u.setProvider(c, p, info)
		return
	}

	parent := c.parent
	oldPath := c.keyPath()
	newPath := parent.enginePath().Join(newName)

	if len(c.providers) == 1 && parent.free(newKey) {
		delete(parent.children, c.name)
		c.name = newKey
		parent.attach(c, false)
		c.providers = c.providers.With(p, info)
		u.renamed[oldPath] = newPath
		u.dirty = true
		return
	}

	records := u.collect(c, p, nil)
	records[0].info.FullName = newName

	u.removeProvider(c, p)
	for _, r := range records {
		names := append([]string{newName}, r.names...)
		r.info.FullName = names[len(names)-1]

		at := u.ensureFrom(parent, p, names[:len(names)-1])
		u.setProvider(at.get(data.Fold(r.info.FullName), true), p, r.info)
	}

	u.renamed[oldPath] = newPath
}

// collect returns the contribution of p to c and its descendants, parents
// before children. names are relative to c.
func (u *Update) collect(c *change, p data.Provider, names []string) []record {
	info, ok := c.providers.Get(p)
	if !ok {
		return nil
	}

	out := []record{{names: names, info: info}}
	if info.IsFile {
		return out
	}

	for _, key := range c.keys() {
		ps, ok := c.providersOf(key)
		if !ok {
			continue
		}
		childInfo, ok := ps.Get(p)
		if !ok {
			continue
		}
		childNames := append(append([]string(nil), names...), childInfo.FullName)
		out = append(out, u.collect(c.get(key, false), p, childNames)...)
	}
	return out
}
