package inflight

import (
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/snapshot"
)

// commit materializes one update. It collects the directories leaving and
// entering the path index of the next snapshot.
type commit struct {
	u       *Update
	removed []*snapshot.Directory
	added   []*snapshot.Directory
}

// CreateSnapshot turns the pending changes into the next snapshot and resets
// the update on top of it. Unchanged subtrees are shared with the base. When
// nothing changed, the returned update has To equal to From.
func (u *Update) CreateSnapshot() *snapshot.Update {
	base := u.base
	if !u.dirty {
		return &snapshot.Update{From: base, To: base}
	}

	m := &commit{u: u}
	root, rc := m.directory(u.root, data.Root)

	result := &snapshot.Update{From: base, To: base}
	if root != base.Root() {
		result.To = base.Derive(root, m.removed, m.added)
		result.Root = rc
		rc.Sort()
	}

	u.reset(result.To)
	return result
}

func (u *Update) reset(base *snapshot.Snapshot) {
	u.base = base
	u.root = newRoot(base)
	u.renamed = make(map[string]data.EnginePath)
	u.retype = false
	u.dirty = false
}

// directory materializes the existing directory change c at path.
func (m *commit) directory(c *change, path data.EnginePath) (*snapshot.Directory, *snapshot.DirectoryChange) {
	dirs := make(map[string]*snapshot.Directory)
	files := make(map[string]*snapshot.File)
	dc := &snapshot.DirectoryChange{From: c.fromDir}

	if c.fromDir != nil {
		for key, d := range c.fromDir.Directories {
			if _, ok := c.children[key]; ok {
				continue
			}
			if c.maskAll {
				m.removeDirectory(dc, d)
				continue
			}
			if _, ok := c.claimed[key]; ok {
				continue
			}

			nd, sub := m.carryDirectory(d, path.Join(d.FullName()))
			dirs[key] = nd
			if sub != nil {
				dc.Directories = append(dc.Directories, sub)
			}
		}

		for key, f := range c.fromDir.Files {
			if _, ok := c.children[key]; ok {
				continue
			}
			if c.maskAll {
				dc.Files = append(dc.Files, snapshot.FileChange{From: f})
				continue
			}
			if _, ok := c.claimed[key]; ok {
				continue
			}

			nf := m.carryFile(f, path)
			files[key] = nf
			if nf != f {
				dc.Files = append(dc.Files, snapshot.FileChange{From: f, To: nf})
			}
		}
	}

	for key, ch := range c.children {
		m.child(ch, key, path, dc, dirs, files)
	}

	if c.fromDir != nil && c.fromDir.Path == path && c.fromDir.Providers.Equal(c.providers) &&
		sameChildren(c.fromDir, dirs, files) {
		return c.fromDir, nil
	}

	nd := snapshot.NewDirectory(path, c.providers, dirs, files)
	if c.fromDir != nil {
		m.removed = append(m.removed, c.fromDir)
	}
	m.added = append(m.added, nd)

	dc.To = nd
	return nd, dc
}

// child materializes one pending child of a directory change.
func (m *commit) child(ch *change, key string, parent data.EnginePath, dc *snapshot.DirectoryChange,
	dirs map[string]*snapshot.Directory, files map[string]*snapshot.File) {

	if !ch.exists() {
		if ch.fromDir != nil {
			m.removeDirectory(dc, ch.fromDir)
		}
		if ch.fromFile != nil {
			dc.Files = append(dc.Files, snapshot.FileChange{From: ch.fromFile})
		}
		return
	}

	if ch.isFile() {
		if ch.fromDir != nil {
			m.removeDirectory(dc, ch.fromDir)
		}

		f := m.file(ch, parent)
		files[key] = f
		if f != ch.fromFile {
			dc.Files = append(dc.Files, snapshot.FileChange{From: ch.fromFile, To: f})
		}
		return
	}

	if ch.fromFile != nil {
		dc.Files = append(dc.Files, snapshot.FileChange{From: ch.fromFile})
	}

	d, sub := m.directory(ch, parent.Join(ch.fullName()))
	dirs[key] = d
	if sub != nil {
		dc.Directories = append(dc.Directories, sub)
	}
}

func (m *commit) file(c *change, parent data.EnginePath) *snapshot.File {
	path := parent.Join(c.fullName())
	typ := m.u.types.Resolve(data.Ext(path.Key), parent.Key)

	if from := c.fromFile; from != nil && from.Path == path && from.Type == typ &&
		from.Providers.Equal(c.providers) && from.Archive.Equal(c.archive) {
		return from
	}
	return snapshot.NewFile(path, c.providers, typ, c.archive)
}

// carryDirectory moves an untouched base directory to path. It is shared as is
// unless its path or the type of one of its files changes.
func (m *commit) carryDirectory(d *snapshot.Directory, path data.EnginePath) (*snapshot.Directory, *snapshot.DirectoryChange) {
	if d.Path == path && !m.u.retype {
		return d, nil
	}

	dirs := make(map[string]*snapshot.Directory, len(d.Directories))
	files := make(map[string]*snapshot.File, len(d.Files))
	dc := &snapshot.DirectoryChange{From: d}

	for key, sub := range d.Directories {
		nd, sc := m.carryDirectory(sub, path.Join(sub.FullName()))
		dirs[key] = nd
		if sc != nil {
			dc.Directories = append(dc.Directories, sc)
		}
	}
	for key, f := range d.Files {
		nf := m.carryFile(f, path)
		files[key] = nf
		if nf != f {
			dc.Files = append(dc.Files, snapshot.FileChange{From: f, To: nf})
		}
	}

	if d.Path == path && len(dc.Directories) == 0 && len(dc.Files) == 0 {
		return d, nil
	}

	nd := snapshot.NewDirectory(path, d.Providers, dirs, files)
	m.removed = append(m.removed, d)
	m.added = append(m.added, nd)

	dc.To = nd
	return nd, dc
}

func (m *commit) carryFile(f *snapshot.File, parent data.EnginePath) *snapshot.File {
	path := parent.Join(f.FullName())

	typ := f.Type
	if m.u.retype || path != f.Path {
		typ = m.u.types.Resolve(f.Extension, parent.Key)
	}

	if path == f.Path && typ == f.Type {
		return f
	}
	return snapshot.NewFile(path, f.Providers, typ, f.Archive)
}

// removeDirectory reports d as removed and drops its whole subtree from the index.
func (m *commit) removeDirectory(dc *snapshot.DirectoryChange, d *snapshot.Directory) {
	dc.Directories = append(dc.Directories, &snapshot.DirectoryChange{From: d})

	var walk func(d *snapshot.Directory)
	walk = func(d *snapshot.Directory) {
		m.removed = append(m.removed, d)
		for _, sub := range d.Directories {
			walk(sub)
		}
	}
	walk(d)
}

func sameChildren(d *snapshot.Directory, dirs map[string]*snapshot.Directory, files map[string]*snapshot.File) bool {
	if len(d.Directories) != len(dirs) || len(d.Files) != len(files) {
		return false
	}
	for key, sub := range d.Directories {
		if dirs[key] != sub {
			return false
		}
	}
	for key, f := range d.Files {
		if files[key] != f {
			return false
		}
	}
	return true
}
