package snapshot

import (
	"sort"
)

type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Created
	Removed
	Modified
	Renamed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	case Renamed:
		return "renamed"
	default:
		return "unchanged"
	}
}

// Update is the result of one commit: the snapshot it started from, the
// snapshot it produced and the tree of node changes between them.
// When nothing changed To equals From and Root is nil.
type Update struct {
	From *Snapshot
	To   *Snapshot
	Root *DirectoryChange
}

// DirectoryChange describes one directory between two snapshots. From is nil for
// created directories, To is nil for removed ones. Removed directories do not
// list their descendants.
type DirectoryChange struct {
	From        *Directory
	To          *Directory
	Directories []*DirectoryChange
	Files       []FileChange
}

// FileChange describes one file between two snapshots, with the same conventions
// as DirectoryChange.
type FileChange struct {
	From *File
	To   *File
}

func (u *Update) IsEmpty() bool {
	return u == nil || u.From == u.To
}

// Walk visits every directory change depth first, parents before children.
func (u *Update) Walk(fn func(c *DirectoryChange) bool) {
	if u == nil || u.Root == nil {
		return
	}
	u.Root.Walk(fn)
}

// Count returns the number of directory and file changes in the update.
func (u *Update) Count() (directories int, files int) {
	u.Walk(func(c *DirectoryChange) bool {
		directories += len(c.Directories)
		files += len(c.Files)
		return true
	})
	return directories, files
}

func (c *DirectoryChange) Kind() ChangeKind {
	return kindOf(c.From != nil, c.To != nil, func() bool {
		return c.From.Path != c.To.Path
	}, func() bool {
		return c.From != c.To
	})
}

// Path returns the latest path of the directory.
func (c *DirectoryChange) Path() string {
	if c.To != nil {
		return c.To.Path.Key
	}
	return c.From.Path.Key
}

// Walk visits c and its nested changes depth first. Returning false skips the nested changes.
func (c *DirectoryChange) Walk(fn func(c *DirectoryChange) bool) {
	if !fn(c) {
		return
	}
	for _, sub := range c.Directories {
		sub.Walk(fn)
	}
}

// Sort orders nested changes by path, recursively.
func (c *DirectoryChange) Sort() {
	sort.Slice(c.Directories, func(i, j int) bool {
		return c.Directories[i].Path() < c.Directories[j].Path()
	})
	sort.Slice(c.Files, func(i, j int) bool {
		return c.Files[i].Path() < c.Files[j].Path()
	})
	for _, sub := range c.Directories {
		sub.Sort()
	}
}

func (c FileChange) Kind() ChangeKind {
	return kindOf(c.From != nil, c.To != nil, func() bool {
		return c.From.Path != c.To.Path
	}, func() bool {
		return c.From != c.To
	})
}

// Path returns the latest path of the file.
func (c FileChange) Path() string {
	if c.To != nil {
		return c.To.Path.Key
	}
	return c.From.Path.Key
}

func kindOf(hasFrom, hasTo bool, moved, differs func() bool) ChangeKind {
	switch {
	case !hasFrom && hasTo:
		return Created
	case hasFrom && !hasTo:
		return Removed
	case !hasFrom && !hasTo:
		return Unchanged
	case moved():
		return Renamed
	case differs():
		return Modified
	default:
		return Unchanged
	}
}
