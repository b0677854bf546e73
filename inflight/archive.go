package inflight

import (
	"sort"

	"github.com/mwantia/vfsindex/archive"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/snapshot"
)

// SetArchiveContent merges the members of the archive file at path into the
// directory containing it. Members the archive contributed before but no
// longer lists are removed first. It reports false when path is not a
// physical file.
func (u *Update) SetArchiveContent(path string, contents *archive.Contents) bool {
	c := u.find(data.Key(path))
	if c == nil || !c.isFile() {
		return false
	}
	if info, ok := c.providers.Get(data.Physical); !ok || !info.IsFile {
		return false
	}

	// An archive read again at another path takes the id of that path.
	id := data.ArchiveID(c.keyPath())
	if c.archive != nil && c.archive.ID != id {
		u.cleanArchive(c)
	}

	next := &snapshot.Archive{
		ID:          id,
		Files:       make(map[string]struct{}),
		Directories: make(map[string]struct{}),
		Contents:    contents,
	}
	for _, e := range contents.Directories {
		next.Directories[data.Key(e.Path)] = struct{}{}
	}
	for _, e := range contents.Files {
		next.Files[data.Key(e.Path)] = struct{}{}
	}

	// The new record is in place before stale members go, so nothing unmasked
	// on the way is restored from the old member table.
	previous := c.archive
	c.archive = next
	if previous != nil {
		u.dropMembers(c.parent, data.Archive(previous.ID), stale(previous.Files, next.Files), stale(previous.Directories, next.Directories))
	}

	u.addMembers(c.parent, data.Archive(next.ID), contents, "")
	u.dirty = true
	return true
}

// addMembers adds the members of contents below root. With a non-empty
// prefix only members below that relative key path are added.
func (u *Update) addMembers(root *change, p data.Provider, contents *archive.Contents, prefix string) {
	below := func(path string) bool {
		return prefix == "" || data.IsStrictPrefix(data.Key(path), prefix)
	}

	for _, e := range contents.Directories {
		if below(e.Path) {
			u.addBelow(root, p, e.Path, data.ProviderInfo{LastModified: e.ModifiedTime})
		}
	}
	for _, e := range contents.Files {
		if below(e.Path) {
			u.addBelow(root, p, e.Path, data.ProviderInfo{IsFile: true, Size: e.Size, LastModified: e.ModifiedTime})
		}
	}
}

// unmask restores the members archives contribute below c. A file hides the
// directories other providers declare at the same path and a commit keeps
// nothing below a file, so the members come back once c is a directory again.
func (u *Update) unmask(c *change) {
	if c.parent == nil || !c.exists() || c.isFile() {
		return
	}

	// Providers are copied on write, the loop sees the table as it was.
	for _, entry := range c.providers {
		if entry.Provider.IsPhysical() || entry.Info.IsFile {
			continue
		}
		owner, a := c.parent.archiveOwner(entry.Provider.ID)
		if a == nil || a.Contents == nil {
			continue
		}
		u.addMembers(owner, entry.Provider, a.Contents, c.keyPath()[len(owner.keyPath()):])
	}
}

// archiveOwner returns the directory holding the archive file with id,
// searching c and its parents, together with the archive record.
func (c *change) archiveOwner(id uint64) (*change, *snapshot.Archive) {
	for d := c; d != nil; d = d.parent {
		if a := d.archiveFile(id); a != nil {
			return d, a
		}
	}
	return nil, nil
}

func (c *change) archiveFile(id uint64) *snapshot.Archive {
	for _, ch := range c.children {
		if ch.exists() && ch.archive != nil && ch.archive.ID == id {
			return ch.archive
		}
	}
	if c.fromDir == nil || c.maskAll {
		return nil
	}
	for key, f := range c.fromDir.Files {
		if _, ok := c.claimed[key]; ok {
			continue
		}
		if f.Archive != nil && f.Archive.ID == id {
			return f.Archive
		}
	}
	return nil
}

// addBelow adds a member at the relative path below root. Only the member and
// its parents inside the archive receive p, root itself does not.
func (u *Update) addBelow(root *change, p data.Provider, relative string, info data.ProviderInfo) {
	names := segments(data.Clean(relative))
	if len(names) == 0 {
		return
	}

	info.FullName = names[len(names)-1]
	parent := u.ensureFrom(root, p, names[:len(names)-1])
	u.setProvider(parent.get(data.Fold(info.FullName), true), p, info)
}

// CleanArchiveContent removes every member the archive file at path contributes.
func (u *Update) CleanArchiveContent(path string) {
	if c := u.find(data.Key(path)); c != nil && c.archive != nil {
		u.cleanArchive(c)
	}
}

func (u *Update) cleanArchive(c *change) {
	a := c.archive
	c.archive = nil
	u.dirty = true

	if c.parent == nil || a == nil {
		return
	}
	u.dropMembers(c.parent, data.Archive(a.ID), keys(a.Files), keys(a.Directories))
}

// dropMembers removes p from the listed member paths below root. Files go
// first, directories deepest first, so removed directories are already empty.
func (u *Update) dropMembers(root *change, p data.Provider, files []string, directories []string) {
	sort.Slice(directories, func(i, j int) bool {
		return len(directories[i]) > len(directories[j])
	})

	prefix := root.keyPath()
	for _, member := range append(files, directories...) {
		u.dropProvider(u.find(prefix+member), p)
	}
}

func stale(previous, next map[string]struct{}) []string {
	var out []string
	for key := range previous {
		if _, ok := next[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}
