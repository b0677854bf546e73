// Package snapshot holds the immutable, shareable view of the virtual file tree.
//
// A Snapshot and everything reachable from it is never modified after
// construction, so it can be queried from any goroutine for as long as the
// caller holds on to it. Consecutive snapshots share unchanged directories and
// their btree indices structurally.
package snapshot

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mwantia/vfsindex/data"
	"github.com/tidwall/btree"
)

const tokenSeparator = "\x00"

type Snapshot struct {
	ID         uuid.UUID
	Generation uint64

	root        *Directory
	directories *btree.Map[string, *Directory]
	tokens      *btree.Map[string, *Directory]
	files       int
}

// Empty returns a snapshot that only contains the root directory.
func Empty() *Snapshot {
	root := NewDirectory(data.Root, data.NewProviders(data.Physical, data.ProviderInfo{}), nil, nil)

	s := &Snapshot{
		ID:          uuid.New(),
		root:        root,
		directories: btree.NewMap[string, *Directory](0),
		tokens:      btree.NewMap[string, *Directory](0),
	}
	s.directories.Set(root.Path.Key, root)

	return s
}

// Derive builds the next generation from the receiver. removed lists directories
// of the receiver that are no longer reachable or were replaced, added lists new
// directory nodes. Indices are copied on write, so only touched keys cost anything.
func (s *Snapshot) Derive(root *Directory, removed []*Directory, added []*Directory) *Snapshot {
	next := &Snapshot{
		ID:          uuid.New(),
		Generation:  s.Generation + 1,
		root:        root,
		directories: s.directories.Copy(),
		tokens:      s.tokens.Copy(),
		files:       s.files,
	}

	for _, d := range removed {
		if current, ok := next.directories.Get(d.Path.Key); ok && current == d {
			next.unindex(d)
		}
	}
	for _, d := range added {
		if current, ok := next.directories.Get(d.Path.Key); ok {
			if current == d {
				continue
			}
			next.unindex(current)
		}
		next.index(d)
	}

	// The root is replaced whenever anything below it changed.
	if current, ok := next.directories.Get(root.Path.Key); !ok || current != root {
		if ok {
			next.unindex(current)
		}
		next.index(root)
	}

	return next
}

func (s *Snapshot) index(d *Directory) {
	s.directories.Set(d.Path.Key, d)
	s.files += len(d.Files)
	for _, token := range d.Tokens {
		s.tokens.Set(tokenKey(token, d.Path.Key), d)
	}
}

func (s *Snapshot) unindex(d *Directory) {
	s.directories.Delete(d.Path.Key)
	s.files -= len(d.Files)
	for _, token := range d.Tokens {
		s.tokens.Delete(tokenKey(token, d.Path.Key))
	}
}

func tokenKey(token, path string) string {
	return token + tokenSeparator + path
}

func (s *Snapshot) Root() *Directory {
	return s.root
}

// GetDirectoryByEnginePath returns the directory at path in any case, or nil.
func (s *Snapshot) GetDirectoryByEnginePath(path string) *Directory {
	d, _ := s.directories.Get(data.Key(path))
	return d
}

// GetFileByEnginePath returns the file at path in any case, or nil.
func (s *Snapshot) GetFileByEnginePath(path string) *File {
	key := data.Key(path)
	if key == "" {
		return nil
	}

	parent, ok := s.directories.Get(data.Dir(key))
	if !ok {
		return nil
	}
	return parent.Files[data.Base(key)]
}

// Exists reports whether path is a file or a directory.
func (s *Snapshot) Exists(path string) bool {
	return s.GetDirectoryByEnginePath(path) != nil || s.GetFileByEnginePath(path) != nil
}

func (s *Snapshot) DirectoryCount() int {
	return s.directories.Len()
}

func (s *Snapshot) FileCount() int {
	return s.files
}

// DirectoriesWithToken returns every directory in the tree carrying token, ordered by path.
func (s *Snapshot) DirectoriesWithToken(token string) []*Directory {
	prefix := data.Fold(token) + tokenSeparator

	var out []*Directory
	s.tokens.Ascend(prefix, func(key string, d *Directory) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		out = append(out, d)
		return true
	})
	return out
}

// DirectoriesBelow returns the directory at path and all its descendants in key order.
func (s *Snapshot) DirectoriesBelow(path string) []*Directory {
	key := data.Key(path)

	var out []*Directory
	s.directories.Ascend(key, func(k string, d *Directory) bool {
		if !data.HasPrefix(k, key) {
			// "/a-b" sorts between "/a" and "/a/", keep scanning until past the subtree.
			return strings.HasPrefix(k, key) || key == ""
		}
		out = append(out, d)
		return true
	})
	return out
}

// Walk visits every directory depth first, parents before children, in key order.
// Returning false from fn skips the directory's subtree.
func (s *Snapshot) Walk(fn func(d *Directory) bool) {
	walk(s.root, fn)
}

func walk(d *Directory, fn func(d *Directory) bool) {
	if !fn(d) {
		return
	}
	for _, sub := range d.SortedDirectories() {
		walk(sub, fn)
	}
}
