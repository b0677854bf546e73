// Package filetype classifies files by extension and location.
package filetype

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mwantia/vfsindex/data"
)

// Type describes one kind of asset. Folders restricts the type to files below
// the listed engine paths, which may contain doublestar patterns.
type Type struct {
	Name             string   `json:"name"`
	PrimaryExtension string   `json:"primary_extension"`
	ExtraExtensions  []string `json:"extra_extensions,omitempty"`
	Folders          []string `json:"folders,omitempty"`
}

var unknown = &Type{Name: "Unknown"}

// Unknown is returned for every file no registered type matches.
func Unknown() *Type {
	return unknown
}

func (t *Type) IsUnknown() bool {
	return t == unknown
}

func (t *Type) Extensions() []string {
	return data.NormalizeExtensions(append([]string{t.PrimaryExtension}, t.ExtraExtensions...))
}

// Store is an immutable, precedence ordered table of types. Registering more
// types produces a new store, so snapshots may keep referencing the old one.
type Store struct {
	types []*Type
	byExt map[string][]*entry
}

type entry struct {
	typ      *Type
	folders  []string
	patterns []string
}

func NewStore(types ...*Type) *Store {
	s := &Store{
		byExt: make(map[string][]*entry),
	}
	s.add(types...)
	return s
}

// With returns a new store holding the receiver's types followed by types.
func (s *Store) With(types ...*Type) *Store {
	if s == nil {
		return NewStore(types...)
	}

	ns := NewStore(s.types...)
	ns.add(types...)
	return ns
}

func (s *Store) Types() []*Type {
	if s == nil {
		return nil
	}
	out := make([]*Type, len(s.types))
	copy(out, s.types)
	return out
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.types)
}

// Resolve returns the first registered type matching the extension and the key
// path of the containing directory, or Unknown.
func (s *Store) Resolve(ext string, directory string) *Type {
	if s == nil || ext == "" {
		return unknown
	}

	for _, e := range s.byExt[data.Fold(ext)] {
		if e.matches(directory) {
			return e.typ
		}
	}
	return unknown
}

func (s *Store) add(types ...*Type) {
	for _, t := range types {
		if t == nil {
			continue
		}
		s.types = append(s.types, t)

		e := &entry{typ: t}
		for _, folder := range t.Folders {
			if strings.ContainsAny(folder, "*?[{") {
				e.patterns = append(e.patterns, data.Fold(folder))
			} else {
				e.folders = append(e.folders, data.Key(folder))
			}
		}

		for _, ext := range t.Extensions() {
			s.byExt[ext] = append(s.byExt[ext], e)
		}
	}
}

func (e *entry) matches(directory string) bool {
	if len(e.folders) == 0 && len(e.patterns) == 0 {
		return true
	}

	for _, folder := range e.folders {
		if data.HasPrefix(directory, folder) {
			return true
		}
	}
	for _, pattern := range e.patterns {
		if ok, _ := doublestar.Match(pattern, directory); ok {
			return true
		}
	}
	return false
}
