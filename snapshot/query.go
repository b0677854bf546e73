package snapshot

import (
	"sort"
)

// SubTree is one directory of a FindSubTree result with the matching files
// directly inside it and the retained subdirectories.
type SubTree struct {
	Directory   *Directory
	Files       []*File
	Directories []*SubTree
}

// IsEmpty reports whether neither files nor subdirectories were retained.
func (t *SubTree) IsEmpty() bool {
	return len(t.Files) == 0 && len(t.Directories) == 0
}

// FileCount counts the files of the whole sub tree.
func (t *SubTree) FileCount() int {
	n := len(t.Files)
	for _, sub := range t.Directories {
		n += sub.FileCount()
	}
	return n
}

// FindDirectories returns the subdirectories of the filter roots, or all their
// descendants for recursive filters, that match the directory rules.
func (s *Snapshot) FindDirectories(filter DirectoryFilter) []*Directory {
	m := filter.Matcher()

	seen := make(map[*Directory]struct{})
	var out []*Directory
	for _, root := range m.roots {
		dir, ok := s.directories.Get(root)
		if !ok {
			continue
		}
		m.collectDirectories(dir, seen, &out)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path.Key < out[j].Path.Key })
	return out
}

func (m *DirectoryMatcher) collectDirectories(dir *Directory, seen map[*Directory]struct{}, out *[]*Directory) {
	if !m.recursive {
		for _, sub := range m.subdirectoryCandidates(dir) {
			if _, ok := seen[sub]; ok {
				continue
			}
			if m.HasDirectory(sub) {
				seen[sub] = struct{}{}
				*out = append(*out, sub)
			}
		}
		return
	}

	for _, sub := range dir.Directories {
		if _, ok := seen[sub]; !ok && m.HasDirectory(sub) {
			seen[sub] = struct{}{}
			*out = append(*out, sub)
		}
		m.collectDirectories(sub, seen, out)
	}
}

// FindFiles returns the files matching the filter in the covered directories.
func (s *Snapshot) FindFiles(filter FileFilter) []*File {
	m := filter.Matcher()

	visited := make(map[*Directory]struct{})
	var out []*File
	for _, root := range m.roots {
		dir, ok := s.directories.Get(root)
		if !ok {
			continue
		}
		m.collectFiles(dir, visited, &out)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path.Key < out[j].Path.Key })
	return out
}

func (m *FileMatcher) collectFiles(dir *Directory, visited map[*Directory]struct{}, out *[]*File) {
	if _, ok := visited[dir]; ok {
		return
	}
	visited[dir] = struct{}{}

	if m.HasDirectory(dir) {
		for _, f := range m.candidates(dir) {
			if m.HasFile(f) {
				*out = append(*out, f)
			}
		}
	}

	if m.recursive {
		for _, sub := range dir.Directories {
			m.collectFiles(sub, visited, out)
		}
	}
}

// FindSubTree returns one hierarchical result per existing filter root, always
// descending into every subdirectory.
func (s *Snapshot) FindSubTree(filter FileFilter) []*SubTree {
	m := filter.Matcher()

	var out []*SubTree
	for _, root := range m.roots {
		dir, ok := s.directories.Get(root)
		if !ok {
			continue
		}
		out = append(out, m.subTree(dir))
	}
	return out
}

// SubTree builds the result of FindSubTree for a single directory.
func (m *FileMatcher) SubTree(dir *Directory) *SubTree {
	return m.subTree(dir)
}

func (m *FileMatcher) subTree(dir *Directory) *SubTree {
	t := &SubTree{Directory: dir}

	if m.HasDirectory(dir) {
		for _, f := range m.candidates(dir) {
			if m.HasFile(f) {
				t.Files = append(t.Files, f)
			}
		}
		sort.Slice(t.Files, func(i, j int) bool { return t.Files[i].Path.Key < t.Files[j].Path.Key })
	}

	for _, sub := range dir.SortedDirectories() {
		child := m.subTree(sub)
		if m.Retains(child) {
			t.Directories = append(t.Directories, child)
		}
	}

	return t
}

// Retains decides whether a sub tree node stays in a result.
func (m *FileMatcher) Retains(t *SubTree) bool {
	if !m.skipEmpty {
		return true
	}
	if !t.IsEmpty() {
		return true
	}
	return m.hasOwnRule && m.HasDirectory(t.Directory)
}
