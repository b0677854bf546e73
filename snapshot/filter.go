package snapshot

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/mwantia/vfsindex/data"
)

// DirectoryFilter selects directories. Tokens are matched case-insensitively
// against the tokens of a directory name, any token matching is enough.
// Callbacks must all accept a directory.
type DirectoryFilter struct {
	// Directories are the engine paths the query starts from; empty means the root.
	Directories []string
	// Recursive extends the query from the direct children to all descendants.
	Recursive bool

	DirectoryTokens    []string
	DirectoryCallbacks []func(*Directory) bool

	// SkipEmptyDirectories drops directories without any match below them from sub tree results.
	SkipEmptyDirectories bool
}

// FileFilter selects files in the directories described by the embedded
// DirectoryFilter. Tokens, extensions and patterns are each OR matched,
// callbacks are AND matched.
type FileFilter struct {
	DirectoryFilter

	FileTokens     []string
	FileExtensions []string
	FileCallbacks  []func(*File) bool
	// Patterns are doublestar globs matched against the key path of a file.
	Patterns []string
}

// DirectoryMatcher is a DirectoryFilter prepared for repeated matching.
type DirectoryMatcher struct {
	roots      []string
	recursive  bool
	tokens     map[string]struct{}
	callbacks  []func(*Directory) bool
	skipEmpty  bool
	hasOwnRule bool
}

// FileMatcher is a FileFilter prepared for repeated matching.
type FileMatcher struct {
	DirectoryMatcher

	tokens     map[string]struct{}
	extensions map[string]struct{}
	callbacks  []func(*File) bool
	patterns   []string
}

func (f DirectoryFilter) Matcher() *DirectoryMatcher {
	m := &DirectoryMatcher{
		recursive: f.Recursive,
		tokens:    toSet(data.NormalizeTokens(f.DirectoryTokens)),
		callbacks: f.DirectoryCallbacks,
		skipEmpty: f.SkipEmptyDirectories,
	}
	m.hasOwnRule = len(m.tokens) > 0 || len(m.callbacks) > 0

	seen := make(map[string]struct{})
	for _, dir := range f.Directories {
		key := data.Key(dir)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		m.roots = append(m.roots, key)
	}
	if len(m.roots) == 0 {
		m.roots = []string{""}
	}

	return m
}

func (f FileFilter) Matcher() *FileMatcher {
	m := &FileMatcher{
		DirectoryMatcher: *f.DirectoryFilter.Matcher(),
		tokens:           toSet(data.NormalizeTokens(f.FileTokens)),
		extensions:       toSet(data.NormalizeExtensions(f.FileExtensions)),
		callbacks:        f.FileCallbacks,
	}
	for _, pattern := range f.Patterns {
		m.patterns = append(m.patterns, data.Fold(pattern))
	}

	return m
}

// Roots returns the folded root paths of the filter.
func (m *DirectoryMatcher) Roots() []string {
	return m.roots
}

func (m *DirectoryMatcher) IsRecursive() bool {
	return m.recursive
}

func (m *DirectoryMatcher) SkipEmpty() bool {
	return m.skipEmpty
}

// HasOwnRule reports whether directories are selected by tokens or callbacks
// rather than by location alone.
func (m *DirectoryMatcher) HasOwnRule() bool {
	return m.hasOwnRule
}

// Covers reports whether the content of the directory at key path is part of the query.
func (m *DirectoryMatcher) Covers(path string) bool {
	for _, root := range m.roots {
		if path == root {
			return true
		}
		if m.recursive && data.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

// CoversSubTree is Covers for sub tree queries, which always include every descendant.
func (m *DirectoryMatcher) CoversSubTree(path string) bool {
	for _, root := range m.roots {
		if data.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

// Leads reports whether path is an ancestor of at least one root, so a walk
// must pass through it to reach the query.
func (m *DirectoryMatcher) Leads(path string) bool {
	for _, root := range m.roots {
		if data.IsStrictPrefix(root, path) {
			return true
		}
	}
	return false
}

// HasDirectory matches the token and callback rules of the filter against d.
func (m *DirectoryMatcher) HasDirectory(d *Directory) bool {
	if len(m.tokens) > 0 && !anyToken(d.Tokens, m.tokens) {
		return false
	}
	for _, callback := range m.callbacks {
		if !callback(d) {
			return false
		}
	}
	return true
}

// HasFile matches the file rules against f. The containing directory is checked
// by the caller.
func (m *FileMatcher) HasFile(f *File) bool {
	if len(m.extensions) > 0 {
		if _, ok := m.extensions[f.Extension]; !ok {
			return false
		}
	}
	if len(m.tokens) > 0 && !anyToken(f.Tokens, m.tokens) {
		return false
	}
	if len(m.patterns) > 0 {
		matched := false
		for _, pattern := range m.patterns {
			if ok, _ := doublestar.Match(pattern, f.Path.Key); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, callback := range m.callbacks {
		if !callback(f) {
			return false
		}
	}
	return true
}

// HasFileIn combines the location, directory and file rules.
func (m *FileMatcher) HasFileIn(dir *Directory, f *File) bool {
	if dir == nil || f == nil {
		return false
	}
	return m.Covers(dir.Path.Key) && m.HasDirectory(dir) && m.HasFile(f)
}

// candidates returns the files of dir worth testing, using the per-directory
// indices when the filter is more selective than a full scan.
func (m *FileMatcher) candidates(dir *Directory) []*File {
	if n := len(m.extensions); n > 0 && n < len(dir.Files) {
		var out []*File
		for ext := range m.extensions {
			out = append(out, dir.extensionFiles[ext]...)
		}
		return out
	}

	if n := len(m.tokens); n > 0 && n < len(dir.Files) {
		seen := make(map[*File]struct{})
		var out []*File
		for token := range m.tokens {
			for _, f := range dir.tokenFiles[token] {
				if _, ok := seen[f]; ok {
					continue
				}
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
		return out
	}

	out := make([]*File, 0, len(dir.Files))
	for _, f := range dir.Files {
		out = append(out, f)
	}
	return out
}

// subdirectoryCandidates is candidates for the directory token index.
func (m *DirectoryMatcher) subdirectoryCandidates(dir *Directory) []*Directory {
	if n := len(m.tokens); n > 0 && n < len(dir.Directories) {
		seen := make(map[*Directory]struct{})
		var out []*Directory
		for token := range m.tokens {
			for _, d := range dir.tokenDirectories[token] {
				if _, ok := seen[d]; ok {
					continue
				}
				seen[d] = struct{}{}
				out = append(out, d)
			}
		}
		return out
	}

	out := make([]*Directory, 0, len(dir.Directories))
	for _, d := range dir.Directories {
		out = append(out, d)
	}
	return out
}

func anyToken(tokens []string, set map[string]struct{}) bool {
	for _, token := range tokens {
		if _, ok := set[token]; ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
