package monitor

import (
	"sort"

	"github.com/mwantia/vfsindex/snapshot"
)

// FilterFiles reduces a commit to the file changes visible through m. A file
// that enters or leaves the filter shows up as created or removed. Removed
// directories are expanded into the removal of their matching files.
func FilterFiles(update *snapshot.Update, m *snapshot.FileMatcher) []snapshot.FileChange {
	if update.IsEmpty() || update.Root == nil {
		return nil
	}

	f := &fileFilter{update: update, m: m}
	f.visit(update.Root)

	sort.SliceStable(f.out, func(i, j int) bool {
		return f.out[i].Path() < f.out[j].Path()
	})
	return f.out
}

type fileFilter struct {
	update *snapshot.Update
	m      *snapshot.FileMatcher
	out    []snapshot.FileChange
}

func (f *fileFilter) relevant(path string) bool {
	return f.m.Covers(path) || f.m.Leads(path)
}

func (f *fileFilter) visit(dc *snapshot.DirectoryChange) {
	var from, to string
	if dc.From != nil {
		from = dc.From.Path.Key
	}
	if dc.To != nil {
		to = dc.To.Path.Key
	}
	if !(dc.From != nil && f.relevant(from)) && !(dc.To != nil && f.relevant(to)) {
		return
	}

	if dc.To == nil {
		f.removed(dc.From)
		return
	}

	for _, fc := range dc.Files {
		if out, ok := filterFile(f.update, &f.m.DirectoryMatcher, f.m, fc, f.m.Covers); ok {
			f.out = append(f.out, out)
		}
	}
	for _, sub := range dc.Directories {
		f.visit(sub)
	}
}

// removed reports every matching file below a removed directory.
func (f *fileFilter) removed(d *snapshot.Directory) {
	if !f.relevant(d.Path.Key) {
		return
	}

	if f.m.Covers(d.Path.Key) && f.m.HasDirectory(d) {
		for _, file := range d.SortedFiles() {
			if f.m.HasFile(file) {
				f.out = append(f.out, snapshot.FileChange{From: file})
			}
		}
	}
	for _, sub := range d.SortedDirectories() {
		f.removed(sub)
	}
}

// filterFile maps one file change onto the view of a filter. covers decides
// which directories are part of the view.
func filterFile(update *snapshot.Update, dm *snapshot.DirectoryMatcher, fm *snapshot.FileMatcher,
	fc snapshot.FileChange, covers func(string) bool) (snapshot.FileChange, bool) {

	visible := func(s *snapshot.Snapshot, file *snapshot.File) *snapshot.File {
		if file == nil {
			return nil
		}
		dir := s.GetDirectoryByEnginePath(file.ParentPath().Key)
		if dir == nil || !covers(dir.Path.Key) || !dm.HasDirectory(dir) || !fm.HasFile(file) {
			return nil
		}
		return file
	}

	out := snapshot.FileChange{
		From: visible(update.From, fc.From),
		To:   visible(update.To, fc.To),
	}
	if out.From == nil && out.To == nil {
		return out, false
	}
	if out.From == out.To {
		return out, false
	}
	return out, true
}

// FilterSubTree reduces a commit to the directory tree visible through m. The
// result keeps the shape of the original change tree; directories that only
// lead to a filter root appear as containers for the changes below them.
func FilterSubTree(update *snapshot.Update, m *snapshot.FileMatcher) []*snapshot.DirectoryChange {
	if update.IsEmpty() || update.Root == nil {
		return nil
	}

	t := &treeFilter{update: update, m: m}
	if root := t.visit(update.Root); root != nil {
		return t.roots(root)
	}
	return nil
}

type treeFilter struct {
	update *snapshot.Update
	m      *snapshot.FileMatcher
}

// roots cuts containers above the filter roots off the filtered tree.
func (t *treeFilter) roots(dc *snapshot.DirectoryChange) []*snapshot.DirectoryChange {
	if t.m.CoversSubTree(dc.Path()) || len(dc.Files) > 0 {
		return []*snapshot.DirectoryChange{dc}
	}
	if dc.To == nil {
		return []*snapshot.DirectoryChange{dc}
	}

	var out []*snapshot.DirectoryChange
	for _, sub := range dc.Directories {
		out = append(out, t.roots(sub)...)
	}
	return out
}

func (t *treeFilter) covered(dc *snapshot.DirectoryChange) (covered bool, leads bool) {
	for _, d := range []*snapshot.Directory{dc.From, dc.To} {
		if d == nil {
			continue
		}
		if t.m.CoversSubTree(d.Path.Key) {
			covered = true
		}
		if t.m.Leads(d.Path.Key) {
			leads = true
		}
	}
	return covered, leads
}

func (t *treeFilter) visit(dc *snapshot.DirectoryChange) *snapshot.DirectoryChange {
	covered, leads := t.covered(dc)
	if !covered && !leads {
		return nil
	}

	switch dc.Kind() {
	case snapshot.Removed:
		if !covered {
			// A removed ancestor takes the whole view with it.
			return &snapshot.DirectoryChange{From: dc.From}
		}
		if t.m.SkipEmpty() && !t.m.Retains(t.m.SubTree(dc.From)) {
			return nil
		}
		return &snapshot.DirectoryChange{From: dc.From}
	}

	out := &snapshot.DirectoryChange{From: dc.From, To: dc.To}

	if covered {
		for _, fc := range dc.Files {
			if fo, ok := filterFile(t.update, &t.m.DirectoryMatcher, t.m, fc, t.m.CoversSubTree); ok {
				out.Files = append(out.Files, fo)
			}
		}
	}
	for _, sub := range dc.Directories {
		if so := t.visit(sub); so != nil {
			out.Directories = append(out.Directories, so)
		}
	}

	nested := len(out.Files) > 0 || len(out.Directories) > 0
	if !covered {
		if nested {
			return out
		}
		return nil
	}

	switch dc.Kind() {
	case snapshot.Created:
		if nested || !t.m.SkipEmpty() {
			return out
		}
		if t.m.Retains(t.m.SubTree(dc.To)) {
			return out
		}
		return nil
	case snapshot.Renamed:
		return out
	}

	if nested || !dc.From.Providers.Equal(dc.To.Providers) {
		return out
	}
	return nil
}
