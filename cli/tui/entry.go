package tui

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/snapshot"
)

// Entry is one row of the directory listing.
type Entry struct {
	Name      string
	Path      data.EnginePath
	Size      int64
	ModTime   time.Time
	IsDir     bool
	Type      string
	Providers data.Providers
	// Members is the number of files an archive contributes.
	Members int
}

func directoryEntry(d *snapshot.Directory) *Entry {
	return &Entry{
		Name:      d.FullName(),
		Path:      d.Path,
		ModTime:   d.LastModified(),
		IsDir:     true,
		Providers: d.Providers,
	}
}

func fileEntry(f *snapshot.File) *Entry {
	e := &Entry{
		Name:      f.Path.Base(),
		Path:      f.Path,
		Size:      f.Size,
		ModTime:   f.LastModified,
		Type:      f.Type.Name,
		Providers: f.Providers,
	}
	if f.Archive != nil {
		e.Members = len(f.Archive.Files)
	}
	return e
}

// entries lists the directory at path, directories first.
func entries(s *snapshot.Snapshot, path string, filter string) []*Entry {
	d := s.GetDirectoryByEnginePath(path)
	if d == nil {
		return nil
	}

	tokens := data.Tokenize(filter)
	var out []*Entry
	for _, sub := range d.SortedDirectories() {
		if matches(sub.Tokens, tokens) {
			out = append(out, directoryEntry(sub))
		}
	}
	for _, f := range d.SortedFiles() {
		if matches(f.Tokens, tokens) {
			out = append(out, fileEntry(f))
		}
	}
	return out
}

func matches(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if strings.HasPrefix(h, w) {
				return true
			}
		}
	}
	return false
}

func (e *Entry) DisplayName() string {
	if e.IsDir {
		return e.Name + "/"
	}
	return e.Name
}

func (e *Entry) DisplaySize() string {
	switch {
	case e.IsDir:
		return "<DIR>"
	case e.Members > 0:
		return "<PAK>"
	}
	return humanize.Bytes(uint64(e.Size))
}

func (e *Entry) DisplayModTime() string {
	if e.ModTime.IsZero() {
		return "-"
	}
	return e.ModTime.Format("2006-01-02 15:04:05")
}

// Source names the active provider, "disk" for the physical file system.
func (e *Entry) Source() string {
	entry, ok := e.Providers.Active()
	if !ok || entry.Provider.IsPhysical() {
		return "disk"
	}
	return entry.Provider.String()
}

func (e *Entry) Shadowed() bool {
	return e.Providers.HasShadow()
}
