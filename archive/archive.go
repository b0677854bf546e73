// Package archive enumerates the content of pak and zip archives so it can be
// merged into the virtual tree as an overlay.
package archive

import (
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/data/errors"
	"github.com/mwantia/vfsindex/log"
	"github.com/spf13/afero"
)

// Entry is one member of an archive. Path is relative to the archive root,
// slash separated and keeps its original case.
type Entry struct {
	Path         string
	IsFolder     bool
	Size         int64
	ModifiedTime time.Time
}

// Contents lists every directory and file of an archive, both sorted by path.
// Directories include the implicit parents of every member.
type Contents struct {
	Directories []Entry
	Files       []Entry
}

// Len returns the number of members.
func (c *Contents) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Directories) + len(c.Files)
}

type Reader struct {
	fs  afero.Fs
	log *log.Logger
}

func NewReader(fs afero.Fs, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reader{
		fs:  fs,
		log: logger,
	}
}

// GetContents opens the archive at absolutePath and returns its member table.
func (r *Reader) GetContents(absolutePath string) (*Contents, error) {
	if !IsArchive(absolutePath) {
		return nil, errors.ArchiveUnreadable(data.ErrNotArchive, absolutePath)
	}

	f, err := r.fs.Open(absolutePath)
	if err != nil {
		return nil, errors.ArchiveUnreadable(err, absolutePath)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errors.ArchiveUnreadable(err, absolutePath)
	}

	zr, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return nil, errors.ArchiveUnreadable(err, absolutePath)
	}

	contents := Read(zr.File)
	r.log.Debug("Read %d directories and %d files from '%s'", len(contents.Directories), len(contents.Files), absolutePath)
	return contents, nil
}

// Read builds the member table of an already opened zip directory.
func Read(members []*zip.File) *Contents {
	dirs := make(map[string]Entry)
	files := make(map[string]Entry)

	for _, member := range members {
		name := data.Clean(member.Name)
		if name == "" || escapes(name) {
			continue
		}

		info := member.FileInfo()
		if info.IsDir() || strings.HasSuffix(member.Name, "/") {
			addDirectory(dirs, name, member.Modified)
			continue
		}

		addParents(dirs, name)
		files[data.Fold(name)] = Entry{
			Path:         strings.TrimPrefix(name, "/"),
			Size:         int64(member.UncompressedSize64),
			ModifiedTime: member.Modified,
		}
	}

	// A member can be stored as a directory and a file at once, the file wins.
	for key := range files {
		delete(dirs, key)
	}

	c := &Contents{
		Directories: make([]Entry, 0, len(dirs)),
		Files:       make([]Entry, 0, len(files)),
	}
	for _, e := range dirs {
		c.Directories = append(c.Directories, e)
	}
	for _, e := range files {
		c.Files = append(c.Files, e)
	}
	sortEntries(c.Directories)
	sortEntries(c.Files)

	return c
}

func addDirectory(dirs map[string]Entry, name string, modified time.Time) {
	addParents(dirs, name)

	key := data.Fold(name)
	if e, ok := dirs[key]; ok && !e.ModifiedTime.IsZero() {
		return
	}
	dirs[key] = Entry{
		Path:         strings.TrimPrefix(name, "/"),
		IsFolder:     true,
		ModifiedTime: modified,
	}
}

func addParents(dirs map[string]Entry, name string) {
	for parent := data.Dir(name); parent != ""; parent = data.Dir(parent) {
		key := data.Fold(parent)
		if _, ok := dirs[key]; ok {
			return
		}
		dirs[key] = Entry{
			Path:     strings.TrimPrefix(parent, "/"),
			IsFolder: true,
		}
	}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return data.Fold(entries[i].Path) < data.Fold(entries[j].Path)
	})
}

func escapes(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// IsArchive reports whether name has an archive extension.
func IsArchive(name string) bool {
	switch data.Ext(name) {
	case "pak", "zip":
		return true
	}
	return false
}

// IsLevelArchive reports whether the archive belongs to a single level. Level
// archives are loaded and unloaded with their level and are never indexed.
func IsLevelArchive(enginePath string) bool {
	key := data.Key(enginePath)
	for _, segment := range strings.Split(data.Dir(key), "/") {
		if segment == "levels" {
			return true
		}
	}
	return false
}
