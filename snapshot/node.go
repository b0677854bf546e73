package snapshot

import (
	"sort"
	"time"

	"github.com/mwantia/vfsindex/archive"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
)

// Directory is one immutable virtual folder. Fields must not be modified once the
// directory has been published in a snapshot.
type Directory struct {
	Path      data.EnginePath
	Providers data.Providers
	Tokens    []string

	Directories map[string]*Directory
	Files       map[string]*File

	tokenDirectories map[string][]*Directory
	tokenFiles       map[string][]*File
	extensionFiles   map[string][]*File
}

// File is one immutable virtual file.
type File struct {
	Path         data.EnginePath
	Providers    data.Providers
	Tokens       []string
	Extension    string
	Type         *filetype.Type
	Size         int64
	LastModified time.Time
	// Archive is set when the file is an archive whose content is merged into the tree.
	Archive *Archive
}

// Archive records the member key paths an archive file contributes, so its
// content can be removed again without rescanning it. Contents keeps the
// member table the paths were built from.
type Archive struct {
	ID          uint64
	Files       map[string]struct{}
	Directories map[string]struct{}
	Contents    *archive.Contents
}

// NewDirectory builds a directory and its per-directory lookup indices.
// The maps are owned by the directory afterwards.
func NewDirectory(path data.EnginePath, providers data.Providers, directories map[string]*Directory, files map[string]*File) *Directory {
	if directories == nil {
		directories = make(map[string]*Directory)
	}
	if files == nil {
		files = make(map[string]*File)
	}

	d := &Directory{
		Path:        path,
		Providers:   providers,
		Tokens:      data.Tokenize(path.Base()),
		Directories: directories,
		Files:       files,

		tokenDirectories: make(map[string][]*Directory),
		tokenFiles:       make(map[string][]*File),
		extensionFiles:   make(map[string][]*File),
	}

	for _, sub := range directories {
		for _, token := range sub.Tokens {
			d.tokenDirectories[token] = append(d.tokenDirectories[token], sub)
		}
	}
	for _, file := range files {
		for _, token := range file.Tokens {
			d.tokenFiles[token] = append(d.tokenFiles[token], file)
		}
		d.extensionFiles[file.Extension] = append(d.extensionFiles[file.Extension], file)
	}

	return d
}

// NewFile builds a file from its active provider. typ may be nil for Unknown.
func NewFile(path data.EnginePath, providers data.Providers, typ *filetype.Type, archive *Archive) *File {
	if typ == nil {
		typ = filetype.Unknown()
	}

	f := &File{
		Path:      path,
		Providers: providers,
		Tokens:    data.TokenizeFile(path.Base()),
		Extension: data.Ext(path.Key),
		Type:      typ,
		Archive:   archive,
	}
	if active, ok := providers.Active(); ok {
		f.Size = active.Info.Size
		f.LastModified = active.Info.LastModified
	}

	return f
}

func (d *Directory) KeyName() string {
	return d.Path.KeyName()
}

func (d *Directory) FullName() string {
	return d.Path.Base()
}

func (d *Directory) ParentPath() data.EnginePath {
	return d.Path.Dir()
}

func (d *Directory) IsRoot() bool {
	return d.Path.IsRoot()
}

func (d *Directory) ActiveProvider() data.Provider {
	active, _ := d.Providers.Active()
	return active.Provider
}

func (d *Directory) HasShadow() bool {
	return d.Providers.HasShadow()
}

func (d *Directory) LastModified() time.Time {
	active, _ := d.Providers.Active()
	return active.Info.LastModified
}

// GetDirectory returns the direct subdirectory with the given name in any case.
func (d *Directory) GetDirectory(name string) *Directory {
	return d.Directories[data.Fold(name)]
}

// GetFile returns the direct file with the given name in any case.
func (d *Directory) GetFile(name string) *File {
	return d.Files[data.Fold(name)]
}

func (d *Directory) DirectoriesWithToken(token string) []*Directory {
	return d.tokenDirectories[data.Fold(token)]
}

func (d *Directory) FilesWithToken(token string) []*File {
	return d.tokenFiles[data.Fold(token)]
}

func (d *Directory) FilesWithExtension(ext string) []*File {
	return d.extensionFiles[data.Fold(ext)]
}

// SortedDirectories returns the subdirectories ordered by key name.
func (d *Directory) SortedDirectories() []*Directory {
	out := make([]*Directory, 0, len(d.Directories))
	for _, sub := range d.Directories {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.Key < out[j].Path.Key })
	return out
}

// SortedFiles returns the files ordered by key name.
func (d *Directory) SortedFiles() []*File {
	out := make([]*File, 0, len(d.Files))
	for _, file := range d.Files {
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.Key < out[j].Path.Key })
	return out
}

// IsEmpty reports whether the directory has neither files nor subdirectories.
func (d *Directory) IsEmpty() bool {
	return len(d.Directories) == 0 && len(d.Files) == 0
}

func (f *File) KeyName() string {
	return f.Path.KeyName()
}

func (f *File) FullName() string {
	return f.Path.Base()
}

func (f *File) ParentPath() data.EnginePath {
	return f.Path.Dir()
}

func (f *File) ActiveProvider() data.Provider {
	active, _ := f.Providers.Active()
	return active.Provider
}

func (f *File) HasShadow() bool {
	return f.Providers.HasShadow()
}

func (f *File) IsArchive() bool {
	return f.Archive != nil
}

// Equal compares the content of two archive records.
func (a *Archive) Equal(other *Archive) bool {
	if a == other {
		return true
	}
	if a == nil || other == nil || a.ID != other.ID {
		return false
	}
	return equalSet(a.Files, other.Files) && equalSet(a.Directories, other.Directories) &&
		equalContents(a.Contents, other.Contents)
}

func equalContents(a, b *archive.Contents) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return equalEntries(a.Directories, b.Directories) && equalEntries(a.Files, b.Files)
}

func equalEntries(a, b []archive.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || a[i].IsFolder != b[i].IsFolder || a[i].Size != b[i].Size ||
			!a[i].ModifiedTime.Equal(b[i].ModifiedTime) {
			return false
		}
	}
	return true
}

func equalSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
