package watcher

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/mwantia/vfsindex/data"
)

type ActionKind int

const (
	Remove ActionKind = iota
	Rename
	CreateDirectory
	CreateFile
	ModifyDirectory
	ModifyFile
)

func (k ActionKind) String() string {
	switch k {
	case Remove:
		return "remove"
	case Rename:
		return "rename"
	case CreateDirectory:
		return "create-directory"
	case CreateFile:
		return "create-file"
	case ModifyDirectory:
		return "modify-directory"
	case ModifyFile:
		return "modify-file"
	default:
		return "unknown"
	}
}

// Action is one normalised change below a watched path. Path is absolute with
// forward slashes. NewName is only set for renames, Info only for creations and
// modifications.
type Action struct {
	Kind    ActionKind
	Path    string
	NewName string
	Info    data.ProviderInfo
}

// statFunc is os.Stat, replaceable in tests. Links are described by their target.
type statFunc func(name string) (os.FileInfo, error)

// normalize turns raw notifications into actions, keeping their order.
//
// The rename-from half of a rename arrives as fsnotify.Rename, the rename-to
// half as fsnotify.Create right after it. A pair in the same directory becomes
// one Rename action. A rename-from without its partner left the watched tree
// and becomes a Remove.
func normalize(events []fsnotify.Event, stat statFunc) []Action {
	out := make([]Action, 0, len(events))

	for i := 0; i < len(events); i++ {
		ev := events[i]
		name := cleanPath(ev.Name)
		if isHidden(name) {
			continue
		}

		switch {
		case ev.Has(fsnotify.Rename):
			if i+1 < len(events) {
				next := events[i+1]
				target := cleanPath(next.Name)
				if next.Has(fsnotify.Create) && parent(target) == parent(name) && !isHidden(target) {
					out = append(out, Action{Kind: Rename, Path: name, NewName: base(target)})
					i++
					continue
				}
			}
			out = append(out, Action{Kind: Remove, Path: name})

		case ev.Has(fsnotify.Remove):
			out = append(out, Action{Kind: Remove, Path: name})

		case ev.Has(fsnotify.Create):
			if info, isDir, ok := describe(name, stat); ok {
				kind := CreateFile
				if isDir {
					kind = CreateDirectory
				}
				out = append(out, Action{Kind: kind, Path: name, Info: info})
			}

		case ev.Has(fsnotify.Write):
			if info, isDir, ok := describe(name, stat); ok {
				kind := ModifyFile
				if isDir {
					kind = ModifyDirectory
				}
				out = append(out, Action{Kind: kind, Path: name, Info: info})
			}
		}
	}

	return out
}

// describe stats name. Entries that vanished again or are neither regular
// files nor directories are dropped.
func describe(name string, stat statFunc) (data.ProviderInfo, bool, bool) {
	fi, err := stat(name)
	if err != nil {
		return data.ProviderInfo{}, false, false
	}
	if !fi.IsDir() && !fi.Mode().IsRegular() {
		return data.ProviderInfo{}, false, false
	}

	info := data.ProviderInfo{
		IsFile:       !fi.IsDir(),
		FullName:     base(name),
		LastModified: fi.ModTime(),
	}
	if info.IsFile {
		info.Size = fi.Size()
	}
	return info, fi.IsDir(), true
}

func cleanPath(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.ToSlash(filepath.Clean(name)), "/")
}

func parent(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

func base(name string) string {
	return name[strings.LastIndexByte(name, '/')+1:]
}

func isHidden(name string) bool {
	return strings.HasPrefix(base(name), ".")
}
