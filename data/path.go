package data

import (
	"strings"
	"unicode/utf8"

	"github.com/mwantia/vfsindex/data/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// EnginePath is a virtual path in two forms: Key is case-folded and used for every
// lookup and comparison, Full keeps the original case for display.
// The root is the empty string, every other path starts with a slash.
type EnginePath struct {
	Key  string `json:"key"`
	Full string `json:"full"`
}

var folder = cases.Fold()

// Root is the engine path of the virtual root directory.
var Root = EnginePath{}

// NewEnginePath cleans path and derives its key form.
func NewEnginePath(path string) EnginePath {
	full := Clean(path)
	return EnginePath{
		Key:  Fold(full),
		Full: full,
	}
}

// ParseEnginePath is like NewEnginePath but rejects paths escaping the root.
func ParseEnginePath(path string) (EnginePath, error) {
	for _, segment := range strings.FieldsFunc(path, isSeparator) {
		if segment == ".." {
			return Root, errors.InvalidPath(nil, path)
		}
	}

	return NewEnginePath(path), nil
}

func (p EnginePath) IsRoot() bool {
	return p.Key == ""
}

// Join appends a single name segment.
func (p EnginePath) Join(name string) EnginePath {
	name = strings.Trim(name, "/\\")
	if name == "" {
		return p
	}

	return EnginePath{
		Key:  p.Key + "/" + Fold(name),
		Full: p.Full + "/" + name,
	}
}

// Append joins a relative, possibly multi-segment path.
func (p EnginePath) Append(relative string) EnginePath {
	rel := Clean(relative)
	if rel == "" {
		return p
	}

	return EnginePath{
		Key:  p.Key + Fold(rel),
		Full: p.Full + rel,
	}
}

// Dir returns the parent path. The parent of the root is the root.
func (p EnginePath) Dir() EnginePath {
	return EnginePath{
		Key:  Dir(p.Key),
		Full: Dir(p.Full),
	}
}

// Base returns the last segment in original case.
func (p EnginePath) Base() string {
	return Base(p.Full)
}

// KeyName returns the last segment in key form.
func (p EnginePath) KeyName() string {
	return Base(p.Key)
}

func (p EnginePath) String() string {
	if p.Full == "" {
		return "/"
	}
	return p.Full
}

// Clean normalises separators, removes empty and "." segments and strips trailing slashes.
// The root is returned as the empty string.
func Clean(path string) string {
	segments := strings.FieldsFunc(path, isSeparator)

	var sb strings.Builder
	sb.Grow(len(path) + 1)
	for _, segment := range segments {
		if segment == "." {
			continue
		}
		sb.WriteByte('/')
		sb.WriteString(segment)
	}

	return sb.String()
}

// Key cleans path and folds it into its lookup form.
func Key(path string) string {
	return Fold(Clean(path))
}

// Fold maps s to its case-insensitive comparison form.
func Fold(s string) string {
	if isASCII(s) {
		return strings.ToLower(s)
	}
	return folder.String(norm.NFC.String(s))
}

// Dir returns everything before the last slash of a cleaned path.
func Dir(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

// Base returns everything after the last slash of a cleaned path.
func Base(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Ext returns the folded extension of name without the leading dot.
func Ext(name string) string {
	name = Base(name)
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}

	return Fold(name[i+1:])
}

// ToRelativePath removes the prefix from path.
// Returns the relative path after the prefix.
// It additionally removes any leading slashes.
func ToRelativePath(path, prefix string) string {
	if prefix == "" {
		return strings.TrimPrefix(path, "/")
	}

	if path == prefix {
		return ""
	}

	relPath := strings.TrimPrefix(path, prefix)
	return strings.TrimPrefix(relPath, "/")
}

// HasPrefix checks if path equals prefix or lies below it.
// Both paths should be cleaned before calling.
func HasPrefix(path, prefix string) bool {
	// Root matches everything
	if prefix == "" {
		return true
	}

	if path == prefix {
		return true
	}

	return len(path) > len(prefix) && path[len(prefix)] == '/' && strings.HasPrefix(path, prefix)
}

// IsStrictPrefix is HasPrefix without the equality case.
func IsStrictPrefix(path, prefix string) bool {
	return path != prefix && HasPrefix(path, prefix)
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
