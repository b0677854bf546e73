package inflight

import (
	"sort"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/snapshot"
)

// change is the pending, mutable shadow of one node of the base snapshot, or of
// a node that does not exist in the base at all.
//
// The visible children of a change are its live children plus every child of
// the base directory that was neither claimed by a live child nor hidden by
// maskAll. Base nodes are only turned into changes (adopted) when an operation
// needs to touch them, so unchanged subtrees cost nothing.
type change struct {
	parent *change
	name   string

	// fromDir or fromFile is the base node this change started from. Each base
	// node is the origin of at most one change.
	fromDir  *snapshot.Directory
	fromFile *snapshot.File

	// providers is empty for removed nodes.
	providers data.Providers
	archive   *snapshot.Archive

	children map[string]*change
	claimed  map[string]struct{}
	// maskAll hides every base child that was not claimed, set once the node
	// has been removed.
	maskAll bool
}

func newRoot(base *snapshot.Snapshot) *change {
	root := base.Root()
	return &change{
		fromDir:   root,
		providers: root.Providers,
	}
}

func (c *change) exists() bool {
	return len(c.providers) > 0
}

func (c *change) isFile() bool {
	return c.providers.IsFile()
}

func (c *change) hasFrom() bool {
	return c.fromDir != nil || c.fromFile != nil
}

// keyPath returns the current key path of the change.
func (c *change) keyPath() string {
	if c.parent == nil {
		return ""
	}
	return c.parent.keyPath() + "/" + c.name
}

// enginePath returns the current engine path with the case of the active providers.
func (c *change) enginePath() data.EnginePath {
	if c.parent == nil {
		return data.Root
	}
	return c.parent.enginePath().Join(c.fullName())
}

func (c *change) fullName() string {
	if active, ok := c.providers.Active(); ok && active.Info.FullName != "" {
		return active.Info.FullName
	}
	if c.fromDir != nil {
		return c.fromDir.FullName()
	}
	if c.fromFile != nil {
		return c.fromFile.FullName()
	}
	return c.name
}

// baseDirectory returns the visible, not yet adopted base directory at key.
func (c *change) baseDirectory(key string) (*snapshot.Directory, bool) {
	if c.fromDir == nil || c.maskAll {
		return nil, false
	}
	if _, ok := c.claimed[key]; ok {
		return nil, false
	}
	d, ok := c.fromDir.Directories[key]
	return d, ok
}

// baseFile is baseDirectory for files.
func (c *change) baseFile(key string) (*snapshot.File, bool) {
	if c.fromDir == nil || c.maskAll {
		return nil, false
	}
	if _, ok := c.claimed[key]; ok {
		return nil, false
	}
	f, ok := c.fromDir.Files[key]
	return f, ok
}

// providersOf returns the providers of the visible child at key without adopting it.
func (c *change) providersOf(key string) (data.Providers, bool) {
	if ch, ok := c.children[key]; ok {
		return ch.providers, ch.exists()
	}
	if d, ok := c.baseDirectory(key); ok {
		return d.Providers, true
	}
	if f, ok := c.baseFile(key); ok {
		return f.Providers, true
	}
	return nil, false
}

// get returns the child change at key. Visible base children are adopted on
// demand. With create set, a missing child is created empty and a child hidden
// by maskAll is revived as an empty change that still remembers its origin.
// The returned change may not exist, callers set its providers.
func (c *change) get(key string, create bool) *change {
	if ch, ok := c.children[key]; ok {
		return ch
	}

	_, claimed := c.claimed[key]
	if !claimed && c.fromDir != nil && (!c.maskAll || create) {
		if d, ok := c.fromDir.Directories[key]; ok {
			ch := &change{parent: c, name: key, fromDir: d}
			if c.maskAll {
				ch.maskAll = true
			} else {
				ch.providers = d.Providers
			}
			return c.attach(ch, true)
		}
		if f, ok := c.fromDir.Files[key]; ok {
			ch := &change{parent: c, name: key, fromFile: f}
			if !c.maskAll {
				ch.providers = f.Providers
				ch.archive = f.Archive
			}
			return c.attach(ch, true)
		}
	}

	if !create {
		return nil
	}
	return c.attach(&change{parent: c, name: key}, false)
}

func (c *change) attach(ch *change, claim bool) *change {
	if c.children == nil {
		c.children = make(map[string]*change)
	}
	c.children[ch.name] = ch

	if claim {
		if c.claimed == nil {
			c.claimed = make(map[string]struct{})
		}
		c.claimed[ch.name] = struct{}{}
	}
	return ch
}

// free reports whether nothing, live or base, is visible at key.
func (c *change) free(key string) bool {
	if _, ok := c.children[key]; ok {
		return false
	}
	_, ok := c.providersOf(key)
	return !ok
}

// keys returns the keys of every existing visible child in sorted order.
func (c *change) keys() []string {
	seen := make(map[string]struct{})
	var out []string
	for key, ch := range c.children {
		if ch.exists() {
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}

	if c.fromDir != nil && !c.maskAll {
		add := func(key string) {
			if _, ok := seen[key]; ok {
				return
			}
			if _, ok := c.claimed[key]; ok {
				return
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
		for key := range c.fromDir.Directories {
			add(key)
		}
		for key := range c.fromDir.Files {
			add(key)
		}
	}

	sort.Strings(out)
	return out
}

// clear turns the change into a removal. Base children become hidden and
// pending children are dropped, the removal of the origin implies theirs.
func (c *change) clear() {
	c.providers = nil
	c.archive = nil
	c.children = nil
	c.claimed = nil
	c.maskAll = true
}
