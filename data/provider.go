package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

type ProviderKind uint8

const (
	ProviderPhysical ProviderKind = iota
	ProviderArchive
)

// Provider identifies a source contributing a node: the physical file system
// or one specific archive.
type Provider struct {
	Kind ProviderKind
	ID   uint64
}

// Physical is the provider of the real file system.
var Physical = Provider{Kind: ProviderPhysical}

func Archive(id uint64) Provider {
	return Provider{Kind: ProviderArchive, ID: id}
}

// ArchiveID derives the id of the archive file at keyPath. It depends on the
// path alone, so archives contributing the same member resolve the same way
// in every build.
func ArchiveID(keyPath string) uint64 {
	return xxhash.Sum64String(keyPath)
}

func (p Provider) IsPhysical() bool {
	return p.Kind == ProviderPhysical
}

// Less orders providers by precedence: physical first, then archives by ascending id.
func (p Provider) Less(other Provider) bool {
	if p.Kind != other.Kind {
		return p.Kind < other.Kind
	}
	return p.ID < other.ID
}

func (p Provider) String() string {
	if p.IsPhysical() {
		return "physical"
	}
	return fmt.Sprintf("archive:%x", p.ID)
}

// ProviderInfo is a node as seen by one provider.
type ProviderInfo struct {
	IsFile       bool      `json:"is_file"`
	FullName     string    `json:"full_name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

func (i ProviderInfo) Equal(other ProviderInfo) bool {
	return i.IsFile == other.IsFile &&
		i.FullName == other.FullName &&
		i.Size == other.Size &&
		i.LastModified.Equal(other.LastModified)
}

type ProviderEntry struct {
	Provider Provider
	Info     ProviderInfo
}

// Providers is a provider table kept in precedence order, so the first entry is
// always the active one. Tables are never modified in place; With and Without
// return new tables.
type Providers []ProviderEntry

func NewProviders(p Provider, info ProviderInfo) Providers {
	return Providers{{Provider: p, Info: info}}
}

// Active returns the winning entry. It reports false for an empty table.
func (ps Providers) Active() (ProviderEntry, bool) {
	if len(ps) == 0 {
		return ProviderEntry{}, false
	}
	return ps[0], true
}

func (ps Providers) Get(p Provider) (ProviderInfo, bool) {
	if i, ok := ps.index(p); ok {
		return ps[i].Info, true
	}
	return ProviderInfo{}, false
}

func (ps Providers) Has(p Provider) bool {
	_, ok := ps.index(p)
	return ok
}

// HasShadow reports whether more than one provider contributes the node.
func (ps Providers) HasShadow() bool {
	return len(ps) > 1
}

// IsFile reports the kind declared by the active provider.
func (ps Providers) IsFile() bool {
	active, ok := ps.Active()
	return ok && active.Info.IsFile
}

// With returns a copy of the table with p set to info.
func (ps Providers) With(p Provider, info ProviderInfo) Providers {
	out := make(Providers, 0, len(ps)+1)
	i, found := ps.index(p)
	out = append(out, ps[:i]...)
	out = append(out, ProviderEntry{Provider: p, Info: info})
	if found {
		i++
	}
	out = append(out, ps[i:]...)
	return out
}

// Without returns a copy of the table with p removed.
func (ps Providers) Without(p Provider) Providers {
	i, found := ps.index(p)
	if !found {
		return ps
	}

	out := make(Providers, 0, len(ps)-1)
	out = append(out, ps[:i]...)
	out = append(out, ps[i+1:]...)
	return out
}

func (ps Providers) Equal(other Providers) bool {
	if len(ps) != len(other) {
		return false
	}
	for i := range ps {
		if ps[i].Provider != other[i].Provider || !ps[i].Info.Equal(other[i].Info) {
			return false
		}
	}
	return true
}

// index returns the position of p or the insertion point when absent.
func (ps Providers) index(p Provider) (int, bool) {
	i := sort.Search(len(ps), func(i int) bool {
		return !ps[i].Provider.Less(p)
	})
	return i, i < len(ps) && ps[i].Provider == p
}
