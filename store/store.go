// Package store persists the physical part of a snapshot, so an enumerator can
// publish a usable tree before its first scan has finished.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/snapshot"
)

// Record is one node as the physical file system provides it.
type Record struct {
	Path         string    `json:"path"`
	IsFile       bool      `json:"is_file"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Info returns the record as provider info for the inflight builder.
func (r Record) Info() data.ProviderInfo {
	return data.ProviderInfo{
		IsFile:       r.IsFile,
		FullName:     data.Base(data.Clean(r.Path)),
		Size:         r.Size,
		LastModified: r.LastModified,
	}
}

// Store saves and loads records. Save replaces everything stored before.
type Store interface {
	Name() string
	Save(ctx context.Context, records []Record) error
	Load(ctx context.Context) ([]Record, error)
	Close() error
}

// Records flattens the physical contributions of s, parents before children.
// Archive members are not recorded; archives are read again on start.
func Records(s *snapshot.Snapshot) []Record {
	var out []Record
	s.Walk(func(d *snapshot.Directory) bool {
		if !d.IsRoot() {
			info, ok := d.Providers.Get(data.Physical)
			if !ok {
				return false
			}
			out = append(out, Record{
				Path:         d.Path.Full,
				LastModified: info.LastModified,
			})
		}

		for _, f := range d.SortedFiles() {
			info, ok := f.Providers.Get(data.Physical)
			if !ok || !info.IsFile {
				continue
			}
			out = append(out, Record{
				Path:         f.Path.Full,
				IsFile:       true,
				Size:         info.Size,
				LastModified: info.LastModified,
			})
		}
		return true
	})
	return out
}

// Sort orders records by key path, which puts parents before children.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return data.Key(records[i].Path) < data.Key(records[j].Path)
	})
}

// Memory keeps records in memory. It is used when no persistent store is
// configured and in tests.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (*Memory) Name() string {
	return "memory"
}

func (m *Memory) Save(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append([]Record(nil), records...)
	return nil
}

func (m *Memory) Load(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Record(nil), m.records...), nil
}

func (m *Memory) Close() error {
	return nil
}
