// Package monitor delivers commits to subscribers, each reduced to the part of
// the tree its filter selects.
package monitor

import (
	"github.com/mwantia/vfsindex/snapshot"
)

// FileUpdate holds the file changes of one commit visible through a filter.
type FileUpdate struct {
	From  *snapshot.Snapshot
	To    *snapshot.Snapshot
	Files []snapshot.FileChange
}

// SubTreeUpdate holds the directory and file changes of one commit visible
// through a filter, one tree per affected filter root.
type SubTreeUpdate struct {
	From  *snapshot.Snapshot
	To    *snapshot.Snapshot
	Roots []*snapshot.DirectoryChange
}

// FileMonitor receives Activated once with the snapshot its view starts from,
// then one Update per commit that changes its view.
type FileMonitor interface {
	Activated(s *snapshot.Snapshot)
	Update(u *FileUpdate)
}

// SubTreeMonitor is FileMonitor for hierarchical views.
type SubTreeMonitor interface {
	Activated(s *snapshot.Snapshot)
	Update(u *SubTreeUpdate)
}

// FileMonitorFunc adapts two functions to a FileMonitor.
type FileMonitorFunc struct {
	OnActivated func(s *snapshot.Snapshot)
	OnUpdate    func(u *FileUpdate)
}

func (f FileMonitorFunc) Activated(s *snapshot.Snapshot) {
	if f.OnActivated != nil {
		f.OnActivated(s)
	}
}

func (f FileMonitorFunc) Update(u *FileUpdate) {
	if f.OnUpdate != nil {
		f.OnUpdate(u)
	}
}

// SubTreeMonitorFunc adapts two functions to a SubTreeMonitor.
type SubTreeMonitorFunc struct {
	OnActivated func(s *snapshot.Snapshot)
	OnUpdate    func(u *SubTreeUpdate)
}

func (f SubTreeMonitorFunc) Activated(s *snapshot.Snapshot) {
	if f.OnActivated != nil {
		f.OnActivated(s)
	}
}

func (f SubTreeMonitorFunc) Update(u *SubTreeUpdate) {
	if f.OnUpdate != nil {
		f.OnUpdate(u)
	}
}
