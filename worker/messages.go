package worker

import (
	"github.com/google/uuid"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/monitor"
	"github.com/mwantia/vfsindex/snapshot"
)

// message is a request handled on the worker goroutine.
type message interface {
	message()
}

type mountMsg struct {
	enginePath   string
	absolutePath string
	reply        chan<- bool
}

type unmountMsg struct {
	enginePath string
	reply      chan<- bool
}

type scanMsg struct {
	enginePath string
	recursive  bool
}

type fileMonitorMsg struct {
	id      uuid.UUID
	filter  snapshot.FileFilter
	monitor monitor.FileMonitor
}

type subTreeMonitorMsg struct {
	id      uuid.UUID
	filter  snapshot.FileFilter
	monitor monitor.SubTreeMonitor
}

type fileTypesMsg struct {
	types []*filetype.Type
}

type idleMsg struct {
	reply chan<- struct{}
}

type saveMsg struct {
	reply chan<- error
}

func (mountMsg) message()          {}
func (unmountMsg) message()        {}
func (scanMsg) message()           {}
func (fileMonitorMsg) message()    {}
func (subTreeMonitorMsg) message() {}
func (fileTypesMsg) message()      {}
func (idleMsg) message()           {}
func (saveMsg) message()           {}
