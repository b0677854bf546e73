// Package vfsindex indexes a hybrid file system made of mounted directories
// and the archives inside them. The Enumerator keeps an immutable snapshot of
// the index up to date in the background and reports changes to monitors.
package vfsindex

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/log"
	"github.com/mwantia/vfsindex/metrics"
	"github.com/mwantia/vfsindex/monitor"
	"github.com/mwantia/vfsindex/mounts"
	"github.com/mwantia/vfsindex/snapshot"
	"github.com/mwantia/vfsindex/worker"
	"github.com/spf13/afero"
)

// Enumerator is the entry point of the index. Every method is safe for
// concurrent use and none of them waits for the index to change.
type Enumerator struct {
	log    *log.Logger
	opts   EnumeratorOptions
	worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	closed  bool
	err     error
}

func NewEnumerator(opts ...EnumeratorOption) (*Enumerator, error) {
	options := newDefaultEnumeratorOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	logger := options.Logger
	if logger == nil {
		logger = log.NewLogger("vfsindex", options.LogLevel, options.LogFile, options.NoTerminalLog)
	}

	fs := options.FileSystem
	if fs == nil {
		fs = afero.NewOsFs()
	}

	watch := !options.NoPlatformMonitor
	if _, ok := fs.(*afero.OsFs); !ok && watch {
		logger.Debug("Platform monitor disabled for file system '%s'", fs.Name())
		watch = false
	}

	var m *metrics.Metrics
	if options.Registerer != nil {
		m = metrics.New(options.Registerer)
	}

	w, err := worker.New(fs, logger.Named("worker"),
		worker.WithCommitInterval(options.CommitInterval),
		worker.WithSaveInterval(options.SaveInterval),
		worker.WithWatch(watch),
		worker.WithFileTypes(filetype.NewStore(options.FileTypes...)),
		worker.WithStore(options.Store),
		worker.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	return &Enumerator{
		log:    logger,
		opts:   *options,
		worker: w,
	}, nil
}

// Start runs the worker until Close is called or ctx is cancelled. Requests
// made before Start are handled once it runs.
func (e *Enumerator) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	go func() {
		if err := e.worker.Run(ctx); err != nil {
			e.log.Error("Enumerator stopped: %v", err)
		}
	}()

	e.log.Info("Enumerator started")
	return nil
}

// Close stops the worker, saves the tree to the store and releases the store.
// Snapshots obtained before remain usable.
func (e *Enumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return e.err
	}
	e.closed = true

	var errs data.Errors
	if e.started {
		e.cancel()
		<-e.worker.Done()
	} else {
		errs.Add(e.worker.Close())
	}

	if e.opts.Store != nil {
		errs.Add(e.opts.Store.Close())
	}
	if e.opts.Logger == nil {
		errs.Add(e.log.Close())
	}

	e.err = errs.Errors()
	return e.err
}

// Done is closed once the worker has stopped.
func (e *Enumerator) Done() <-chan struct{} {
	return e.worker.Done()
}

// GetCurrentSnapshot returns the latest committed snapshot. It never blocks
// and never returns nil.
func (e *Enumerator) GetCurrentSnapshot() *snapshot.Snapshot {
	return e.worker.Current()
}

// AddMountPoint maps the directory absolutePath to enginePath. The channel
// receives false when the mount is rejected.
func (e *Enumerator) AddMountPoint(enginePath, absolutePath string) <-chan bool {
	return e.worker.AddMountPoint(enginePath, absolutePath)
}

// RemoveMountPoint removes the mount at enginePath and every mount below it.
func (e *Enumerator) RemoveMountPoint(enginePath string) <-chan bool {
	return e.worker.RemoveMountPoint(enginePath)
}

func (e *Enumerator) Mounts() []mounts.Mount {
	return e.worker.Mounts()
}

// ScanDirectory rescans the directory at enginePath ahead of background work.
func (e *Enumerator) ScanDirectory(enginePath string) {
	e.worker.ScanDirectory(enginePath, false)
}

// ScanDirectoryRecursive queues a background scan of the subtree at enginePath.
func (e *Enumerator) ScanDirectoryRecursive(enginePath string) {
	e.worker.ScanDirectory(enginePath, true)
}

// RegisterFileTypes adds types to the classification table. Files already
// indexed are classified again on the next commit.
func (e *Enumerator) RegisterFileTypes(types ...*filetype.Type) {
	e.worker.RegisterFileTypes(types...)
}

// StartFileMonitor registers m for changes to the files matching filter.
// Activated is called first with the snapshot the updates start from.
func (e *Enumerator) StartFileMonitor(filter snapshot.FileFilter, m monitor.FileMonitor) uuid.UUID {
	return e.worker.StartFileMonitor(filter, m)
}

// StartSubTreeMonitor registers m for changes below the directories of filter.
func (e *Enumerator) StartSubTreeMonitor(filter snapshot.FileFilter, m monitor.SubTreeMonitor) uuid.UUID {
	return e.worker.StartSubTreeMonitor(filter, m)
}

// StartWeakFileMonitor is StartFileMonitor without keeping m alive. The
// monitor is dropped after m has been garbage collected.
func StartWeakFileMonitor[T any, PT interface {
	*T
	monitor.FileMonitor
}](e *Enumerator, filter snapshot.FileFilter, m PT) uuid.UUID {
	return e.worker.StartFileMonitor(filter, monitor.WeakFile(m))
}

// StartWeakSubTreeMonitor is StartSubTreeMonitor without keeping m alive.
func StartWeakSubTreeMonitor[T any, PT interface {
	*T
	monitor.SubTreeMonitor
}](e *Enumerator, filter snapshot.FileFilter, m PT) uuid.UUID {
	return e.worker.StartSubTreeMonitor(filter, monitor.WeakSubTree(m))
}

// StopMonitor unregisters a monitor. It reports false for unknown ids.
func (e *Enumerator) StopMonitor(id uuid.UUID) bool {
	return e.worker.StopMonitor(id)
}

// IsScanning reports whether directories are still waiting to be scanned.
func (e *Enumerator) IsScanning() bool {
	return e.worker.IsScanning()
}

// WaitIdle blocks until every queued request, scan and commit is done.
func (e *Enumerator) WaitIdle(ctx context.Context) error {
	return e.worker.WaitIdle(ctx)
}

// Save writes the current tree to the store. It does nothing without one.
func (e *Enumerator) Save(ctx context.Context) error {
	return e.worker.Save(ctx)
}
