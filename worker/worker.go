// Package worker owns every mutable part of the index. One goroutine applies
// scanner results, file system notifications, archive contents and client
// requests to the inflight update and commits a new snapshot on a fixed tick.
// Clients only ever see immutable snapshots and monitor updates, the latter
// delivered in order on a separate goroutine.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/vfsindex/archive"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/inflight"
	"github.com/mwantia/vfsindex/log"
	"github.com/mwantia/vfsindex/monitor"
	"github.com/mwantia/vfsindex/mounts"
	"github.com/mwantia/vfsindex/scanner"
	"github.com/mwantia/vfsindex/snapshot"
	"github.com/mwantia/vfsindex/store"
	"github.com/mwantia/vfsindex/watcher"
	"github.com/spf13/afero"
)

type Worker struct {
	log  *log.Logger
	opts WorkerOptions
	fs   afero.Fs

	// Owned by the worker goroutine.
	mounts   *mounts.Table
	scanner  *scanner.Scanner
	watcher  *watcher.Watcher
	archives *archive.Reader
	update   *inflight.Update
	types    *filetype.Store
	pending  map[string]data.EnginePath
	links    map[string]string
	warm     []store.Record
	waiters  []chan<- struct{}
	dirty    bool
	lastSave time.Time

	registry   *monitor.Registry
	requests   *queue[message]
	deliveries *queue[func()]

	current atomic.Pointer[snapshot.Snapshot]
	saving  atomic.Bool
	started atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New creates a stopped worker on fs. Requests sent before Run are handled
// once it starts.
func New(fs afero.Fs, logger *log.Logger, opts ...WorkerOption) (*Worker, error) {
	options := newDefaultWorkerOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.Discard()
	}

	sc, err := scanner.New(fs, logger.Named("scanner"), options.ScannerOptions...)
	if err != nil {
		return nil, err
	}

	var wt *watcher.Watcher
	if options.Watch {
		if wt, err = watcher.New(logger.Named("watcher"), options.WatcherOptions...); err != nil {
			return nil, err
		}
	}

	types := options.FileTypes
	if types == nil {
		types = filetype.NewStore()
	}

	w := &Worker{
		log:        logger,
		opts:       *options,
		fs:         fs,
		mounts:     mounts.NewTable(),
		scanner:    sc,
		watcher:    wt,
		archives:   archive.NewReader(fs, logger.Named("archive")),
		update:     inflight.New(nil, types),
		types:      types,
		pending:    make(map[string]data.EnginePath),
		links:      make(map[string]string),
		registry:   monitor.NewRegistry(logger.Named("monitor")),
		requests:   newQueue[message](),
		deliveries: newQueue[func()](),
		done:       make(chan struct{}),
	}
	w.current.Store(w.update.Base())
	return w, nil
}

// Current returns the latest committed snapshot.
func (w *Worker) Current() *snapshot.Snapshot {
	return w.current.Load()
}

// IsScanning reports whether the scanner has queued work.
func (w *Worker) IsScanning() bool {
	return w.scanner.IsActive()
}

// Mounts lists the mount table. It is safe to call from any goroutine.
func (w *Worker) Mounts() []mounts.Mount {
	return w.mounts.Mounts()
}

// AddMountPoint requests a mount. The channel receives whether it was accepted.
func (w *Worker) AddMountPoint(enginePath, absolutePath string) <-chan bool {
	reply := make(chan bool, 1)
	if !w.send(mountMsg{enginePath: enginePath, absolutePath: absolutePath, reply: reply}) {
		reply <- false
	}
	return reply
}

// RemoveMountPoint requests removal of every mount at or below enginePath.
func (w *Worker) RemoveMountPoint(enginePath string) <-chan bool {
	reply := make(chan bool, 1)
	if !w.send(unmountMsg{enginePath: enginePath, reply: reply}) {
		reply <- false
	}
	return reply
}

// ScanDirectory queues a scan of the directory at enginePath.
func (w *Worker) ScanDirectory(enginePath string, recursive bool) {
	w.send(scanMsg{enginePath: enginePath, recursive: recursive})
}

// RegisterFileTypes appends types to the classification table.
func (w *Worker) RegisterFileTypes(types ...*filetype.Type) {
	w.send(fileTypesMsg{types: types})
}

// StartFileMonitor registers m. Activated is called on the delivery goroutine
// with the snapshot every later update starts from.
func (w *Worker) StartFileMonitor(filter snapshot.FileFilter, m monitor.FileMonitor) uuid.UUID {
	id := w.registry.Reserve()
	w.send(fileMonitorMsg{id: id, filter: filter, monitor: m})
	return id
}

// StartSubTreeMonitor registers m, see StartFileMonitor.
func (w *Worker) StartSubTreeMonitor(filter snapshot.FileFilter, m monitor.SubTreeMonitor) uuid.UUID {
	id := w.registry.Reserve()
	w.send(subTreeMonitorMsg{id: id, filter: filter, monitor: m})
	return id
}

// StopMonitor unregisters a monitor. No update is delivered to it afterwards.
func (w *Worker) StopMonitor(id uuid.UUID) bool {
	stopped := w.registry.Stop(id)
	w.opts.Metrics.SetMonitors(w.registry.Len())
	return stopped
}

// WaitIdle blocks until the scanner is idle, every pending change is
// committed and every resulting monitor update has been delivered.
// Notifications the operating system has not reported yet are not awaited.
func (w *Worker) WaitIdle(ctx context.Context) error {
	reply := make(chan struct{})
	if !w.send(idleMsg{reply: reply}) {
		return data.ErrClosed
	}

	select {
	case <-reply:
		return nil
	case <-w.done:
		return data.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Save writes the current physical tree to the configured store.
func (w *Worker) Save(ctx context.Context) error {
	if w.opts.Store == nil {
		return nil
	}

	reply := make(chan error, 1)
	if !w.send(saveMsg{reply: reply}) {
		return data.ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-w.done:
		return data.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops a worker that was never started. A running worker stops when
// the context passed to Run is cancelled.
func (w *Worker) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return data.ErrClosed
	}
	if !w.started.Load() {
		w.finish()
		if w.watcher != nil {
			return w.watcher.Close()
		}
	}
	return nil
}

func (w *Worker) finish() {
	w.once.Do(func() { close(w.done) })
}

// Done is closed once the worker has stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) send(msg message) bool {
	if w.closed.Load() {
		return false
	}
	w.requests.push(msg)
	return true
}

// Run processes requests until ctx is cancelled. It may only be called once.
func (w *Worker) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return data.ErrAlreadyStarted
	}
	defer w.finish()
	if w.closed.Load() {
		return data.ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.run(ctx, func() error { return w.scanner.Run(ctx) })
	w.run(ctx, func() error { return w.deliver(ctx) })

	var (
		results = w.scanner.Results()
		updates <-chan []watcher.Action
		lost    <-chan string
	)
	if w.watcher != nil {
		updates, lost = w.watcher.Updates(), w.watcher.LostTrack()
		w.run(ctx, func() error { return w.watcher.Run(ctx) })
	}

	w.restore(ctx)
	w.lastSave = time.Now()

	ticker := time.NewTicker(w.opts.CommitInterval)
	defer ticker.Stop()

	w.log.Debug("Worker started with commit interval %s", w.opts.CommitInterval)
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return nil

		case <-w.requests.ready():
			for _, msg := range w.requests.drain() {
				w.handle(ctx, msg)
			}

		case batch, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			w.applyScanResults(batch)

		case active := <-w.scanner.IsActiveChanged():
			w.opts.Metrics.SetScannerActive(active)
			if !active {
				// Records only seed mounts added while the first scans run.
				w.warm = nil
			}

		case actions, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			w.applyActions(actions)

		case abs, ok := <-lost:
			if !ok {
				lost = nil
				continue
			}
			w.log.Warn("Lost track of '%s', rescanning", abs)
			w.opts.Metrics.RecordLostTrack()
			w.scanner.ScanDirectoryRecursiveInBackground(abs)

		case <-ticker.C:
			w.commit(ctx)
			w.notifyIdle()
		}
	}
}

func (w *Worker) run(ctx context.Context, fn func() error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := fn(); err != nil && ctx.Err() == nil {
			w.log.Error("Worker routine failed: %v", err)
		}
	}()
}

func (w *Worker) shutdown() {
	w.closed.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The scanner, watcher, delivery and save routines all end with the run context.
	w.wg.Wait()

	w.commit(ctx)
	// The delivery routine is gone, updates of the last commit run here.
	for _, fn := range w.deliveries.drain() {
		fn()
	}
	if w.opts.Store != nil && w.dirty {
		if err := w.save(ctx, w.update.Base()); err != nil {
			w.log.Warn("Unable to save snapshot on shutdown: %v", err)
		}
	}

	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			w.log.Warn("Unable to close watcher: %v", err)
		}
	}
	w.log.Debug("Worker stopped")
}

func (w *Worker) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case mountMsg:
		m.reply <- w.mount(m.enginePath, m.absolutePath)

	case unmountMsg:
		m.reply <- w.unmount(m.enginePath)

	case scanMsg:
		path := m.enginePath
		// Known directories are scanned with their on-disk case.
		if d := w.update.Base().GetDirectoryByEnginePath(path); d != nil {
			path = d.Path.Full
		}
		abs := w.mounts.GetAbsolutePath(path)
		if abs == "" {
			w.log.Debug("Ignoring scan of unmounted path '%s'", path)
			return
		}
		if m.recursive {
			w.scanner.ScanDirectoryRecursiveInBackground(abs)
		} else {
			w.scanner.ScanDirectoryPreferred(abs)
		}

	case fileTypesMsg:
		w.types = w.types.With(m.types...)
		w.update.RegisterFileTypes(w.types)

	case fileMonitorMsg:
		base := w.update.Base()
		w.deliveries.push(func() {
			w.registry.ActivateFileMonitor(m.id, base, m.filter, m.monitor)
			w.opts.Metrics.SetMonitors(w.registry.Len())
		})

	case subTreeMonitorMsg:
		base := w.update.Base()
		w.deliveries.push(func() {
			w.registry.ActivateSubTreeMonitor(m.id, base, m.filter, m.monitor)
			w.opts.Metrics.SetMonitors(w.registry.Len())
		})

	case idleMsg:
		w.waiters = append(w.waiters, m.reply)

	case saveMsg:
		w.commit(ctx)
		err := w.save(ctx, w.update.Base())
		if err == nil {
			w.dirty = false
			w.lastSave = time.Now()
		}
		m.reply <- err
	}
}

// commit materialises pending changes. Monitor updates are queued for the
// delivery goroutine in commit order.
func (w *Worker) commit(ctx context.Context) {
	w.readArchives()

	if w.update.IsDirty() {
		start := time.Now()
		result := w.update.CreateSnapshot()
		to := result.To

		if result.IsEmpty() {
			w.opts.Metrics.RecordCommit(time.Since(start), false, to.DirectoryCount(), to.FileCount(), to.Generation)
		} else {
			w.current.Store(to)
			w.dirty = true
			w.opts.Metrics.RecordCommit(time.Since(start), true, to.DirectoryCount(), to.FileCount(), to.Generation)

			directories, files := result.Count()
			w.log.Debug("Committed generation %d with %d directory and %d file changes", to.Generation, directories, files)

			w.deliveries.push(func() {
				w.opts.Metrics.RecordMonitorUpdates(w.registry.Dispatch(result))
			})
		}
	}

	if w.opts.Store != nil && w.dirty && !w.closed.Load() && !w.scanner.IsActive() &&
		time.Since(w.lastSave) >= w.opts.SaveInterval {
		w.saveInBackground(ctx, w.update.Base())
	}
}

// notifyIdle answers WaitIdle callers once nothing is left to do. The answer
// is queued behind every pending monitor update.
func (w *Worker) notifyIdle() {
	if len(w.waiters) == 0 || !w.idle() {
		return
	}
	for _, reply := range w.waiters {
		w.deliveries.push(func() { close(reply) })
	}
	w.waiters = nil
}

func (w *Worker) idle() bool {
	if w.requests.len() > 0 || w.update.IsDirty() || len(w.pending) > 0 {
		return false
	}
	if w.scanner.IsActive() || len(w.scanner.Results()) > 0 {
		return false
	}
	return w.watcher == nil || len(w.watcher.Updates()) == 0
}

// deliver runs queued client callbacks in order until ctx is cancelled.
func (w *Worker) deliver(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.deliveries.ready():
			for _, fn := range w.deliveries.drain() {
				fn()
			}
		}
	}
}
