package worker

import (
	"fmt"
	"time"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/metrics"
	"github.com/mwantia/vfsindex/scanner"
	"github.com/mwantia/vfsindex/store"
	"github.com/mwantia/vfsindex/watcher"
)

type WorkerOption func(*WorkerOptions) error

type WorkerOptions struct {
	CommitInterval time.Duration
	SaveInterval   time.Duration
	// Watch enables the platform monitor. It requires the operating system
	// file system, so it is disabled for in-memory file systems.
	Watch     bool
	FileTypes *filetype.Store
	Store     store.Store
	Metrics   *metrics.Metrics

	ScannerOptions []scanner.ScannerOption
	WatcherOptions []watcher.WatcherOption
}

func newDefaultWorkerOptions() *WorkerOptions {
	return &WorkerOptions{
		CommitInterval: 33 * time.Millisecond,
		SaveInterval:   30 * time.Second,
		Watch:          true,
	}
}

func WithCommitInterval(interval time.Duration) WorkerOption {
	return func(o *WorkerOptions) error {
		if interval <= 0 {
			return fmt.Errorf("commit interval must be positive: %w", data.ErrInvalid)
		}
		o.CommitInterval = interval
		return nil
	}
}

func WithSaveInterval(interval time.Duration) WorkerOption {
	return func(o *WorkerOptions) error {
		if interval <= 0 {
			return fmt.Errorf("save interval must be positive: %w", data.ErrInvalid)
		}
		o.SaveInterval = interval
		return nil
	}
}

func WithWatch(watch bool) WorkerOption {
	return func(o *WorkerOptions) error {
		o.Watch = watch
		return nil
	}
}

func WithFileTypes(types *filetype.Store) WorkerOption {
	return func(o *WorkerOptions) error {
		o.FileTypes = types
		return nil
	}
}

// WithStore persists the physical tree to s and restores it on start.
func WithStore(s store.Store) WorkerOption {
	return func(o *WorkerOptions) error {
		o.Store = s
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(o *WorkerOptions) error {
		o.Metrics = m
		return nil
	}
}

func WithScannerOptions(opts ...scanner.ScannerOption) WorkerOption {
	return func(o *WorkerOptions) error {
		o.ScannerOptions = append(o.ScannerOptions, opts...)
		return nil
	}
}

func WithWatcherOptions(opts ...watcher.WatcherOption) WorkerOption {
	return func(o *WorkerOptions) error {
		o.WatcherOptions = append(o.WatcherOptions, opts...)
		return nil
	}
}
