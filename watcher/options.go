package watcher

import (
	"time"

	"github.com/mwantia/vfsindex/data"
)

type WatcherOptions struct {
	Debounce     time.Duration
	EventBuffer  uint
	UpdateBuffer int
}

type WatcherOption func(*WatcherOptions) error

func newDefaultWatcherOptions() *WatcherOptions {
	return &WatcherOptions{
		Debounce:     33 * time.Millisecond,
		EventBuffer:  4096,
		UpdateBuffer: 64,
	}
}

// WithDebounce sets the interval notifications are collected for before they
// are delivered as one batch.
func WithDebounce(debounce time.Duration) WatcherOption {
	return func(opts *WatcherOptions) error {
		if debounce <= 0 {
			return data.ErrInvalid
		}
		opts.Debounce = debounce
		return nil
	}
}

// WithEventBuffer sizes the fsnotify event channel.
func WithEventBuffer(size uint) WatcherOption {
	return func(opts *WatcherOptions) error {
		opts.EventBuffer = size
		return nil
	}
}
