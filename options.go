package vfsindex

import (
	"time"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/log"
	"github.com/mwantia/vfsindex/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

type EnumeratorOptions struct {
	LogLevel      log.LogLevel
	LogFile       string
	NoTerminalLog bool
	Logger        *log.Logger

	FileSystem        afero.Fs
	CommitInterval    time.Duration
	SaveInterval      time.Duration
	NoPlatformMonitor bool
	FileTypes         []*filetype.Type
	Store             store.Store
	Registerer        prometheus.Registerer
}

type EnumeratorOption func(*EnumeratorOptions) error

func newDefaultEnumeratorOptions() *EnumeratorOptions {
	return &EnumeratorOptions{
		LogLevel:       log.Info,
		CommitInterval: 33 * time.Millisecond,
		SaveInterval:   30 * time.Second,
	}
}

func WithLogLevel(logLevel log.LogLevel) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.LogLevel = logLevel
		return nil
	}
}

func WithoutTerminalLog() EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.NoTerminalLog = true
		return nil
	}
}

func WithLogFile(logFile string) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.LogFile = logFile
		return nil
	}
}

// WithLogger replaces the logger built from the log options.
func WithLogger(logger *log.Logger) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.Logger = logger
		return nil
	}
}

// WithFileSystem indexes fs instead of the operating system file system.
// The platform monitor only runs on the operating system file system.
func WithFileSystem(fs afero.Fs) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		if fs == nil {
			return data.ErrInvalid
		}
		opts.FileSystem = fs
		return nil
	}
}

func WithCommitInterval(interval time.Duration) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		if interval <= 0 {
			return data.ErrInvalid
		}
		opts.CommitInterval = interval
		return nil
	}
}

// WithSaveInterval sets how often a changed tree is written to the store.
func WithSaveInterval(interval time.Duration) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		if interval <= 0 {
			return data.ErrInvalid
		}
		opts.SaveInterval = interval
		return nil
	}
}

func WithoutPlatformMonitor() EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.NoPlatformMonitor = true
		return nil
	}
}

func WithFileTypes(types ...*filetype.Type) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.FileTypes = append(opts.FileTypes, types...)
		return nil
	}
}

// WithStore persists the physical tree to s and restores it on Start. The
// enumerator closes s when it is closed.
func WithStore(s store.Store) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.Store = s
		return nil
	}
}

func WithMetrics(reg prometheus.Registerer) EnumeratorOption {
	return func(opts *EnumeratorOptions) error {
		opts.Registerer = reg
		return nil
	}
}
