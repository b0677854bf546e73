package data

import (
	"errors"
	"sync"
)

// Standard errors shared by every package of the index.
var (
	// Path resolution errors
	ErrInvalidPath    = errors.New("vfs: invalid path detected")
	ErrNotMounted     = errors.New("vfs: path not mounted")
	ErrAlreadyMounted = errors.New("vfs: path already mounted")
	ErrNestingDenied  = errors.New("vfs: nesting denied by parent mount")

	// Lookup errors
	ErrNotExist     = errors.New("vfs: file does not exist")
	ErrNotDirectory = errors.New("vfs: not a directory")
	ErrNotArchive   = errors.New("vfs: not an archive")

	// Lifecycle errors
	ErrClosed         = errors.New("vfs: enumerator already closed")
	ErrAlreadyStarted = errors.New("vfs: enumerator already started")
	ErrInvalid        = errors.New("vfs: invalid argument")
)

// Errors collects errors from several independent steps.
type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.errors)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
