package vfsindex

import "github.com/mwantia/vfsindex/data"

// Errors returned by the enumerator. They are the data package sentinels, so
// errors.Is works with either.
var (
	ErrInvalid        = data.ErrInvalid
	ErrClosed         = data.ErrClosed
	ErrAlreadyStarted = data.ErrAlreadyStarted
)
