package scanner

import (
	"time"

	"github.com/mwantia/vfsindex/data"
)

type ScannerOptions struct {
	PreferredBudget time.Duration
	FlushInterval   time.Duration
	ResultBuffer    int
}

type ScannerOption func(*ScannerOptions) error

func newDefaultScannerOptions() *ScannerOptions {
	return &ScannerOptions{
		PreferredBudget: 25 * time.Millisecond,
		FlushInterval:   100 * time.Millisecond,
		ResultBuffer:    16,
	}
}

// WithPreferredBudget limits how long preferred directories are scanned before
// their batch is flushed.
func WithPreferredBudget(budget time.Duration) ScannerOption {
	return func(opts *ScannerOptions) error {
		if budget <= 0 {
			return data.ErrInvalid
		}
		opts.PreferredBudget = budget
		return nil
	}
}

func WithFlushInterval(interval time.Duration) ScannerOption {
	return func(opts *ScannerOptions) error {
		if interval <= 0 {
			return data.ErrInvalid
		}
		opts.FlushInterval = interval
		return nil
	}
}

func WithResultBuffer(size int) ScannerOption {
	return func(opts *ScannerOptions) error {
		if size < 0 {
			return data.ErrInvalid
		}
		opts.ResultBuffer = size
		return nil
	}
}
