// Package scanner enumerates physical directories on a background goroutine.
//
// Two queues feed the scanner. The preferred queue holds single directories a
// user is waiting for; it is serviced first within a fixed time budget and its
// results are flushed immediately. The background queue walks whole trees
// breadth first and flushes its results on a slower interval.
package scanner

import (
	"context"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/log"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
)

// Link is a symbolic link found during a scan. Links are never followed by the
// scanner itself.
type Link struct {
	Name   string
	Target string
	IsDir  bool
}

// Result is the complete listing of one directory.
type Result struct {
	AbsolutePath string
	Directories  []data.ProviderInfo
	Files        []data.ProviderInfo
	Links        []Link
	// Err is set when the directory could not be read, for example because it
	// vanished between being queued and being scanned.
	Err error

	// subdirectories in their on-disk spelling, queued by recursive scans.
	subdirectories []string
}

// Entries returns directories followed by files.
func (r *Result) Entries() []data.ProviderInfo {
	out := make([]data.ProviderInfo, 0, len(r.Directories)+len(r.Files))
	out = append(out, r.Directories...)
	out = append(out, r.Files...)
	return out
}

type Scanner struct {
	fs   afero.Fs
	log  *log.Logger
	opts ScannerOptions

	mu            sync.Mutex
	preferred     []string
	background    []string
	preferredSet  map[string]struct{}
	backgroundSet map[string]struct{}

	wake    chan struct{}
	results chan []Result
	active  chan bool

	isActive atomic.Bool
}

func New(fs afero.Fs, logger *log.Logger, opts ...ScannerOption) (*Scanner, error) {
	options := newDefaultScannerOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.Discard()
	}

	return &Scanner{
		fs:      fs,
		log:     logger,
		opts:    *options,
		wake:    make(chan struct{}, 1),
		results: make(chan []Result, options.ResultBuffer),
		active:  make(chan bool, 1),

		preferredSet:  make(map[string]struct{}),
		backgroundSet: make(map[string]struct{}),
	}, nil
}

// Results delivers batches of directory listings.
func (s *Scanner) Results() <-chan []Result {
	return s.results
}

// IsActiveChanged delivers the latest activity state whenever it flips.
func (s *Scanner) IsActiveChanged() <-chan bool {
	return s.active
}

func (s *Scanner) IsActive() bool {
	return s.isActive.Load()
}

// ScanDirectoryPreferred queues a single directory ahead of all background work.
func (s *Scanner) ScanDirectoryPreferred(absolutePath string) {
	s.enqueue(absolutePath, true)
}

// ScanDirectoryRecursiveInBackground queues the tree below absolutePath.
func (s *Scanner) ScanDirectoryRecursiveInBackground(absolutePath string) {
	s.enqueue(absolutePath, false)
}

func (s *Scanner) enqueue(absolutePath string, preferred bool) {
	abs := cleanAbsolute(absolutePath)

	s.mu.Lock()
	if preferred {
		if _, ok := s.preferredSet[abs]; !ok {
			s.preferredSet[abs] = struct{}{}
			s.preferred = append(s.preferred, abs)
		}
	} else {
		s.unsafeEnqueueBackground(abs)
	}
	s.unsafeSetActive(true)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run services both queues until ctx is cancelled. The results channel is
// closed when Run returns.
func (s *Scanner) Run(ctx context.Context) error {
	defer close(s.results)

	var pending []Result
	lastFlush := time.Now()

	for {
		preferred, background := s.pop()

		if preferred == "" && background == "" {
			if len(pending) > 0 {
				if !s.send(ctx, pending) {
					return ctx.Err()
				}
				pending = nil
			}
			s.setIdle()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			lastFlush = time.Now()
			continue
		}

		if preferred != "" {
			batch := []Result{s.scan(preferred)}
			deadline := time.Now().Add(s.opts.PreferredBudget)
			for time.Now().Before(deadline) {
				next := s.popPreferred()
				if next == "" {
					break
				}
				batch = append(batch, s.scan(next))
			}

			if !s.send(ctx, batch) {
				return ctx.Err()
			}
			continue
		}

		result := s.scan(background)
		pending = append(pending, result)
		for _, name := range result.subdirectories {
			s.enqueueChild(path.Join(slashed(background), name))
		}

		if time.Since(lastFlush) >= s.opts.FlushInterval {
			if !s.send(ctx, pending) {
				return ctx.Err()
			}
			pending = nil
			lastFlush = time.Now()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// pop takes the next preferred directory, or the next background directory
// when no preferred work is queued.
func (s *Scanner) pop() (preferred string, background string) {
	if p := s.popPreferred(); p != "" {
		return p, ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.background) == 0 {
		return "", ""
	}
	background = s.background[0]
	s.background = s.background[1:]
	delete(s.backgroundSet, background)

	return "", background
}

func (s *Scanner) popPreferred() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.preferred) == 0 {
		return ""
	}
	p := s.preferred[0]
	s.preferred = s.preferred[1:]
	delete(s.preferredSet, p)
	return p
}

func (s *Scanner) enqueueChild(abs string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsafeEnqueueBackground(cleanAbsolute(abs))
}

// Must be called with lock held.
func (s *Scanner) unsafeEnqueueBackground(abs string) {
	if _, ok := s.backgroundSet[abs]; ok {
		return
	}
	s.backgroundSet[abs] = struct{}{}
	s.background = append(s.background, abs)
}

func (s *Scanner) send(ctx context.Context, batch []Result) bool {
	select {
	case s.results <- batch:
		return true
	case <-ctx.Done():
		return false
	}
}

// setIdle clears the active state unless new work was queued meanwhile.
func (s *Scanner) setIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.preferred) == 0 && len(s.background) == 0 {
		s.unsafeSetActive(false)
	}
}

// Must be called with lock held.
func (s *Scanner) unsafeSetActive(active bool) {
	if s.isActive.Swap(active) == active {
		return
	}

	select {
	case <-s.active:
	default:
	}
	s.active <- active
}

// scan lists one directory. Hidden entries and anything that is neither a
// directory, a regular file nor a link are skipped.
func (s *Scanner) scan(abs string) Result {
	result := Result{AbsolutePath: abs}

	infos, err := afero.ReadDir(s.fs, slashed(abs))
	if err != nil {
		s.log.Debug("Unable to read directory '%s': %v", abs, err)
		result.Err = err
		return result
	}

	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			continue
		}
		name = norm.NFC.String(name)

		mode := fi.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			link, info, ok := s.readLink(path.Join(slashed(abs), fi.Name()), name)
			if !ok {
				continue
			}
			result.Links = append(result.Links, link)
			if link.IsDir {
				result.Directories = append(result.Directories, info)
			} else {
				result.Files = append(result.Files, info)
			}

		case fi.IsDir():
			result.subdirectories = append(result.subdirectories, fi.Name())
			result.Directories = append(result.Directories, data.ProviderInfo{
				FullName:     name,
				LastModified: fi.ModTime(),
			})

		case mode.IsRegular():
			result.Files = append(result.Files, data.ProviderInfo{
				IsFile:       true,
				FullName:     name,
				Size:         fi.Size(),
				LastModified: fi.ModTime(),
			})
		}
	}

	return result
}

// readLink resolves a symbolic link. Dangling links are skipped.
func (s *Scanner) readLink(full string, name string) (Link, data.ProviderInfo, bool) {
	reader, ok := s.fs.(afero.LinkReader)
	if !ok {
		return Link{}, data.ProviderInfo{}, false
	}

	target, err := reader.ReadlinkIfPossible(full)
	if err != nil {
		return Link{}, data.ProviderInfo{}, false
	}
	if !path.IsAbs(target) {
		target = path.Join(path.Dir(full), target)
	}

	fi, err := s.fs.Stat(target)
	if err != nil {
		return Link{}, data.ProviderInfo{}, false
	}

	link := Link{Name: name, Target: cleanAbsolute(target), IsDir: fi.IsDir()}
	info := data.ProviderInfo{
		IsFile:       !fi.IsDir(),
		FullName:     name,
		LastModified: fi.ModTime(),
	}
	if info.IsFile {
		info.Size = fi.Size()
	}
	return link, info, true
}

// cleanAbsolute uses forward slashes without a trailing slash, the file
// system root becomes the empty string.
func cleanAbsolute(p string) string {
	if p == "" {
		return ""
	}
	return strings.TrimSuffix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
}

func slashed(abs string) string {
	if abs == "" {
		return "/"
	}
	return abs
}
