package worker

import (
	"context"
	stderrors "errors"
	"io/fs"
	"strings"
	"time"

	"github.com/mwantia/vfsindex/archive"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/data/errors"
	"github.com/mwantia/vfsindex/mounts"
	"github.com/mwantia/vfsindex/scanner"
	"github.com/mwantia/vfsindex/snapshot"
	"github.com/mwantia/vfsindex/store"
	"github.com/mwantia/vfsindex/watcher"
)

// mount adds the mount, seeds it from stored records and starts watching and
// scanning its target.
func (w *Worker) mount(enginePath, absolutePath string) bool {
	return w.addMount(enginePath, absolutePath, false)
}

// mountLink mounts the target of a directory link inside an existing mount.
func (w *Worker) mountLink(enginePath, absolutePath string) bool {
	return w.addMount(enginePath, absolutePath, true)
}

func (w *Worker) addMount(enginePath, absolutePath string, link bool) bool {
	ep := data.NewEnginePath(enginePath)
	abs := mounts.Clean(absolutePath)

	fi, err := w.fs.Stat(osPath(abs))
	if err != nil || !fi.IsDir() {
		w.log.Warn("Unable to mount '%s' at '%s': not a directory", absolutePath, ep)
		return false
	}
	add := w.mounts.AddMountPoint
	if link {
		add = w.mounts.AddLinkMount
	}
	if !add(ep.Full, absolutePath) {
		w.log.Debug("Mount of '%s' at '%s' rejected", absolutePath, ep)
		return false
	}
	w.opts.Metrics.SetMounts(w.mounts.Len())

	if !ep.IsRoot() {
		w.update.AddDirectory(data.Physical, ep.Full, data.ProviderInfo{
			FullName:     ep.Base(),
			LastModified: fi.ModTime(),
		})
	}
	w.seed(ep)

	if w.watcher != nil {
		w.watcher.AddPath(osPath(abs))
	}
	w.scanner.ScanDirectoryRecursiveInBackground(abs)

	w.log.Info("Mounted '%s' at '%s'", absolutePath, ep)
	return true
}

// unmount removes every mount at or below enginePath and everything they provided.
func (w *Worker) unmount(enginePath string) bool {
	ep := data.NewEnginePath(enginePath)
	before := w.mounts.Len()

	w.mounts.RemoveMountsIn(ep.Key, func(abs string) {
		if w.watcher != nil {
			w.watcher.RemovePath(osPath(abs))
		}
	})
	if w.mounts.Len() == before {
		return false
	}
	w.opts.Metrics.SetMounts(w.mounts.Len())

	for key := range w.links {
		if data.HasPrefix(key, ep.Key) {
			delete(w.links, key)
		}
	}

	if ep.IsRoot() {
		w.update.ApplyDirectoryScanResult(data.Physical, "", nil)
	} else {
		w.update.RemovePath(data.Physical, ep.Full)
		// A mount above may provide the same path from its own target.
		if abs := w.mounts.GetAbsolutePath(ep.Dir().Full); abs != "" {
			w.scanner.ScanDirectoryPreferred(abs)
		}
	}

	w.log.Info("Unmounted '%s'", ep)
	return true
}

// seed applies stored records below ep, so the tree is usable before the first scan.
func (w *Worker) seed(ep data.EnginePath) {
	seeded := 0
	for _, r := range w.warm {
		key := data.Key(r.Path)
		if key == ep.Key || !data.HasPrefix(key, ep.Key) {
			continue
		}
		if r.IsFile {
			w.update.AddFile(data.Physical, r.Path, r.Info())
		} else {
			w.update.AddDirectory(data.Physical, r.Path, r.Info())
		}
		seeded++
	}
	if seeded > 0 {
		w.log.Debug("Seeded %d stored records below '%s'", seeded, ep)
	}
}

// restore loads the stored records used by seed.
func (w *Worker) restore(ctx context.Context) {
	if w.opts.Store == nil {
		return
	}

	records, err := w.opts.Store.Load(ctx)
	w.opts.Metrics.RecordStore("load", err)
	if err != nil {
		w.log.Warn("%v", errors.StoreUnavailable(err, w.opts.Store.Name()))
		return
	}

	store.Sort(records)
	w.warm = records
	w.log.Info("Loaded %d records from %s store", len(records), w.opts.Store.Name())
}

func (w *Worker) save(ctx context.Context, s *snapshot.Snapshot) error {
	if w.opts.Store == nil {
		return nil
	}

	err := w.opts.Store.Save(ctx, store.Records(s))
	w.opts.Metrics.RecordStore("save", err)
	if err != nil {
		return errors.StoreUnavailable(err, w.opts.Store.Name())
	}
	return nil
}

// saveInBackground saves s unless a save is still running.
func (w *Worker) saveInBackground(ctx context.Context, s *snapshot.Snapshot) {
	if !w.saving.CompareAndSwap(false, true) {
		return
	}
	w.dirty = false
	w.lastSave = time.Now()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.saving.Store(false)

		if err := w.save(ctx, s); err != nil && ctx.Err() == nil {
			w.log.Warn("Unable to save snapshot: %v", err)
		}
	}()
}

// enginePaths returns the engine paths abs is indexed at. Paths served by a
// deeper mount with another target are skipped.
func (w *Worker) enginePaths(abs string) []data.EnginePath {
	abs = mounts.Clean(abs)

	var out []data.EnginePath
	w.mounts.ForEachEnginePath(abs, func(ep data.EnginePath) {
		if mounts.Clean(w.mounts.GetAbsolutePath(ep.Full)) == abs {
			out = append(out, ep)
		}
	})
	return out
}

func (w *Worker) applyScanResults(batch []scanner.Result) {
	succeeded, failed := 0, 0

	for i := range batch {
		r := &batch[i]
		if r.Err != nil {
			failed++
			if stderrors.Is(r.Err, fs.ErrNotExist) {
				for _, ep := range w.enginePaths(r.AbsolutePath) {
					w.update.RemovePath(data.Physical, ep.Full)
					w.unlinkBelow(ep)
				}
				// Links pointing into the vanished tree go as well.
				for _, key := range w.mounts.RemoveLinkTarget(r.AbsolutePath, w.unwatch) {
					delete(w.links, key)
				}
				w.opts.Metrics.SetMounts(w.mounts.Len())
			}
			continue
		}
		succeeded++

		for _, ep := range w.enginePaths(r.AbsolutePath) {
			if !ep.IsRoot() {
				if inspection, _, _ := w.update.InspectKeyEnginePath(ep.Key); !inspection.Exists() || inspection.IsFile() {
					w.update.AddDirectory(data.Physical, ep.Full, data.ProviderInfo{FullName: ep.Base()})
				}
			}
			w.update.ApplyDirectoryScanResult(data.Physical, ep.Full, r.Entries())

			for _, f := range r.Files {
				w.queueArchive(ep.Join(f.FullName), f)
			}
			w.applyLinks(ep, r.Links)
		}
	}

	w.opts.Metrics.RecordScanBatch(succeeded, failed)
}

// applyLinks mounts the targets of directory links found in the directory at
// ep and unmounts links that disappeared from it.
func (w *Worker) applyLinks(ep data.EnginePath, links []scanner.Link) {
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		if !link.IsDir {
			continue
		}
		linked := ep.Join(link.Name)
		seen[linked.Key] = struct{}{}

		if target, ok := w.links[linked.Key]; ok && target == link.Target {
			continue
		}
		if _, ok := w.links[linked.Key]; ok {
			w.mounts.RemoveMountsIn(linked.Key, w.unwatch)
		}
		if w.mountLink(linked.Full, link.Target) {
			w.links[linked.Key] = link.Target
		}
	}

	for key := range w.links {
		if data.Dir(key) != ep.Key {
			continue
		}
		if _, ok := seen[key]; !ok {
			delete(w.links, key)
			w.mounts.RemoveMountsIn(key, w.unwatch)
			w.opts.Metrics.SetMounts(w.mounts.Len())
		}
	}
}

// unlinkBelow drops link mounts at or below ep.
func (w *Worker) unlinkBelow(ep data.EnginePath) {
	for key := range w.links {
		if data.HasPrefix(key, ep.Key) {
			delete(w.links, key)
			w.mounts.RemoveMountsIn(key, w.unwatch)
		}
	}
	w.opts.Metrics.SetMounts(w.mounts.Len())
}

func (w *Worker) unwatch(abs string) {
	if w.watcher != nil {
		w.watcher.RemovePath(osPath(abs))
	}
}

func (w *Worker) applyActions(actions []watcher.Action) {
	for _, action := range actions {
		w.opts.Metrics.RecordWatcherAction(action.Kind.String())

		for _, ep := range w.enginePaths(action.Path) {
			switch action.Kind {
			case watcher.Remove:
				w.update.RemovePath(data.Physical, ep.Full)
				w.unlinkBelow(ep)

			case watcher.Rename:
				moved := w.update.Base().GetDirectoryByEnginePath(ep.Key)
				w.update.RenamePath(data.Physical, ep.Full, action.NewName)
				w.mounts.RenameMount(ep.Key, action.NewName)
				w.renameLinks(ep, action.NewName)

				renamed := ep.Dir().Join(action.NewName)
				w.requeueArchives(ep, renamed, moved)
				if archive.IsArchive(action.NewName) {
					w.pending[renamed.Key] = renamed
				} else {
					w.update.CleanArchiveContent(renamed.Full)
				}

			case watcher.CreateDirectory:
				w.update.AddDirectory(data.Physical, ep.Full, action.Info)
				// A directory moved into the tree arrives without events for its content.
				w.scanner.ScanDirectoryRecursiveInBackground(action.Path)

			case watcher.ModifyDirectory:
				w.update.AddDirectory(data.Physical, ep.Full, action.Info)

			case watcher.CreateFile:
				w.update.AddFile(data.Physical, ep.Full, action.Info)
				w.queueArchive(ep, action.Info)

			case watcher.ModifyFile:
				w.update.UpdateFile(data.Physical, ep.Full, action.Info)
				w.queueArchive(ep, action.Info)
			}
		}
	}
}

func (w *Worker) renameLinks(ep data.EnginePath, newName string) {
	renamed := ep.Dir().Join(newName)
	for key, target := range w.links {
		if data.HasPrefix(key, ep.Key) {
			delete(w.links, key)
			w.links[renamed.Key+key[len(ep.Key):]] = target
		}
	}
}

// queueArchive schedules a read of the archive at ep unless the committed
// snapshot already holds its contents for the same file.
func (w *Worker) queueArchive(ep data.EnginePath, info data.ProviderInfo) {
	if !archive.IsArchive(ep.Key) {
		return
	}
	if archive.IsLevelArchive(ep.Key) {
		w.opts.Metrics.RecordArchive("skipped")
		return
	}

	if f := w.update.Base().GetFileByEnginePath(ep.Key); f != nil && f.Archive != nil {
		if current, ok := f.Providers.Get(data.Physical); ok && current.Size == info.Size && current.LastModified.Equal(info.LastModified) {
			return
		}
	}
	w.pending[ep.Key] = ep
}

// requeueArchives moves archives queued at or below ep to renamed. Every
// committed archive below d, the directory at ep before the rename, is read
// again so it takes the id of its new path. d is nil for files.
func (w *Worker) requeueArchives(ep, renamed data.EnginePath, d *snapshot.Directory) {
	var queued []data.EnginePath
	for key, q := range w.pending {
		if data.HasPrefix(key, ep.Key) {
			delete(w.pending, key)
			queued = append(queued, q)
		}
	}
	for _, q := range queued {
		rest := strings.Split(q.Full, "/")[strings.Count(ep.Full, "/")+1:]
		moved := renamed.Join(strings.Join(rest, "/"))
		w.pending[moved.Key] = moved
	}

	var walk func(d *snapshot.Directory)
	walk = func(d *snapshot.Directory) {
		for _, f := range d.Files {
			if f.Archive == nil {
				continue
			}
			if latest, ok := w.update.GetLatestEnginePath(f.Path.Full); ok {
				w.pending[latest.Key] = latest
			}
		}
		for _, sub := range d.Directories {
			walk(sub)
		}
	}
	if d != nil {
		walk(d)
	}
}

// readArchives merges the contents of every queued archive.
func (w *Worker) readArchives() {
	for key, ep := range w.pending {
		delete(w.pending, key)

		abs := w.mounts.GetAbsolutePath(ep.Full)
		if abs == "" {
			continue
		}

		contents, err := w.archives.GetContents(abs)
		if err != nil {
			w.log.Warn("%v", err)
			w.opts.Metrics.RecordArchive("error")
			w.update.CleanArchiveContent(ep.Full)
			continue
		}
		if w.update.SetArchiveContent(ep.Full, contents) {
			w.opts.Metrics.RecordArchive("read")
			w.log.Debug("Merged %d members of '%s'", contents.Len(), ep)
		}
	}
}

// osPath turns a cleaned absolute path back into one the file system accepts.
func osPath(abs string) string {
	if abs == "" || strings.HasSuffix(abs, ":") {
		return abs + "/"
	}
	return abs
}
