package vfsindex_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/mwantia/vfsindex"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/log"
	"github.com/mwantia/vfsindex/monitor"
	"github.com/mwantia/vfsindex/snapshot"
	"github.com/mwantia/vfsindex/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
)

func newTestFs(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"/srv/game/game.cfg":                "sys_spec=4",
		"/srv/game/Objects/Props/Crate.cgf": "crate",
		"/srv/game/Textures/Stone_Wall.dds": "texture",
	} {
		if err := afero.WriteFile(fs, name, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile(%s) failed: %v", name, err)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("Sounds/boom.wav")
	if err != nil {
		t.Fatalf("Failed to create member: %v", err)
	}
	if _, err := fw.Write([]byte("boom")); err != nil {
		t.Fatalf("Failed to write member: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}
	if err := afero.WriteFile(fs, "/srv/game/Assets.pak", buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write archive: %v", err)
	}
	return fs
}

func newEnumerator(t *testing.T, fs afero.Fs, opts ...vfsindex.EnumeratorOption) (*vfsindex.Enumerator, context.Context) {
	t.Helper()

	defaults := []vfsindex.EnumeratorOption{
		vfsindex.WithLogger(log.Discard()),
		vfsindex.WithFileSystem(fs),
		vfsindex.WithCommitInterval(5 * time.Millisecond),
	}
	e, err := vfsindex.NewEnumerator(append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("NewEnumerator failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	t.Cleanup(func() {
		cancel()
		e.Close()
	})

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return e, ctx
}

func mount(t *testing.T, ctx context.Context, e *vfsindex.Enumerator, enginePath, absolutePath string) {
	t.Helper()

	if !<-e.AddMountPoint(enginePath, absolutePath) {
		t.Fatalf("AddMountPoint(%s, %s) rejected", enginePath, absolutePath)
	}
	if err := e.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
}

func TestEnumerator_Query(t *testing.T) {
	e, ctx := newEnumerator(t, newTestFs(t),
		vfsindex.WithFileTypes(&filetype.Type{Name: "Texture", PrimaryExtension: "dds"}))
	mount(t, ctx, e, "/game", "/srv/game")

	s := e.GetCurrentSnapshot()
	if e.IsScanning() {
		t.Error("IsScanning() = true after WaitIdle")
	}

	f := s.GetFileByEnginePath("/GAME/Sounds/BOOM.wav")
	if f == nil {
		t.Fatal("archive member not found")
	}
	if f.Path.Full != "/game/Sounds/boom.wav" {
		t.Errorf("Full = %q, want original case", f.Path.Full)
	}
	if entry, _ := f.Providers.Active(); entry.Provider.IsPhysical() {
		t.Error("archive member reports the physical provider")
	}

	textures := s.FindFiles(snapshot.FileFilter{
		DirectoryFilter: snapshot.DirectoryFilter{Directories: []string{"/game"}, Recursive: true},
		FileExtensions:  []string{"dds"},
	})
	if len(textures) != 1 || textures[0].Type.Name != "Texture" {
		t.Fatalf("Unexpected textures %+v", textures)
	}

	crates := s.FindFiles(snapshot.FileFilter{
		DirectoryFilter: snapshot.DirectoryFilter{Recursive: true},
		FileTokens:      []string{"crate"},
	})
	if len(crates) != 1 || crates[0].Path.Key != "/game/objects/props/crate.cgf" {
		t.Errorf("Unexpected token matches %+v", crates)
	}

	if mounts := e.Mounts(); len(mounts) != 1 || mounts[0].EnginePath.Key != "/game" {
		t.Errorf("Mounts() = %+v", mounts)
	}
}

type treeRecorder struct {
	mu        sync.Mutex
	activated *snapshot.Snapshot
	updates   []*monitor.SubTreeUpdate
}

func (r *treeRecorder) Activated(s *snapshot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activated = s
}

func (r *treeRecorder) Update(u *monitor.SubTreeUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func TestEnumerator_SubTreeMonitor(t *testing.T) {
	fs := newTestFs(t)
	e, ctx := newEnumerator(t, fs)
	mount(t, ctx, e, "/game", "/srv/game")

	rec := &treeRecorder{}
	id := e.StartSubTreeMonitor(snapshot.FileFilter{
		DirectoryFilter: snapshot.DirectoryFilter{Directories: []string{"/game/objects"}, Recursive: true},
	}, rec)

	if err := afero.WriteFile(fs, "/srv/game/Objects/Props/Barrel.cgf", []byte("barrel"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	e.ScanDirectory("/game/objects/props")
	if err := e.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	rec.mu.Lock()
	if rec.activated == nil {
		t.Error("Activated was not called")
	}
	if len(rec.updates) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(rec.updates))
	}
	roots := rec.updates[0].Roots
	if len(roots) != 1 || roots[0].Path() != "/game/objects" {
		t.Errorf("Unexpected roots %+v", roots)
	}
	if rec.updates[0].To != e.GetCurrentSnapshot() {
		t.Error("update does not end at the current snapshot")
	}
	rec.mu.Unlock()

	if !e.StopMonitor(id) {
		t.Error("StopMonitor failed")
	}
	if e.StopMonitor(id) {
		t.Error("second StopMonitor returned true")
	}
}

func TestEnumerator_RemoveMountPoint(t *testing.T) {
	e, ctx := newEnumerator(t, newTestFs(t))
	mount(t, ctx, e, "/game", "/srv/game")

	old := e.GetCurrentSnapshot()
	if !<-e.RemoveMountPoint("/game") {
		t.Fatal("RemoveMountPoint failed")
	}
	if err := e.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	if e.GetCurrentSnapshot().Exists("/game") {
		t.Error("mounted directory still present")
	}
	if old.GetFileByEnginePath("/game/game.cfg") == nil {
		t.Error("old snapshot changed after unmount")
	}
}

func TestEnumerator_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, ctx := newEnumerator(t, newTestFs(t), vfsindex.WithMetrics(reg))
	mount(t, ctx, e, "/game", "/srv/game")

	if n, err := testutil.GatherAndCount(reg, "vfsindex_commits_total"); err != nil || n == 0 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}

func TestEnumerator_StoreOnClose(t *testing.T) {
	s := store.NewMemory()
	e, ctx := newEnumerator(t, newTestFs(t), vfsindex.WithStore(s))
	mount(t, ctx, e, "/game", "/srv/game")

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records, err := s.Load(t.Context())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	found := false
	for _, r := range records {
		if data.Key(r.Path) == "/game/game.cfg" {
			found = true
		}
	}
	if !found {
		t.Errorf("game.cfg not saved, got %+v", records)
	}
}

func TestEnumerator_Lifecycle(t *testing.T) {
	if _, err := vfsindex.NewEnumerator(vfsindex.WithCommitInterval(0)); !errors.Is(err, vfsindex.ErrInvalid) {
		t.Errorf("NewEnumerator = %v, want ErrInvalid", err)
	}

	e, err := vfsindex.NewEnumerator(
		vfsindex.WithLogger(log.Discard()),
		vfsindex.WithFileSystem(afero.NewMemMapFs()),
	)
	if err != nil {
		t.Fatalf("NewEnumerator failed: %v", err)
	}
	if s := e.GetCurrentSnapshot(); s == nil || s.FileCount() != 0 {
		t.Fatal("a new enumerator must publish an empty snapshot")
	}

	if err := e.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(t.Context()); !errors.Is(err, vfsindex.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Start(t.Context()); !errors.Is(err, vfsindex.ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}

	select {
	case <-e.Done():
	default:
		t.Error("Done not closed after Close")
	}
}
