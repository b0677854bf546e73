package inflight_test

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mwantia/vfsindex/archive"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/inflight"
	"github.com/mwantia/vfsindex/snapshot"
)

var modified = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fileInfo(name string, size int64) data.ProviderInfo {
	return data.ProviderInfo{IsFile: true, FullName: name, Size: size, LastModified: modified}
}

func dirInfo(name string) data.ProviderInfo {
	return data.ProviderInfo{FullName: name, LastModified: modified}
}

// dump renders every node of a snapshot with all provider views, one line each.
func dump(s *snapshot.Snapshot) string {
	var lines []string
	providers := func(ps data.Providers) string {
		var parts []string
		for _, e := range ps {
			parts = append(parts, fmt.Sprintf("%s{%v %s %d %d}", e.Provider, e.Info.IsFile, e.Info.FullName, e.Info.Size, e.Info.LastModified.Unix()))
		}
		return strings.Join(parts, ",")
	}

	s.Walk(func(d *snapshot.Directory) bool {
		lines = append(lines, fmt.Sprintf("D %s %s", d.Path.Full, providers(d.Providers)))
		for _, f := range d.SortedFiles() {
			lines = append(lines, fmt.Sprintf("F %s %s %s", f.Path.Full, f.Type.Name, providers(f.Providers)))
		}
		return true
	})
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func commit(t *testing.T, u *inflight.Update) *snapshot.Update {
	t.Helper()
	result := u.CreateSnapshot()
	if result.To == nil {
		t.Fatalf("Expected a target snapshot")
	}
	return result
}

func TestUpdate_AddFileIdempotent(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/Data/Game.cfg", fileInfo("Game.cfg", 12))
	u.AddFile(data.Physical, "/data/game.cfg", fileInfo("Game.cfg", 12))

	result := commit(t, u)
	if result.IsEmpty() {
		t.Fatalf("Expected a new snapshot")
	}

	s := result.To
	if s.FileCount() != 1 {
		t.Fatalf("Expected one file, got %d", s.FileCount())
	}
	f := s.GetFileByEnginePath("/data/game.cfg")
	if f == nil || f.Size != 12 || !f.LastModified.Equal(modified) || f.Path.Full != "/Data/Game.cfg" {
		t.Fatalf("Unexpected file %+v", f)
	}

	u.AddFile(data.Physical, "/data/game.cfg", fileInfo("Game.cfg", 12))
	if again := commit(t, u); !again.IsEmpty() {
		t.Fatalf("Expected replaying an identical file to be a no-op")
	}
}

func TestUpdate_NoopCommit(t *testing.T) {
	u := inflight.New(nil, nil)

	first := commit(t, u)
	second := commit(t, u)
	if first.From != first.To || second.From != second.To || first.Root != nil {
		t.Fatalf("Expected no-op commits")
	}

	u.AddDirectory(data.Physical, "/a", dirInfo("a"))
	u.RemovePath(data.Physical, "/a")
	if result := commit(t, u); result.From != result.To {
		t.Fatalf("Expected add and remove in one window to cancel out")
	}
}

func TestUpdate_ProviderPrecedence(t *testing.T) {
	for _, physicalFirst := range []bool{true, false} {
		t.Run(fmt.Sprintf("physical first %v", physicalFirst), func(t *testing.T) {
			u := inflight.New(nil, nil)
			physical := func() { u.AddFile(data.Physical, "/Objects/Crate.cgf", fileInfo("Crate.cgf", 10)) }
			packed := func() { u.AddFile(data.Archive(7), "/objects/CRATE.CGF", fileInfo("CRATE.CGF", 99)) }

			if physicalFirst {
				physical()
				packed()
			} else {
				packed()
				physical()
			}

			s := commit(t, u).To
			f := s.GetFileByEnginePath("/objects/crate.cgf")
			if f == nil {
				t.Fatalf("Expected file to exist")
			}
			if f.FullName() != "Crate.cgf" || f.Size != 10 {
				t.Fatalf("Expected physical view, got %s %d", f.FullName(), f.Size)
			}
			if !f.HasShadow() || !f.ActiveProvider().IsPhysical() {
				t.Fatalf("Expected shadowed physical file")
			}
		})
	}

	t.Run("lowest archive wins", func(t *testing.T) {
		u := inflight.New(nil, nil)
		u.AddFile(data.Archive(9), "/a.txt", fileInfo("A.TXT", 1))
		u.AddFile(data.Archive(3), "/a.txt", fileInfo("a.txt", 2))

		f := commit(t, u).To.GetFileByEnginePath("/a.txt")
		if f.ActiveProvider() != data.Archive(3) || f.Size != 2 {
			t.Fatalf("Expected archive 3 to win, got %s", f.ActiveProvider())
		}

		u.RemovePath(data.Archive(3), "/a.txt")
		f = commit(t, u).To.GetFileByEnginePath("/a.txt")
		if f == nil || f.ActiveProvider() != data.Archive(9) || f.HasShadow() {
			t.Fatalf("Expected archive 9 to be revealed")
		}
	})
}

func TestUpdate_RenameCarriesInfo(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/a/x.txt", fileInfo("x.txt", 42))
	commit(t, u)

	u.RenamePath(data.Physical, "/a/x.txt", "Y.txt")
	result := commit(t, u)

	s := result.To
	if s.GetFileByEnginePath("/a/x.txt") != nil {
		t.Fatalf("Expected old path to be gone")
	}
	f := s.GetFileByEnginePath("/a/y.txt")
	if f == nil || f.Size != 42 || !f.LastModified.Equal(modified) || f.FullName() != "Y.txt" {
		t.Fatalf("Expected renamed file with carried info, got %+v", f)
	}

	var changes []snapshot.FileChange
	result.Walk(func(c *snapshot.DirectoryChange) bool {
		changes = append(changes, c.Files...)
		return true
	})
	if len(changes) != 1 || changes[0].Kind() != snapshot.Renamed || changes[0].From.Path.Key != "/a/x.txt" {
		t.Fatalf("Expected one rename, got %+v", changes)
	}

	// A scan confirming the new state changes nothing.
	u.ApplyDirectoryScanResult(data.Physical, "/a", []data.ProviderInfo{fileInfo("Y.txt", 42)})
	if confirm := commit(t, u); !confirm.IsEmpty() {
		t.Fatalf("Expected confirming scan to be a no-op")
	}
}

func TestUpdate_RenameDirectory(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/levels/forest/terrain.dat", fileInfo("terrain.dat", 1))
	u.AddFile(data.Physical, "/levels/forest/objects/tree.cgf", fileInfo("tree.cgf", 2))
	commit(t, u)

	u.RenamePath(data.Physical, "/levels/forest", "Jungle")
	if got := u.GetLatestKeyEnginePath("/Levels/Forest/Objects/tree.cgf"); got != "/levels/jungle/objects/tree.cgf" {
		t.Fatalf("Expected latest path through rename, got %q", got)
	}
	if got := u.GetLatestKeyEnginePath("/missing/file.txt"); got != "" {
		t.Fatalf("Expected empty latest path for missing parent, got %q", got)
	}
	if ep, ok := u.GetLatestEnginePath("/levels/forest/Objects/Tree.cgf"); !ok || ep.Full != "/levels/Jungle/Objects/Tree.cgf" {
		t.Fatalf("Expected latest path with its case, got %+v", ep)
	}

	result := commit(t, u)
	s := result.To
	if s.GetDirectoryByEnginePath("/levels/forest") != nil || s.GetDirectoryByEnginePath("/levels/forest/objects") != nil {
		t.Fatalf("Expected old directories to be gone from the index")
	}
	if d := s.GetDirectoryByEnginePath("/levels/jungle/objects"); d == nil || d.Path.Full != "/levels/Jungle/objects" {
		t.Fatalf("Expected moved subdirectory, got %+v", d)
	}
	if s.GetFileByEnginePath("/levels/jungle/objects/tree.cgf") == nil {
		t.Fatalf("Expected moved file")
	}
	if s.DirectoryCount() != 4 || s.FileCount() != 2 {
		t.Fatalf("Unexpected counts %d/%d", s.DirectoryCount(), s.FileCount())
	}

	var renamed int
	result.Walk(func(c *snapshot.DirectoryChange) bool {
		if c.Kind() == snapshot.Renamed {
			renamed++
		}
		return true
	})
	if renamed != 2 {
		t.Fatalf("Expected both directories reported as renamed, got %d", renamed)
	}
}

func TestUpdate_SplitAndMerge(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/a/loose.txt", fileInfo("loose.txt", 1))
	u.AddFile(data.Archive(1), "/a/packed.txt", fileInfo("packed.txt", 2))
	s := commit(t, u).To
	if !s.GetDirectoryByEnginePath("/a").HasShadow() {
		t.Fatalf("Expected merged directory")
	}

	// Moving the physical directory splits it from the archive view.
	u.RenamePath(data.Physical, "/a", "b")
	s = commit(t, u).To

	a := s.GetDirectoryByEnginePath("/a")
	if a == nil || a.HasShadow() || a.ActiveProvider() != data.Archive(1) {
		t.Fatalf("Expected archive only directory to stay, got %+v", a)
	}
	if a.GetFile("loose.txt") != nil || a.GetFile("packed.txt") == nil {
		t.Fatalf("Expected only the packed file to stay")
	}
	b := s.GetDirectoryByEnginePath("/b")
	if b == nil || b.HasShadow() || b.GetFile("loose.txt") == nil || b.GetFile("packed.txt") != nil {
		t.Fatalf("Expected physical part at the destination")
	}

	// Moving the archive view onto the physical directory merges them again.
	u.RenamePath(data.Archive(1), "/a", "B")
	s = commit(t, u).To

	if s.GetDirectoryByEnginePath("/a") != nil {
		t.Fatalf("Expected source to disappear")
	}
	b = s.GetDirectoryByEnginePath("/b")
	if b == nil || !b.HasShadow() || len(b.Files) != 2 || b.FullName() != "b" {
		t.Fatalf("Expected merged destination, got %+v", b)
	}
}

func TestUpdate_LostTrackRecovery(t *testing.T) {
	build := func(u *inflight.Update) {
		u.AddDirectory(data.Physical, "/data", dirInfo("data"))
	}

	cold := inflight.New(nil, nil)
	build(cold)
	cold.ApplyDirectoryScanResult(data.Physical, "/data", []data.ProviderInfo{
		fileInfo("a.txt", 1),
		dirInfo("sub"),
	})
	cold.ApplyDirectoryScanResult(data.Physical, "/data/sub", []data.ProviderInfo{
		fileInfo("b.txt", 2),
	})
	want := dump(commit(t, cold).To)

	stale := inflight.New(nil, nil)
	build(stale)
	stale.AddFile(data.Physical, "/data/old.txt", fileInfo("old.txt", 5))
	stale.AddFile(data.Physical, "/data/sub/b.txt", fileInfo("b.txt", 999))
	stale.AddFile(data.Physical, "/data/sub/c.txt", fileInfo("c.txt", 3))
	stale.AddFile(data.Physical, "/data/gone/z.txt", fileInfo("z.txt", 4))
	stale.AddDirectory(data.Physical, "/data/sub", dirInfo("sub"))
	commit(t, stale)

	stale.ApplyDirectoryScanResult(data.Physical, "/data", []data.ProviderInfo{
		fileInfo("a.txt", 1),
		dirInfo("sub"),
	})
	stale.ApplyDirectoryScanResult(data.Physical, "/data/sub", []data.ProviderInfo{
		fileInfo("b.txt", 2),
	})
	got := dump(commit(t, stale).To)

	if got != want {
		t.Fatalf("Expected healed tree to match cold scan\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestUpdate_ScanResultIgnoresOtherProviders(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/d/disk.txt", fileInfo("disk.txt", 1))
	u.AddFile(data.Archive(1), "/d/packed.txt", fileInfo("packed.txt", 1))
	commit(t, u)

	u.ApplyDirectoryScanResult(data.Physical, "/d", nil)
	s := commit(t, u).To

	d := s.GetDirectoryByEnginePath("/d")
	if d == nil || d.GetFile("disk.txt") != nil || d.GetFile("packed.txt") == nil {
		t.Fatalf("Expected only the physical file to be removed")
	}

	u.ApplyDirectoryScanResult(data.Physical, "/unknown", []data.ProviderInfo{fileInfo("x", 1)})
	if !commit(t, u).IsEmpty() {
		t.Fatalf("Expected scan of an unknown directory to be ignored")
	}
}

func TestUpdate_RemoveDirectory(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/a/b/c.txt", fileInfo("c.txt", 1))
	u.AddFile(data.Physical, "/a/d.txt", fileInfo("d.txt", 1))
	u.AddFile(data.Physical, "/keep.txt", fileInfo("keep.txt", 1))
	commit(t, u)

	u.RemovePath(data.Physical, "/A")
	result := commit(t, u)
	s := result.To

	if s.DirectoryCount() != 1 || s.FileCount() != 1 {
		t.Fatalf("Expected only root and keep.txt, got %d/%d", s.DirectoryCount(), s.FileCount())
	}
	if len(result.Root.Directories) != 1 || result.Root.Directories[0].Kind() != snapshot.Removed {
		t.Fatalf("Expected a single directory removal")
	}
	if len(result.Root.Directories[0].Directories) != 0 {
		t.Fatalf("Expected descendants of a removed directory to be implied")
	}
}

func TestUpdate_TypeMutation(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/thing/inner.txt", fileInfo("inner.txt", 1))
	commit(t, u)

	u.AddFile(data.Physical, "/thing", fileInfo("thing", 3))
	result := commit(t, u)
	s := result.To

	if s.GetDirectoryByEnginePath("/thing") != nil || s.GetFileByEnginePath("/thing") == nil {
		t.Fatalf("Expected directory to become a file")
	}
	if s.GetFileByEnginePath("/thing/inner.txt") != nil || s.FileCount() != 1 {
		t.Fatalf("Expected children to be discarded")
	}

	var dirRemoved, fileCreated bool
	for _, c := range result.Root.Directories {
		dirRemoved = dirRemoved || (c.Kind() == snapshot.Removed && c.Path() == "/thing")
	}
	for _, c := range result.Root.Files {
		fileCreated = fileCreated || (c.Kind() == snapshot.Created && c.Path() == "/thing")
	}
	if !dirRemoved || !fileCreated {
		t.Fatalf("Expected removal of the directory and creation of the file")
	}

	u.AddDirectory(data.Physical, "/thing", dirInfo("thing"))
	s = commit(t, u).To
	if d := s.GetDirectoryByEnginePath("/thing"); d == nil || !d.IsEmpty() {
		t.Fatalf("Expected an empty directory after mutating back")
	}
}

func TestUpdate_ArchiveContent(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/data/objects.pak", fileInfo("objects.pak", 100))
	u.AddFile(data.Physical, "/data/textures/wall.dds", fileInfo("wall.dds", 1))
	commit(t, u)

	contents := &archive.Contents{
		Directories: []archive.Entry{
			{Path: "Models", IsFolder: true},
			{Path: "Textures", IsFolder: true},
		},
		Files: []archive.Entry{
			{Path: "Models/Box.cgf", Size: 7, ModifiedTime: modified},
			{Path: "Textures/Wall.dds", Size: 5, ModifiedTime: modified},
		},
	}
	if !u.SetArchiveContent("/data/objects.pak", contents) {
		t.Fatalf("Expected archive content to be accepted")
	}
	if u.SetArchiveContent("/data/missing.pak", contents) {
		t.Fatalf("Expected missing archive to be rejected")
	}
	s := commit(t, u).To

	pak := s.GetFileByEnginePath("/data/objects.pak")
	if pak == nil || !pak.IsArchive() || len(pak.Archive.Files) != 2 {
		t.Fatalf("Expected archive record on the pak file")
	}
	wall := s.GetFileByEnginePath("/data/textures/wall.dds")
	if wall == nil || !wall.HasShadow() || wall.FullName() != "wall.dds" || wall.Size != 1 {
		t.Fatalf("Expected loose file to shadow the archive member, got %+v", wall)
	}
	box := s.GetFileByEnginePath("/data/models/box.cgf")
	if box == nil || box.ActiveProvider() != data.Archive(pak.Archive.ID) {
		t.Fatalf("Expected archive member to be mounted next to the archive")
	}
	if s.GetDirectoryByEnginePath("/data").HasShadow() {
		t.Fatalf("Expected the archive parent to stay physical only")
	}

	// Updating the content removes stale members.
	contents.Files = contents.Files[1:]
	contents.Directories = contents.Directories[1:]
	u.SetArchiveContent("/data/objects.pak", contents)
	s = commit(t, u).To
	if s.GetDirectoryByEnginePath("/data/models") != nil {
		t.Fatalf("Expected stale archive directory to be removed")
	}
	if !s.GetFileByEnginePath("/data/textures/wall.dds").HasShadow() {
		t.Fatalf("Expected remaining member to stay")
	}

	// Removing the archive file takes its members with it.
	u.RemovePath(data.Physical, "/data/objects.pak")
	s = commit(t, u).To
	wall = s.GetFileByEnginePath("/data/textures/wall.dds")
	if wall == nil || wall.HasShadow() {
		t.Fatalf("Expected loose file without shadow, got %+v", wall)
	}
	if s.GetDirectoryByEnginePath("/data/textures").HasShadow() {
		t.Fatalf("Expected directory without archive provider")
	}
}

func TestUpdate_CleanArchiveContent(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/shaders.pak", fileInfo("shaders.pak", 1))
	u.SetArchiveContent("/shaders.pak", &archive.Contents{
		Files: []archive.Entry{{Path: "common.cfx", Size: 3}},
	})
	s := commit(t, u).To
	if s.GetFileByEnginePath("/common.cfx") == nil {
		t.Fatalf("Expected member at the archive root")
	}

	u.CleanArchiveContent("/shaders.pak")
	s = commit(t, u).To
	if s.GetFileByEnginePath("/common.cfx") != nil || s.GetFileByEnginePath("/shaders.pak").IsArchive() {
		t.Fatalf("Expected archive content to be cleaned")
	}
}

func TestUpdate_RegisterFileTypes(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/scripts/main.lua", fileInfo("main.lua", 1))
	u.AddFile(data.Physical, "/objects/main.lua", fileInfo("main.lua", 1))
	s := commit(t, u).To
	if !s.GetFileByEnginePath("/scripts/main.lua").Type.IsUnknown() {
		t.Fatalf("Expected unknown type before registration")
	}

	script := &filetype.Type{Name: "Script", PrimaryExtension: "lua", Folders: []string{"/Scripts"}}
	u.RegisterFileTypes(filetype.NewStore(script))
	result := commit(t, u)
	s = result.To

	if s.GetFileByEnginePath("/scripts/main.lua").Type != script {
		t.Fatalf("Expected script type in /scripts")
	}
	if !s.GetFileByEnginePath("/objects/main.lua").Type.IsUnknown() {
		t.Fatalf("Expected folder restriction to apply")
	}
	if s.GetDirectoryByEnginePath("/objects") != result.From.GetDirectoryByEnginePath("/objects") {
		t.Fatalf("Expected untouched directory to be shared")
	}
	if _, files := result.Count(); files != 1 {
		t.Fatalf("Expected one modified file, got %d", files)
	}
}

func TestUpdate_InspectKeyEnginePath(t *testing.T) {
	u := inflight.New(nil, nil)
	u.AddFile(data.Physical, "/base/file.txt", fileInfo("file.txt", 1))
	commit(t, u)

	u.AddFile(data.Physical, "/new/file.txt", fileInfo("file.txt", 1))

	tests := []struct {
		path string
		want inflight.Inspection
	}{
		{"/base", inflight.UnchangedDirectory},
		{"/base/file.txt", inflight.UnchangedFile},
		{"/new", inflight.ChangedDirectory},
		{"/new/file.txt", inflight.ChangedFile},
		{"/nope", inflight.NotFound},
		{"/base/file.txt/below", inflight.NotFound},
		{"/new/file.txt/below", inflight.NotFound},
	}
	for _, tc := range tests {
		if got, _, _ := u.InspectKeyEnginePath(tc.path); got != tc.want {
			t.Errorf("InspectKeyEnginePath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}

	if _, d, _ := u.InspectKeyEnginePath("/BASE"); d == nil || d.Path.Key != "/base" {
		t.Errorf("Expected base directory to be returned")
	}
}

func TestUpdate_MaskedArchiveDirectory(t *testing.T) {
	nested := &archive.Contents{
		Directories: []archive.Entry{{Path: "Thing", IsFolder: true}},
		Files:       []archive.Entry{{Path: "Thing/inner.txt", Size: 3, ModifiedTime: modified}},
	}

	t.Run("PhysicalFile", func(t *testing.T) {
		u := inflight.New(nil, nil)
		u.AddFile(data.Physical, "/thing", fileInfo("thing", 4))
		u.AddFile(data.Physical, "/assets.pak", fileInfo("assets.pak", 10))
		u.SetArchiveContent("/assets.pak", nested)
		s := commit(t, u).To

		if f := s.GetFileByEnginePath("/thing"); f == nil || f.ActiveProvider() != data.Physical {
			t.Fatalf("Expected the physical file to win, got %+v", f)
		}
		if s.GetFileByEnginePath("/thing/inner.txt") != nil {
			t.Fatalf("Expected members below a file to be hidden")
		}

		u.RemovePath(data.Physical, "/thing")
		s = commit(t, u).To

		d := s.GetDirectoryByEnginePath("/thing")
		if d == nil || len(d.Files) != 1 {
			t.Fatalf("Expected archive directory /thing with inner.txt, got %+v", d)
		}
		if inner := s.GetFileByEnginePath("/thing/inner.txt"); inner == nil || inner.Size != 3 {
			t.Fatalf("Expected inner.txt to come back, got %+v", inner)
		}

		cold := inflight.New(nil, nil)
		cold.AddFile(data.Physical, "/assets.pak", fileInfo("assets.pak", 10))
		cold.SetArchiveContent("/assets.pak", nested)
		if got, want := dump(s), dump(commit(t, cold).To); got != want {
			t.Fatalf("Expected the same tree as a fresh build\ngot:\n%s\nwant:\n%s", got, want)
		}
	})

	t.Run("ArchiveFile", func(t *testing.T) {
		// The archive with the lower id wins, it holds the masking file.
		first, second := "/one.pak", "/two.pak"
		if data.ArchiveID(data.Key(second)) < data.ArchiveID(data.Key(first)) {
			first, second = second, first
		}

		u := inflight.New(nil, nil)
		u.AddFile(data.Physical, first, fileInfo(first[1:], 1))
		u.AddFile(data.Physical, second, fileInfo(second[1:], 1))
		u.SetArchiveContent(first, &archive.Contents{
			Files: []archive.Entry{{Path: "thing", Size: 1, ModifiedTime: modified}},
		})
		u.SetArchiveContent(second, nested)
		s := commit(t, u).To

		if f := s.GetFileByEnginePath("/thing"); f == nil || f.Size != 1 {
			t.Fatalf("Expected the file of the winning archive, got %+v", f)
		}

		u.RemovePath(data.Physical, first)
		s = commit(t, u).To

		inner := s.GetFileByEnginePath("/thing/inner.txt")
		if inner == nil || inner.ActiveProvider() != data.Archive(data.ArchiveID(data.Key(second))) {
			t.Fatalf("Expected inner.txt from the remaining archive, got %+v", inner)
		}
	})
}
