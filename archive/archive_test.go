package archive

import (
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

func writeArchive(t *testing.T, fs afero.Fs, path string, members map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("Failed to create member '%s': %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write member '%s': %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close archive: %v", err)
	}

	if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write archive: %v", err)
	}
}

func TestReader_GetContents(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArchive(t, fs, "/game/Objects.pak", map[string]string{
		"Objects/Props/Crate.cgf": "crate",
		"Objects/Props/Crate.mtl": "mtl",
		"Textures/":               "",
		"Textures/Stone/Wall.dds": "dds-data",
	})

	r := NewReader(fs, nil)
	contents, err := r.GetContents("/game/Objects.pak")
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}

	wantDirs := []string{"Objects", "Objects/Props", "Textures", "Textures/Stone"}
	if len(contents.Directories) != len(wantDirs) {
		t.Fatalf("Expected directories %v, got %+v", wantDirs, contents.Directories)
	}
	for i, want := range wantDirs {
		if contents.Directories[i].Path != want || !contents.Directories[i].IsFolder {
			t.Errorf("Expected directory '%s' at %d, got %+v", want, i, contents.Directories[i])
		}
	}

	wantFiles := []string{"Objects/Props/Crate.cgf", "Objects/Props/Crate.mtl", "Textures/Stone/Wall.dds"}
	if len(contents.Files) != len(wantFiles) {
		t.Fatalf("Expected files %v, got %+v", wantFiles, contents.Files)
	}
	for i, want := range wantFiles {
		if contents.Files[i].Path != want {
			t.Errorf("Expected file '%s' at %d, got %+v", want, i, contents.Files[i])
		}
	}
	if contents.Files[2].Size != int64(len("dds-data")) {
		t.Errorf("Expected uncompressed size, got %d", contents.Files[2].Size)
	}
	if contents.Len() != 7 {
		t.Errorf("Expected 7 members, got %d", contents.Len())
	}
}

func TestReader_GetContentsErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/broken.pak", []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewReader(fs, nil)
	if _, err := r.GetContents("/broken.pak"); err == nil {
		t.Errorf("Expected error for a corrupt archive")
	}
	if _, err := r.GetContents("/missing.pak"); err == nil {
		t.Errorf("Expected error for a missing archive")
	}
	if _, err := r.GetContents("/readme.txt"); err == nil {
		t.Errorf("Expected error for a non archive")
	}
}

func TestIsArchive(t *testing.T) {
	tests := map[string]bool{
		"/game/objects.pak": true,
		"/game/Shaders.ZIP": true,
		"/game/readme.txt":  false,
		"/game/.pak":        false,
		"/game/pak":         false,
	}
	for name, want := range tests {
		if got := IsArchive(name); got != want {
			t.Errorf("IsArchive(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsLevelArchive(t *testing.T) {
	tests := map[string]bool{
		"/GameSDK/Levels/Island/level.pak": true,
		"/gamesdk/levels/terrain.pak":      true,
		"/gamesdk/objects.pak":             false,
		"/gamesdk/levels.pak":              false,
	}
	for path, want := range tests {
		if got := IsLevelArchive(path); got != want {
			t.Errorf("IsLevelArchive(%q) = %v, want %v", path, got, want)
		}
	}
}
