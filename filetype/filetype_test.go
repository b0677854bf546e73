package filetype_test

import (
	"testing"

	"github.com/mwantia/vfsindex/filetype"
)

func TestStore_Resolve(t *testing.T) {
	material := &filetype.Type{Name: "Material", PrimaryExtension: "mtl"}
	levelXml := &filetype.Type{Name: "Level Data", PrimaryExtension: "xml", Folders: []string{"/Levels"}}
	anyXml := &filetype.Type{Name: "XML", PrimaryExtension: "xml", ExtraExtensions: []string{".XSD"}}
	uiXml := &filetype.Type{Name: "UI", PrimaryExtension: "xml", Folders: []string{"/libs/**/ui"}}

	store := filetype.NewStore(material, levelXml, anyXml, uiXml)

	tests := []struct {
		ext, dir string
		want     *filetype.Type
	}{
		{"mtl", "/materials", material},
		{"MTL", "", material},
		{"xml", "/levels/island", levelXml},
		{"xml", "/levelsx", anyXml},
		{"xsd", "/levels", anyXml},
		{"dds", "/textures", filetype.Unknown()},
		{"", "/textures", filetype.Unknown()},
	}

	for _, tc := range tests {
		if got := store.Resolve(tc.ext, tc.dir); got != tc.want {
			t.Fatalf("Resolve(%q, %q) = %q, want %q", tc.ext, tc.dir, got.Name, tc.want.Name)
		}
	}
}

func TestStore_FolderPatterns(t *testing.T) {
	uiXml := &filetype.Type{Name: "UI", PrimaryExtension: "xml", Folders: []string{"/libs/**/ui"}}
	store := filetype.NewStore(uiXml)

	if got := store.Resolve("xml", "/libs/flash/ui"); got != uiXml {
		t.Fatalf("Expected pattern folder to match, got %q", got.Name)
	}
	if got := store.Resolve("xml", "/libs/flash"); !got.IsUnknown() {
		t.Fatalf("Expected unknown outside pattern, got %q", got.Name)
	}
}

func TestStore_WithKeepsPrecedence(t *testing.T) {
	first := &filetype.Type{Name: "First", PrimaryExtension: "cgf"}
	second := &filetype.Type{Name: "Second", PrimaryExtension: "cgf"}

	base := filetype.NewStore(first)
	extended := base.With(second)

	if extended.Len() != 2 || base.Len() != 1 {
		t.Fatalf("Expected With to leave the receiver untouched, got %d/%d", base.Len(), extended.Len())
	}
	if got := extended.Resolve("cgf", ""); got != first {
		t.Fatalf("Expected earlier registration to win, got %q", got.Name)
	}

	var empty *filetype.Store
	if got := empty.Resolve("cgf", ""); !got.IsUnknown() {
		t.Fatalf("Expected nil store to resolve unknown")
	}
}
