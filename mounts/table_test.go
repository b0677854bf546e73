package mounts

import (
	"reflect"
	"testing"

	"github.com/mwantia/vfsindex/data"
)

func TestTable_AddMountPoint(t *testing.T) {
	table := NewTable()

	if !table.AddMountPoint("/a", "/srv/x") {
		t.Fatal("AddMountPoint /a failed")
	}

	tests := []struct {
		name        string
		enginePath  string
		absolute    string
		wantSuccess bool
	}{
		{"NestedEnginePath", "/a/b", "/srv/y", false},
		{"ParentEnginePath", "/", "/srv/z", true},
		{"Duplicate", "/A", "/srv/other", false},
		{"NestedTarget", "/c", "/srv/x/sub", false},
		{"ParentTarget", "/d", "/srv", false},
		{"SameTarget", "/e", "/srv/x", true},
		{"Sibling", "/f", "/srv/xy", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.AddMountPoint(tt.enginePath, tt.absolute); got != tt.wantSuccess {
				t.Errorf("AddMountPoint(%q, %q) = %v, want %v", tt.enginePath, tt.absolute, got, tt.wantSuccess)
			}
		})
	}

	if got := table.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
}

func TestTable_RejectedMountLeavesTableUnchanged(t *testing.T) {
	table := NewTable()

	table.AddMountPoint("/a", "/data/x")
	if table.AddMountPoint("/a/b", "/data/y") {
		t.Fatal("nested mount was accepted")
	}

	if got := table.GetAbsolutePath("/a/b"); got != "/data/x/b" {
		t.Errorf("GetAbsolutePath(/a/b) = %q, want /data/x/b", got)
	}
	if table.IsMountPoint("/a/b") {
		t.Error("/a/b reported as mount point")
	}
	if got := table.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestTable_GetAbsolutePath(t *testing.T) {
	table := NewTable()
	table.AddMountPoint("/", "/game")
	table.AddMountPoint("/Objects", "/assets/objects")

	tests := []struct {
		enginePath string
		want       string
	}{
		{"/", "/game"},
		{"/readme.txt", "/game/readme.txt"},
		{"/objects", "/assets/objects"},
		{"/OBJECTS/Props/Crate.cgf", "/assets/objects/Props/Crate.cgf"},
		{"/objectsx", "/game/objectsx"},
	}

	for _, tt := range tests {
		if got := table.GetAbsolutePath(tt.enginePath); got != tt.want {
			t.Errorf("GetAbsolutePath(%q) = %q, want %q", tt.enginePath, got, tt.want)
		}
	}

	empty := NewTable()
	if got := empty.GetAbsolutePath("/a"); got != "" {
		t.Errorf("unmounted GetAbsolutePath = %q, want empty", got)
	}
}

func TestTable_ForEachEnginePath(t *testing.T) {
	table := NewTable()
	table.AddMountPoint("/", "/game")
	table.AddMountPoint("/b", "/shared")
	table.AddMountPoint("/a", "/shared")

	var got []string
	table.ForEachEnginePath("/shared/Textures/stone.dds", func(ep data.EnginePath) {
		got = append(got, ep.Full)
	})
	want := []string{"/a/Textures/stone.dds", "/b/Textures/stone.dds"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ForEachEnginePath = %v, want %v", got, want)
	}

	ep, ok := table.GetEnginePath("/game/levels")
	if !ok || ep.Key != "/levels" {
		t.Errorf("GetEnginePath(/game/levels) = %v, %v", ep, ok)
	}

	if _, ok := table.GetEnginePath("/elsewhere"); ok {
		t.Error("GetEnginePath resolved an unmounted path")
	}

	var points []string
	table.ForEachMountPoint("/shared", func(ep data.EnginePath) {
		points = append(points, ep.Key)
	})
	if !reflect.DeepEqual(points, []string{"/a", "/b"}) {
		t.Errorf("ForEachMountPoint = %v", points)
	}
}

func TestTable_RenameMount(t *testing.T) {
	table := NewTable()
	table.AddMountPoint("/", "/game")
	table.AddMountPoint("/mods/one", "/mods/one")
	table.AddMountPoint("/mods/two", "/mods/two")

	table.RenameMount("/mods/one", "First")

	if table.IsMountPoint("/mods/one") {
		t.Error("old mount point still present")
	}
	if !table.IsMountPoint("/mods/first") {
		t.Fatal("renamed mount point missing")
	}
	if got := table.GetAbsolutePath("/mods/First/x.txt"); got != "/mods/one/x.txt" {
		t.Errorf("GetAbsolutePath = %q", got)
	}

	ep, ok := table.GetEnginePath("/mods/one/x.txt")
	if !ok || ep.Full != "/mods/First/x.txt" {
		t.Errorf("GetEnginePath = %v, %v", ep, ok)
	}
}

func TestTable_RemoveMountsIn(t *testing.T) {
	table := NewTable()
	table.AddMountPoint("/", "/game")
	table.AddMountPoint("/mods/a", "/shared")
	table.AddMountPoint("/mods/b", "/shared")
	table.AddMountPoint("/extra", "/shared")
	table.AddMountPoint("/mods/c", "/other")

	var released []string
	table.RemoveMountsIn("/mods", func(abs string) {
		released = append(released, abs)
	})

	if !reflect.DeepEqual(released, []string{"/other"}) {
		t.Errorf("released = %v, want [/other]", released)
	}
	if got := table.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	released = nil
	if removed := table.RemoveLinkTarget("/shared", func(abs string) {
		released = append(released, abs)
	}); len(removed) != 0 || len(released) != 0 {
		t.Errorf("RemoveLinkTarget removed regular mounts: %v, %v", removed, released)
	}
}

func TestTable_AddLinkMount(t *testing.T) {
	table := NewTable()
	if !table.AddMountPoint("/game", "/srv/game") {
		t.Fatal("AddMountPoint failed")
	}

	if table.AddLinkMount("/unmounted/link", "/srv/shared") {
		t.Error("link outside every mount accepted")
	}
	if table.AddLinkMount("/game/Self", "/srv/game/Objects") {
		t.Error("link into its own mount accepted")
	}
	if !table.AddLinkMount("/game/Shared", "/srv/shared") {
		t.Fatal("AddLinkMount failed")
	}
	if table.AddLinkMount("/game/Other", "/srv/shared/sub") {
		t.Error("nested link target accepted")
	}
	if table.AddMountPoint("/game/shared/x", "/srv/x") {
		t.Error("regular mount below a link accepted")
	}

	if got := table.GetAbsolutePath("/game/shared/common.cfg"); got != "/srv/shared/common.cfg" {
		t.Errorf("GetAbsolutePath = %q", got)
	}

	var released []string
	removed := table.RemoveLinkTarget("/srv", func(abs string) {
		released = append(released, abs)
	})
	if !reflect.DeepEqual(removed, []string{"/game/shared"}) || !reflect.DeepEqual(released, []string{"/srv/shared"}) {
		t.Errorf("RemoveLinkTarget = %v, released = %v", removed, released)
	}
	if got := table.GetAbsolutePath("/game/shared/common.cfg"); got != "/srv/game/shared/common.cfg" {
		t.Errorf("GetAbsolutePath after unlink = %q", got)
	}

	table.AddLinkMount("/game/Shared", "/srv/shared")
	released = nil
	table.RemoveMountsIn("/game", func(abs string) {
		released = append(released, abs)
	})
	if !reflect.DeepEqual(released, []string{"/srv/game", "/srv/shared"}) {
		t.Errorf("released = %v", released)
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"/":            "",
		"/data/":       "/data",
		"/data/./x/..": "/data",
		"/a//b":        "/a/b",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}
