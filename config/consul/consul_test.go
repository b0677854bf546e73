package consul

import (
	"os"
	"testing"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/vfsindex/config"
)

func TestDecodePairs(t *testing.T) {
	pairs := api.KVPairs{
		{Key: "vfsindex/mounts/textures", Value: []byte(`{"engine_path": "/textures", "absolute_path": "/srv/textures"}`)},
		{Key: "vfsindex/mounts/", Value: nil},
		{Key: "vfsindex/mounts/broken", Value: []byte(`{`)},
		{Key: "vfsindex/mounts/game", Value: []byte(`{"engine_path": "/game", "absolute_path": "/srv/game"}`)},
		{Key: "vfsindex/mounts/empty", Value: []byte(`{"engine_path": "/empty"}`)},
	}

	mounts, errs := decodePairs(pairs)
	if len(errs) != 2 {
		t.Errorf("Expected 2 errors, got %v", errs)
	}
	if len(mounts) != 2 {
		t.Fatalf("Expected 2 mounts, got %+v", mounts)
	}
	if mounts[0].EnginePath != "/game" || mounts[1].EnginePath != "/textures" {
		t.Errorf("mounts not ordered by key: %+v", mounts)
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"vfsindex/mounts":   "vfsindex/mounts/",
		"/vfsindex/mounts/": "vfsindex/mounts/",
		"/":                 "",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_RequiresPrefix(t *testing.T) {
	if _, err := New(config.ConsulConfig{}, nil); err == nil {
		t.Error("Expected error without prefix")
	}
}

// Set VFSINDEX_CONSUL_ADDRESS to run against a live agent.
func TestSource(t *testing.T) {
	address := os.Getenv("VFSINDEX_CONSUL_ADDRESS")
	if address == "" {
		t.Skip("VFSINDEX_CONSUL_ADDRESS not set")
	}

	s, err := New(config.ConsulConfig{Address: address, Prefix: "vfsindex-test/" + t.Name()}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := t.Context()

	want := config.Mount{EnginePath: "/game", AbsolutePath: "/srv/game"}
	if err := s.Put(ctx, "game", want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	defer s.Delete(ctx, "game")

	mounts, err := s.Mounts(ctx)
	if err != nil {
		t.Fatalf("Mounts failed: %v", err)
	}
	if len(mounts) != 1 || mounts[0] != want {
		t.Errorf("Mounts() = %+v, want [%+v]", mounts, want)
	}
}
