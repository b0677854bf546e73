// Package storetest runs the behaviour every store.Store must share.
package storetest

import (
	"testing"
	"time"

	"github.com/mwantia/vfsindex/store"
)

var modified = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Records is a small tree in key order, which is also the order store.Records
// produces for it.
func Records() []store.Record {
	return []store.Record{
		{Path: "/game.cfg", IsFile: true, Size: 12, LastModified: modified},
		{Path: "/Objects", LastModified: modified},
		{Path: "/Objects/Props", LastModified: modified},
		{Path: "/Objects/Props/Crate_Wood.cgf", IsFile: true, Size: 2048, LastModified: modified},
		{Path: "/Textures", LastModified: modified},
		{Path: "/Textures/Stone_Wall.dds", IsFile: true, Size: 4096, LastModified: modified.Add(time.Hour)},
	}
}

// Run checks that s round trips records and that Save replaces earlier state.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := t.Context()

	t.Run("Empty", func(t *testing.T) {
		records, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("Expected no records, got %d", len(records))
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		want := Records()
		if err := s.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		store.Sort(got)
		Equal(t, got, want)
	})

	t.Run("Replace", func(t *testing.T) {
		want := Records()[:2]
		if err := s.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		store.Sort(got)
		Equal(t, got, want)
	})
}

// Equal compares records field by field, times by instant.
func Equal(t *testing.T, got, want []store.Record) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Path != w.Path || g.IsFile != w.IsFile || g.Size != w.Size || !g.LastModified.Equal(w.LastModified) {
			t.Errorf("record %d = %+v, want %+v", i, g, w)
		}
	}
}
