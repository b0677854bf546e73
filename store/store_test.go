package store_test

import (
	"testing"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/inflight"
	"github.com/mwantia/vfsindex/store"
	"github.com/mwantia/vfsindex/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, store.NewMemory())
}

func TestRecords(t *testing.T) {
	u := inflight.New(nil, nil)
	for _, r := range storetest.Records() {
		if r.IsFile {
			u.AddFile(data.Physical, r.Path, r.Info())
		} else {
			u.AddDirectory(data.Physical, r.Path, r.Info())
		}
	}
	// Archive members are not persisted.
	u.AddFile(data.Archive(1), "/Objects/packed.cgf", data.ProviderInfo{IsFile: true, FullName: "packed.cgf"})

	s := u.CreateSnapshot().To
	storetest.Equal(t, store.Records(s), storetest.Records())
}

func TestRecord_Info(t *testing.T) {
	info := store.Record{Path: "/Objects/Props/Crate.cgf", IsFile: true, Size: 3}.Info()
	if info.FullName != "Crate.cgf" || !info.IsFile || info.Size != 3 {
		t.Errorf("Unexpected info %+v", info)
	}
}
