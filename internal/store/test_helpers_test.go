package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/testutil"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
)

var testEpoch = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func versionAt(seq uint32) ident.Version {
	return ident.VersionOf(testEpoch, seq)
}

// createTestStore creates a new store in a temporary directory for testing.
func createTestStore(t *testing.T) (*Store, *testutil.WallClock) {
	t.Helper()
	clock := testutil.NewWallClock(testEpoch)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, Options{
		StorageID: "test",
		AppID:     "test-app",
		Now:       clock.Now,
		StreamIDs: testutil.NewFixedStreamID("test-stream"),
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// createTestCollection registers a collection outside any session.
func createTestCollection(t *testing.T, s *Store, c topology.Collection) *topology.Collection {
	t.Helper()
	got, err := s.Registry().Create(context.Background(), s.DB(), c)
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", c.ID, err)
	}
	return got
}

// createTestTuple builds a fully loaded tuple of feature id in c.
func createTestTuple(t *testing.T, c *topology.Collection, id string, txn uint32, uid uint32) *tuple.Tuple {
	t.Helper()
	f := geojson.NewFeature(orb.Point{13.4, 52.5})
	f.ID = id
	f.Properties["name"] = "test " + id
	ref := orb.Point{13.4, 52.5}
	meta := &tuple.Metadata{
		StoreNumber: c.StoreNumber(id),
		Version:     versionAt(txn),
		UID:         uid,
		ContentHash: 42,
		ChangeCount: 1,
		GeoGrid:     tuple.GeoGrid(id, &ref, f.Geometry),
		Flags:       c.Flags(id),
		ID:          id,
		AppID:       "test-app",
		AuthorTs:    testEpoch.UnixMilli(),
		CreatedAt:   testEpoch.UnixMilli(),
		UpdatedAt:   testEpoch.UnixMilli(),
		Type:        "Feature",
	}
	tp, err := tuple.New(meta, tuple.Content{Feature: f, ReferencePoint: &ref, Tags: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("tuple.New() failed: %v", err)
	}
	return tp
}
