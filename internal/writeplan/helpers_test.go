package writeplan

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/engine"
	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/testutil"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
)

var testEpoch = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	clock := testutil.NewWallClock(testEpoch)
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.Options{
		StorageID: "test",
		AppID:     "test-app",
		Now:       clock.Now,
		StreamIDs: testutil.NewFixedStreamID("test-stream"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestCollection(t *testing.T, s *store.Store, c topology.Collection) *topology.Collection {
	t.Helper()
	got, err := s.Registry().Create(context.Background(), s.DB(), c)
	require.NoError(t, err)
	return got
}

func point(id, name string) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{13.4, 52.5})
	f.ID = id
	f.Properties["name"] = name
	return f
}

func create(id, name string) Intent {
	return Intent{Op: OpCreate, ID: id, Feature: point(id, name)}
}

func update(id, name string) Intent {
	return Intent{Op: OpUpdate, ID: id, Feature: point(id, name)}
}

// writeBatch runs intents in one session and commits when everything succeeded.
func writeBatch(t *testing.T, s *store.Store, c *topology.Collection, intents ...Intent) ([]Result, error) {
	t.Helper()
	ctx := context.Background()
	sess, err := s.Begin(ctx, store.SessionOptions{})
	require.NoError(t, err)
	defer sess.Rollback()

	p, err := NewBuilder(sess, engine.New(sess)).Build(ctx, c, intents)
	if err != nil {
		return nil, err
	}
	if err := p.Execute(ctx, sess.Tx()); err != nil {
		return nil, err
	}
	require.NoError(t, sess.Commit())
	return p.Results, nil
}

func mustWrite(t *testing.T, s *store.Store, c *topology.Collection, intents ...Intent) []Result {
	t.Helper()
	res, err := writeBatch(t, s, c, intents...)
	require.NoError(t, err)
	return res
}

func countRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var n int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM " + s.Dialect().Quote(table)).Scan(&n)
	require.NoError(t, err)
	return n
}

// fakeSession plans against in-memory rows, for SQL shape tests without a database.
type fakeSession struct {
	d    dialect.Dialect
	rows map[string]map[string]*tuple.Tuple
	uid  uint32
	txn  ident.Version
}

func newFakeSession(d dialect.Dialect) *fakeSession {
	return &fakeSession{d: d, rows: map[string]map[string]*tuple.Tuple{}, txn: ident.VersionOf(testEpoch, 2)}
}

func (s *fakeSession) Txn(context.Context) (ident.Version, error) { return s.txn, nil }
func (s *fakeSession) NextUID() uint32                            { s.uid++; return s.uid - 1 }
func (s *fakeSession) Author() string                             { return "" }
func (s *fakeSession) AppID() string                              { return "test-app" }
func (s *fakeSession) Now() time.Time                             { return testEpoch }
func (s *fakeSession) Dialect() dialect.Dialect                   { return s.d }

func (s *fakeSession) Lookup(_ context.Context, table string, ids []string, _ bool) (map[string]*tuple.Tuple, error) {
	out := map[string]*tuple.Tuple{}
	for _, id := range ids {
		if t, ok := s.rows[table][id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

// put stores a committed state of id in table.
func (s *fakeSession) put(t *testing.T, c *topology.Collection, table, id string) *tuple.Tuple {
	t.Helper()
	f := point(id, "old "+id)
	hash, err := tuple.ContentHash(f, nil, nil)
	require.NoError(t, err)
	meta := &tuple.Metadata{
		StoreNumber: c.StoreNumber(id),
		Version:     ident.VersionOf(testEpoch, 1),
		ContentHash: hash,
		ChangeCount: 1,
		Flags:       c.Flags(id),
		ID:          id,
		Type:        "Feature",
	}
	tp, err := tuple.New(meta, tuple.Content{Feature: f})
	require.NoError(t, err)
	if s.rows[table] == nil {
		s.rows[table] = map[string]*tuple.Tuple{}
	}
	s.rows[table][id] = tp
	return tp
}

func idsInPartition(c *topology.Collection, p, n int) []string {
	var ids []string
	for i := 0; len(ids) < n; i++ {
		id := fmt.Sprintf("f-%d", i)
		if c.Partition(id) == p {
			ids = append(ids, id)
		}
	}
	return ids
}
