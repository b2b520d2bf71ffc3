package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/storeerr"
	"github.com/roach88/geostore/internal/testutil"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/writeplan"
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

func createTestCollection(t *testing.T, s *store.Store, id string) {
	t.Helper()
	_, err := s.Registry().Create(context.Background(), s.DB(), topology.Collection{ID: id})
	require.NoError(t, err)
}

func point(id, name string) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{13.4, 52.5})
	f.ID = id
	f.Properties["name"] = name
	return f
}

func feature(collection string, op writeplan.Op, id, name string) FeatureWrite {
	in := writeplan.Intent{Op: op, ID: id}
	if op == writeplan.OpCreate || op == writeplan.OpUpdate || op == writeplan.OpUpsert {
		in.Feature = point(id, name)
	}
	return FeatureWrite{Collection: collection, Intent: in}
}

func begin(t *testing.T, s *store.Store, opts store.SessionOptions) *store.Session {
	t.Helper()
	sess, err := s.Begin(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Rollback() })
	return sess
}

// writeAndCommit runs req in a fresh session and commits it.
func writeAndCommit(t *testing.T, s *store.Store, req Request) *Response {
	t.Helper()
	ctx := context.Background()
	e := NewExecutor(Options{})
	sess := begin(t, s, store.SessionOptions{})
	resp, err := e.Write(ctx, sess, req)
	require.NoError(t, err)
	require.NoError(t, e.Commit(ctx, sess))
	return resp
}

func countRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var n int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM " + s.Dialect().Quote(table)).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestWrite_SplitsPerCollectionInFirstAppearanceOrder(t *testing.T) {
	s := createTestStore(t)
	createTestCollection(t, s, "roads")
	createTestCollection(t, s, "poi")

	resp := writeAndCommit(t, s, Request{Features: []FeatureWrite{
		feature("roads", writeplan.OpCreate, "a", "A"),
		feature("poi", writeplan.OpCreate, "x", "X"),
		feature("roads", writeplan.OpCreate, "b", "B"),
	}})

	require.Len(t, resp.Rows, 3)
	got := make([]string, len(resp.Rows))
	for i, r := range resp.Rows {
		got[i] = r.Collection + "/" + r.ID
		assert.Equal(t, writeplan.ActionCreated, r.Action)
		assert.False(t, r.Number.IsZero())
	}
	assert.Equal(t, []string{"roads/a", "roads/b", "poi/x"}, got)
}

func TestWrite_CollectionMutationsRunFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	resp := writeAndCommit(t, s, Request{
		Collections: []CollectionMutation{{Op: CollectionCreate, Collection: topology.Collection{ID: "parks"}}},
		Features:    []FeatureWrite{feature("parks", writeplan.OpCreate, "p1", "Park")},
	})
	require.Len(t, resp.Collections, 1)
	require.NotNil(t, resp.Collections[0].Collection)
	assert.Equal(t, "parks", resp.Collections[0].Collection.ID)

	head, err := s.Head(ctx, "parks", "p1")
	require.NoError(t, err)
	require.NotNil(t, head)

	writeAndCommit(t, s, Request{
		Collections: []CollectionMutation{{Op: CollectionDrop, Collection: topology.Collection{ID: "parks"}}},
	})
	_, err = s.Head(ctx, "parks", "p1")
	assert.True(t, storeerr.IsNotFound(err))
}

func TestWrite_RollbackUndoesCollectionCreate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := NewExecutor(Options{})

	sess := begin(t, s, store.SessionOptions{})
	_, err := e.Write(ctx, sess, Request{
		Collections: []CollectionMutation{{Op: CollectionCreate, Collection: topology.Collection{ID: "parks"}}},
	})
	require.NoError(t, err)
	require.NoError(t, sess.Rollback())

	_, err = s.Head(ctx, "parks", "p1")
	assert.True(t, storeerr.IsNotFound(err))
}

func TestWrite_UnknownCollection(t *testing.T) {
	s := createTestStore(t)
	sess := begin(t, s, store.SessionOptions{})

	_, err := NewExecutor(Options{}).Write(context.Background(), sess, Request{
		Features: []FeatureWrite{feature("nope", writeplan.OpCreate, "a", "A")},
	})
	assert.Equal(t, storeerr.ErrCodeCollectionNotFound, storeerr.CodeOf(err))
}

func TestWrite_RejectsTransactionLog(t *testing.T) {
	s := createTestStore(t)
	sess := begin(t, s, store.SessionOptions{})

	_, err := NewExecutor(Options{}).Write(context.Background(), sess, Request{
		Features: []FeatureWrite{feature(topology.TransactionLog, writeplan.OpCreate, "a", "A")},
	})
	assert.Equal(t, storeerr.ErrCodeIllegalArgument, storeerr.CodeOf(err))
}

func TestWrite_Counters(t *testing.T) {
	s := createTestStore(t)
	createTestCollection(t, s, "roads")
	writeAndCommit(t, s, Request{Features: []FeatureWrite{
		feature("roads", writeplan.OpCreate, "b", "B"),
		feature("roads", writeplan.OpCreate, "c", "C"),
	}})

	ctx := context.Background()
	sess := begin(t, s, store.SessionOptions{})
	_, err := NewExecutor(Options{}).Write(ctx, sess, Request{Features: []FeatureWrite{
		feature("roads", writeplan.OpCreate, "a", "A"),
		feature("roads", writeplan.OpUpdate, "b", "B2"),
		feature("roads", writeplan.OpDelete, "c", ""),
		feature("roads", writeplan.OpUpdate, "missing", "M"),
	}})
	require.NoError(t, err)

	c := sess.Counters("roads")
	assert.EqualValues(t, 1, c.Inserted)
	assert.EqualValues(t, 1, c.Updated)
	assert.EqualValues(t, 1, c.Deleted)
	assert.EqualValues(t, 0, c.Purged)
	assert.Positive(t, c.Bytes)
}

func TestCommit_WritesTransactionRecord(t *testing.T) {
	s := createTestStore(t)
	createTestCollection(t, s, "roads")
	ctx := context.Background()
	e := NewExecutor(Options{})

	sess := begin(t, s, store.SessionOptions{Author: "alice"})
	_, err := e.Write(ctx, sess, Request{Features: []FeatureWrite{
		feature("roads", writeplan.OpCreate, "a", "A"),
		feature("roads", writeplan.OpCreate, "b", "B"),
	}})
	require.NoError(t, err)
	txn, err := sess.Txn(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Commit(ctx, sess))

	rec, err := s.Head(ctx, topology.TransactionLog, txn.String())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, txn, rec.Meta.Version)
	assert.Equal(t, "alice", rec.Meta.Author)
	assert.Equal(t, "test-app", rec.Meta.AppID)
	assert.Equal(t, "Transaction", rec.Meta.Type)

	content, err := rec.Decode()
	require.NoError(t, err)
	props := content.Feature.Properties
	assert.Equal(t, "test-stream", props["stream"])

	collections, ok := props["collections"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, collections, topology.TransactionLog)
	roads, ok := collections["roads"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, roads["inserted"])
	assert.EqualValues(t, 0, roads["updated"])
}

func TestCommit_NothingWrittenLeavesNoRecord(t *testing.T) {
	s := createTestStore(t)
	sess := begin(t, s, store.SessionOptions{})

	require.NoError(t, NewExecutor(Options{}).Commit(context.Background(), sess))
	assert.Equal(t, 0, countRows(t, s, topology.TransactionLog))
}

func TestCommit_CacheFollowsWrites(t *testing.T) {
	s := createTestStore(t)
	createTestCollection(t, s, "roads")

	first := writeAndCommit(t, s, Request{Features: []FeatureWrite{feature("roads", writeplan.OpCreate, "a", "A")}})
	v1 := first.Rows[0].Number
	require.NotNil(t, s.Cache().Get("test", v1))

	second := writeAndCommit(t, s, Request{Features: []FeatureWrite{feature("roads", writeplan.OpUpdate, "a", "A2")}})
	v2 := second.Rows[0].Number
	assert.Equal(t, v1, second.Rows[0].Superseded)
	assert.NotNil(t, s.Cache().Get("test", v2))

	// The replaced state is cached as it now reads from HISTORY.
	old := s.Cache().Get("test", v1)
	require.NotNil(t, old)
	assert.Equal(t, v2.Version, old.Meta.NextVersion)
}

func TestCommit_CacheDropsReplacedStateWithoutHistory(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Registry().Create(context.Background(), s.DB(), topology.Collection{ID: "roads", HistoryDisabled: true})
	require.NoError(t, err)

	first := writeAndCommit(t, s, Request{Features: []FeatureWrite{feature("roads", writeplan.OpCreate, "a", "A")}})
	v1 := first.Rows[0].Number
	require.NotNil(t, s.Cache().Get("test", v1))

	writeAndCommit(t, s, Request{Features: []FeatureWrite{feature("roads", writeplan.OpUpdate, "a", "A2")}})
	assert.Nil(t, s.Cache().Get("test", v1))
}

func TestWrite_FailureIsCounted(t *testing.T) {
	s := createTestStore(t)
	createTestCollection(t, s, "roads")
	sess := begin(t, s, store.SessionOptions{})
	before := promtest.ToFloat64(PlanFailures.WithLabelValues(string(storeerr.ErrCodeDuplicateOperation)))

	_, err := NewExecutor(Options{}).Write(context.Background(), sess, Request{Features: []FeatureWrite{
		feature("roads", writeplan.OpCreate, "a", "A"),
		feature("roads", writeplan.OpDelete, "a", ""),
	}})
	require.True(t, storeerr.IsDuplicate(err))

	after := promtest.ToFloat64(PlanFailures.WithLabelValues(string(storeerr.ErrCodeDuplicateOperation)))
	assert.Equal(t, before+1, after)
}

func TestWrite_RowsMetric(t *testing.T) {
	s := createTestStore(t)
	createTestCollection(t, s, "metered")
	before := promtest.ToFloat64(RowsWritten.WithLabelValues("metered", "CREATED"))

	writeAndCommit(t, s, Request{Features: []FeatureWrite{
		feature("metered", writeplan.OpCreate, "a", "A"),
		feature("metered", writeplan.OpCreate, "b", "B"),
	}})

	assert.Equal(t, before+2, promtest.ToFloat64(RowsWritten.WithLabelValues("metered", "CREATED")))
}

func TestRegisterMetrics_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))
}

func TestParseCollectionOp(t *testing.T) {
	for _, op := range []CollectionOp{CollectionCreate, CollectionUpdate, CollectionDrop} {
		got, err := ParseCollectionOp(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	got, err := ParseCollectionOp("drop")
	require.NoError(t, err)
	assert.Equal(t, CollectionDrop, got)

	_, err = ParseCollectionOp("rename")
	assert.Error(t, err)
}

func TestCommit_PurgeOfTombstoneIsRecorded(t *testing.T) {
	s := createTestStore(t)
	createTestCollection(t, s, "roads")
	writeAndCommit(t, s, Request{Features: []FeatureWrite{feature("roads", writeplan.OpCreate, "a", "A")}})
	writeAndCommit(t, s, Request{Features: []FeatureWrite{feature("roads", writeplan.OpDelete, "a", "")}})
	before := countRows(t, s, topology.TransactionLog)

	resp := writeAndCommit(t, s, Request{Features: []FeatureWrite{feature("roads", writeplan.OpPurge, "a", "")}})
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, writeplan.ActionPurged, resp.Rows[0].Action)
	assert.Equal(t, before+1, countRows(t, s, topology.TransactionLog))
	assert.Equal(t, 0, countRows(t, s, "roads$del"))
}
