package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/storeerr"
	"github.com/roach88/geostore/internal/testutil"
	"github.com/roach88/geostore/internal/topology"
)

func TestSession_TxnAllocatedLazilyAndOnce(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	defer sess.Rollback()

	assert.False(t, sess.HasTxn())
	txn, err := sess.Txn(ctx)
	require.NoError(t, err)
	assert.True(t, sess.HasTxn())
	assert.Equal(t, "2026:10:19:1", txn.String())

	again, err := sess.Txn(ctx)
	require.NoError(t, err)
	assert.Equal(t, txn, again)
}

func TestSession_TxnSequenceGrowsAcrossSessions(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	var txns []ident.Version
	for i := 0; i < 3; i++ {
		sess, err := s.Begin(ctx, SessionOptions{})
		require.NoError(t, err)
		txn, err := sess.Txn(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Commit())
		txns = append(txns, txn)
	}
	assert.Equal(t, uint32(1), txns[0].Seq())
	assert.Equal(t, uint32(3), txns[2].Seq())
	assert.Less(t, txns[0], txns[1])
	assert.Less(t, txns[1], txns[2])
}

func TestSession_SQLiteTxnSeqRollsBackWithSession(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	_, err = sess.Txn(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Rollback())

	sess, err = s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	defer sess.Rollback()
	txn, err := sess.Txn(ctx)
	require.NoError(t, err)
	// The sequence bump rolled back with the session.
	assert.Equal(t, uint32(1), txn.Seq())
}

// autocommitSQLite bumps the transaction sequence outside the session, the way
// PostgreSQL does. Its transactions are deferred, so a session that has not read
// anything yet holds no lock.
type autocommitSQLite struct{ dialect.SQLite }

func (autocommitSQLite) Name() string           { return "sqlite-autocommit" }
func (autocommitSQLite) TxnSeqAutocommit() bool { return true }

func TestSession_AutocommitTxnSeqIsNotReused(t *testing.T) {
	clock := testutil.NewWallClock(testEpoch)
	s, err := open(autocommitSQLite{}, filepath.Join(t.TempDir(), "test.db"), Options{
		StorageID: "test",
		Now:       clock.Now,
		StreamIDs: testutil.NewFixedStreamID("test-stream"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	first, err := sess.Txn(ctx)
	require.NoError(t, err)

	// The bump is visible before the session ends.
	var seq int64
	require.NoError(t, s.DB().QueryRow("SELECT seq FROM geostore_txn_seq").Scan(&seq))
	assert.Equal(t, int64(1), seq)
	require.NoError(t, sess.Rollback())

	sess, err = s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	defer sess.Rollback()
	second, err := sess.Txn(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first.Seq())
	assert.Equal(t, uint32(2), second.Seq())
}

func TestSession_TxnRollsOverAtMidnight(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sess, err := s.Begin(ctx, SessionOptions{})
		require.NoError(t, err)
		_, err = sess.Txn(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Commit())
	}

	clock.Advance(24 * time.Hour)
	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	defer sess.Rollback()
	txn, err := sess.Txn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026:10:20:1", txn.String())
}

func TestSession_UIDsStartAtZero(t *testing.T) {
	s, _ := createTestStore(t)
	sess, err := s.Begin(context.Background(), SessionOptions{})
	require.NoError(t, err)
	defer sess.Rollback()

	assert.Equal(t, uint32(0), sess.NextUID())
	assert.Equal(t, uint32(1), sess.NextUID())
	assert.Equal(t, uint32(2), sess.NextUID())
	assert.Equal(t, uint32(3), sess.UIDsIssued())
}

func TestSession_AuthorDefaults(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "test-app", sess.AppID())
	assert.Equal(t, "", sess.Author())
	assert.Equal(t, "test-stream", sess.StreamID())
	require.NoError(t, sess.Rollback())

	sess, err = s.Begin(ctx, SessionOptions{Author: "alice", AppID: "editor"})
	require.NoError(t, err)
	defer sess.Rollback()
	assert.Equal(t, "alice", sess.Author())
	assert.Equal(t, "editor", sess.AppID())
}

func TestSession_CountersKeepFirstUseOrder(t *testing.T) {
	s, _ := createTestStore(t)
	sess, err := s.Begin(context.Background(), SessionOptions{})
	require.NoError(t, err)
	defer sess.Rollback()

	sess.Counters("rivers").Inserted++
	sess.Counters("roads").Updated += 2
	sess.Counters("rivers").Bytes += 10

	assert.Equal(t, []string{"rivers", "roads"}, sess.CounterCollections())
	assert.Equal(t, int64(1), sess.Counters("rivers").Inserted)
	assert.Equal(t, int64(10), sess.Counters("rivers").Bytes)
	assert.True(t, (&Counters{}).IsZero())
}

func TestSession_CacheWorkAppliedOnCommitOnly(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	c := createTestCollection(t, s, topology.Collection{ID: "roads"})

	old := createTestTuple(t, c, "r-1", 1, 0)
	s.Cache().Store(s.StorageID(), old)

	// Rolled back: nothing changes.
	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	next := createTestTuple(t, c, "r-1", 2, 0)
	sess.CacheStore(next)
	sess.CacheInvalidate(old.Number)
	require.NoError(t, sess.Rollback())
	assert.NotNil(t, s.Cache().Get(s.StorageID(), old.Number))
	assert.Nil(t, s.Cache().Get(s.StorageID(), next.Number))

	// Committed: old dropped, new cached.
	sess, err = s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	sess.CacheStore(next)
	sess.CacheInvalidate(old.Number)
	require.NoError(t, sess.Commit())
	assert.Nil(t, s.Cache().Get(s.StorageID(), old.Number))
	assert.Same(t, next, s.Cache().Get(s.StorageID(), next.Number))
}

func TestSession_ClosedSession(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, sess.Commit())

	assert.ErrorIs(t, sess.Commit(), ErrSessionClosed)
	assert.NoError(t, sess.Rollback())
	_, err = sess.Txn(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.True(t, sess.Done())
}

func TestSession_CollectionCreatedInRolledBackSessionIsForgotten(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	sess, err := s.Begin(ctx, SessionOptions{})
	require.NoError(t, err)
	_, err = s.Registry().Create(ctx, sess.Tx(), topology.Collection{ID: "roads"})
	require.NoError(t, err)
	_, err = sess.Collection(ctx, "roads")
	require.NoError(t, err)
	sess.ForgetCollection("roads")
	require.NoError(t, sess.Rollback())

	_, err = s.Registry().Get(ctx, s.DB(), "roads")
	assert.True(t, storeerr.IsNotFound(err), "roads must be gone after rollback")
}
