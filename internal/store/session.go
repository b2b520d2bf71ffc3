package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
)

// ErrSessionClosed is returned by operations on a committed or rolled back session.
var ErrSessionClosed = errors.New("session closed")

// SessionOptions override the store defaults for one session.
type SessionOptions struct {
	Author string
	AppID  string
}

// Session is one write transaction.
//
// A Session is not safe for concurrent use.
type Session struct {
	store    *Store
	tx       *sql.Tx
	streamID string
	author   string
	appID    string

	txn  ident.Version
	uids uidClock

	counters map[string]*Counters
	order    []string

	cacheStores []*tuple.Tuple
	invalidated []ident.TupleNumber
	forget      []string

	done bool
}

// Begin starts a session. On SQLite it takes the database write lock, so no
// other session (or Store read) proceeds until it ends.
func (s *Store) Begin(ctx context.Context, opts SessionOptions) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	for _, stmt := range s.dialect.SessionSettings(s.opts.StatementTimeout, s.opts.LockTimeout) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("begin session: %w", err)
		}
	}
	sess := &Session{
		store:    s,
		tx:       tx,
		streamID: s.opts.StreamIDs.Generate(),
		author:   opts.Author,
		appID:    opts.AppID,
		counters: map[string]*Counters{},
	}
	if sess.author == "" {
		sess.author = s.opts.Author
	}
	if sess.appID == "" {
		sess.appID = s.opts.AppID
	}
	slog.Debug("session begin", "stream", sess.streamID)
	return sess, nil
}

func (s *Session) Tx() *sql.Tx                  { return s.tx }
func (s *Session) Dialect() dialect.Dialect     { return s.store.dialect }
func (s *Session) Registry() *topology.Registry { return s.store.registry }
func (s *Session) StreamID() string             { return s.streamID }
func (s *Session) StorageID() string            { return s.store.opts.StorageID }
func (s *Session) Author() string               { return s.author }
func (s *Session) AppID() string                { return s.appID }
func (s *Session) Now() time.Time               { return s.store.opts.Now() }
func (s *Session) UIDsIssued() uint32           { return s.uids.Issued() }
func (s *Session) Done() bool                   { return s.done }

// Txn returns the version of this transaction, allocating it on first use.
// The version is taken from the UTC day at allocation; a session spanning
// midnight keeps the day it started writing on.
//
// On SQLite the sequence is bumped inside the session, which already holds the
// database write lock. Dialects with row locks bump it in its own statement so
// concurrent sessions never wait on the sequence row.
func (s *Session) Txn(ctx context.Context) (ident.Version, error) {
	if s.done {
		return 0, ErrSessionClosed
	}
	if !s.txn.IsZero() {
		return s.txn, nil
	}
	now := s.Now()
	var q topology.Querier = s.tx
	if s.store.dialect.TxnSeqAutocommit() {
		q = s.store.db
	}
	var seq int64
	err := q.QueryRowContext(ctx, dialect.NextTxnSeq(s.store.dialect), int64(ident.DayOf(now))).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("allocate txn: %w", err)
	}
	if seq <= 0 || seq > math.MaxUint32 {
		return 0, fmt.Errorf("allocate txn: daily sequence %d out of range", seq)
	}
	s.txn = ident.VersionOf(now, uint32(seq))
	slog.Debug("txn allocated", "stream", s.streamID, "txn", s.txn.String())
	return s.txn, nil
}

// HasTxn reports whether a version was allocated, i.e. whether anything was written.
func (s *Session) HasTxn() bool {
	return !s.txn.IsZero()
}

// NextUID returns the next row uid of this transaction.
func (s *Session) NextUID() uint32 {
	return s.uids.Next()
}

// Collection returns the definition of collection id as seen by this transaction.
func (s *Session) Collection(ctx context.Context, id string) (*topology.Collection, error) {
	return s.store.registry.Get(ctx, s.tx, id)
}

// ForgetCollection drops the cached definition of id when the session ends.
func (s *Session) ForgetCollection(id string) {
	s.forget = append(s.forget, id)
}

// Counters returns the counters of collection, creating them on first use.
func (s *Session) Counters(collection string) *Counters {
	c, ok := s.counters[collection]
	if !ok {
		c = &Counters{}
		s.counters[collection] = c
		s.order = append(s.order, collection)
	}
	return c
}

// CounterCollections returns the collections with counters in first-use order.
func (s *Session) CounterCollections() []string {
	return s.order
}

// CacheStore queues t to be stored in the tuple cache on commit.
func (s *Session) CacheStore(t *tuple.Tuple) {
	s.cacheStores = append(s.cacheStores, t)
}

// CacheInvalidate queues tn to be dropped from the tuple cache on commit.
func (s *Session) CacheInvalidate(tn ident.TupleNumber) {
	s.invalidated = append(s.invalidated, tn)
}

// Commit commits the transaction and applies the queued cache work.
func (s *Session) Commit() error {
	if s.done {
		return ErrSessionClosed
	}
	s.done = true
	err := s.tx.Commit()
	s.store.registry.Forget(s.forget...)
	if err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	c := s.store.cache
	for _, tn := range s.invalidated {
		c.Invalidate(s.StorageID(), tn)
	}
	for _, t := range s.cacheStores {
		c.Store(s.StorageID(), t)
	}
	slog.Debug("session commit", "stream", s.streamID, "txn", s.txn.String(), "uids", s.uids.Issued())
	return nil
}

// Rollback aborts the transaction and discards the queued cache work. It is a
// no-op on a session that already ended, so it can be deferred.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	s.store.registry.Forget(s.forget...)
	s.cacheStores, s.invalidated = nil, nil
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback session: %w", err)
	}
	slog.Debug("session rollback", "stream", s.streamID)
	return nil
}
