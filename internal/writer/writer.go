// Package writer executes write requests inside a session.
//
// A request may touch several collections. The executor applies collection
// definition changes first, then splits the feature writes per collection in
// order of first appearance and runs one write plan per collection. Commit
// appends the transaction record to the transaction log before committing.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/engine"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/storeerr"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
	"github.com/roach88/geostore/internal/writeplan"
)

// Options configures an Executor.
type Options struct {
	// HashExcludePaths and HashExclude leave volatile properties out of change
	// detection.
	HashExcludePaths [][]string
	HashExclude      tuple.ExcludeFunc
}

// Executor runs write requests. It is stateless and safe for concurrent use
// with distinct sessions.
type Executor struct {
	opts Options
}

// NewExecutor creates an Executor.
func NewExecutor(opts Options) *Executor {
	return &Executor{opts: opts}
}

func (e *Executor) engine(sess *store.Session) *engine.Engine {
	return engine.New(sess, engine.WithHashExclusions(e.opts.HashExcludePaths, e.opts.HashExclude))
}

// Write runs req in sess. On error the caller must roll the session back.
func (e *Executor) Write(ctx context.Context, sess *store.Session, req Request) (*Response, error) {
	resp := &Response{}
	for _, m := range req.Collections {
		r, err := e.mutateCollection(ctx, sess, m)
		if err != nil {
			PlanFailures.WithLabelValues(string(codeOf(err))).Inc()
			slog.Error("collection mutation failed", "collection", m.Collection.ID, "op", m.Op.String(), "error", err)
			return nil, err
		}
		resp.Collections = append(resp.Collections, r)
	}

	var order []string
	batches := map[string][]writeplan.Intent{}
	for _, f := range req.Features {
		if f.Collection == topology.TransactionLog {
			return nil, storeerr.NewIllegalArgument(f.Collection, f.ID, "the transaction log is written at commit only")
		}
		if _, ok := batches[f.Collection]; !ok {
			order = append(order, f.Collection)
		}
		batches[f.Collection] = append(batches[f.Collection], f.Intent)
	}

	for _, id := range order {
		rows, err := e.writeCollection(ctx, sess, id, batches[id])
		if err != nil {
			PlanFailures.WithLabelValues(string(codeOf(err))).Inc()
			slog.Error("write failed", "collection", id, "stream", sess.StreamID(), "error", err)
			return nil, err
		}
		resp.Rows = append(resp.Rows, rows...)
	}
	return resp, nil
}

func codeOf(err error) storeerr.Code {
	if code := storeerr.CodeOf(err); code != "" {
		return code
	}
	return storeerr.ErrCodeExecution
}

func (e *Executor) mutateCollection(ctx context.Context, sess *store.Session, m CollectionMutation) (CollectionResult, error) {
	reg := sess.Registry()
	res := CollectionResult{ID: m.Collection.ID, Op: m.Op}
	sess.ForgetCollection(m.Collection.ID)

	var err error
	switch m.Op {
	case CollectionCreate:
		res.Collection, err = reg.Create(ctx, sess.Tx(), m.Collection)
	case CollectionUpdate:
		res.Collection, err = reg.Update(ctx, sess.Tx(), m.Collection)
	case CollectionDrop:
		err = reg.Drop(ctx, sess.Tx(), m.Collection.ID)
	default:
		err = storeerr.NewIllegalArgument(m.Collection.ID, "", "unknown collection operation "+m.Op.String())
	}
	if err != nil {
		return res, err
	}
	slog.Debug("collection mutated", "collection", m.Collection.ID, "op", m.Op.String())
	return res, nil
}

func (e *Executor) writeCollection(ctx context.Context, sess *store.Session, id string, intents []writeplan.Intent) ([]Row, error) {
	start := time.Now()
	c, err := sess.Collection(ctx, id)
	if err != nil {
		return nil, err
	}
	plan, err := writeplan.NewBuilder(sess, e.engine(sess)).Build(ctx, c, intents)
	if err != nil {
		return nil, err
	}
	if err := plan.Execute(ctx, sess.Tx()); err != nil {
		return nil, err
	}
	if plan.Changed() {
		// A purge of a tombstone creates no state; the transaction record
		// still has to be written.
		if _, err := sess.Txn(ctx); err != nil {
			return nil, err
		}
	}

	counters := sess.Counters(id)
	if c.IsTransactionLog() {
		counters.Disabled = true
	}
	rows := make([]Row, 0, len(plan.Results))
	for _, r := range plan.Results {
		row := Row{Collection: id, ID: r.ID, Action: r.Action, Superseded: r.Superseded, Tuple: r.Tuple}
		if r.Tuple != nil {
			row.Number = r.Tuple.Number
		}
		rows = append(rows, row)
		record(sess, counters, r)
		RowsWritten.WithLabelValues(id, r.Action.String()).Inc()
	}
	BatchDuration.WithLabelValues(id).Observe(time.Since(start).Seconds())
	slog.Debug("batch written", "collection", id, "stream", sess.StreamID(), "rows", len(rows))
	return rows, nil
}

// record updates the counters and queues the cache work of one result.
func record(sess *store.Session, counters *store.Counters, r writeplan.Result) {
	if !r.Superseded.IsZero() {
		sess.CacheInvalidate(r.Superseded)
	}
	if r.Replaced != nil {
		sess.CacheStore(r.Replaced)
	}
	switch r.Action {
	case writeplan.ActionCreated, writeplan.ActionUpdated, writeplan.ActionDeleted:
		sess.CacheStore(r.Tuple)
	case writeplan.ActionPurged:
		sess.CacheInvalidate(r.Tuple.Number)
	}
	if counters.Disabled {
		return
	}
	switch r.Action {
	case writeplan.ActionCreated:
		counters.Inserted++
		counters.Bytes += int64(r.Tuple.Size())
	case writeplan.ActionUpdated:
		counters.Updated++
		counters.Bytes += int64(r.Tuple.Size())
	case writeplan.ActionDeleted:
		counters.Deleted++
	case writeplan.ActionPurged:
		counters.Purged++
	}
}

// Commit writes the transaction record and commits sess. A session that wrote
// nothing commits without a record.
func (e *Executor) Commit(ctx context.Context, sess *store.Session) error {
	if sess.HasTxn() {
		if err := e.writeTransactionRecord(ctx, sess); err != nil {
			_ = sess.Rollback()
			return err
		}
	}
	return sess.Commit()
}

func (e *Executor) writeTransactionRecord(ctx context.Context, sess *store.Session) error {
	txn, err := sess.Txn(ctx)
	if err != nil {
		return err
	}
	sess.Counters(topology.TransactionLog).Disabled = true

	collections := map[string]any{}
	for _, id := range sess.CounterCollections() {
		c := sess.Counters(id)
		if c.Disabled {
			continue
		}
		collections[id] = c.Properties()
	}
	f := geojson.NewFeature(nil)
	f.ID = txn.String()
	f.Properties["stream"] = sess.StreamID()
	f.Properties["collections"] = collections

	_, err = e.writeCollection(ctx, sess, topology.TransactionLog, []writeplan.Intent{{
		Op:      writeplan.OpCreate,
		ID:      txn.String(),
		Feature: f,
		Type:    "Transaction",
	}})
	if err != nil {
		return fmt.Errorf("write transaction record: %w", err)
	}
	return nil
}
