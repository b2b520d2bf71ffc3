package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
)

// lookupChunk bounds the number of ids bound into one IN list.
const lookupChunk = 500

// Head returns the current state of feature id, or nil if it has none.
func (s *Store) Head(ctx context.Context, collection, id string) (*tuple.Tuple, error) {
	c, err := s.registry.Get(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	t, err := readOne(ctx, s.db, s.dialect, c.HeadTable(c.Partition(id)), id)
	if err != nil || t == nil {
		return t, err
	}
	return s.cache.Store(s.opts.StorageID, t), nil
}

// Deleted returns the tombstone of feature id, or nil if it has none.
func (s *Store) Deleted(ctx context.Context, collection, id string) (*tuple.Tuple, error) {
	c, err := s.registry.Get(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	t, err := readOne(ctx, s.db, s.dialect, c.DeleteTable(), id)
	if err != nil || t == nil {
		return t, err
	}
	return s.cache.Store(s.opts.StorageID, t), nil
}

// History returns the superseded states of feature id, oldest first.
func (s *Store) History(ctx context.Context, collection, id string) ([]*tuple.Tuple, error) {
	c, err := s.registry.Get(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	return readHistory(ctx, s.db, s.dialect, c, id)
}

// Lookup reads the rows of ids from table. With lock set the rows are locked
// until the session ends (FOR UPDATE where the dialect supports it). Missing
// ids are absent from the result.
func (s *Session) Lookup(ctx context.Context, table string, ids []string, lock bool) (map[string]*tuple.Tuple, error) {
	d := s.store.dialect
	out := make(map[string]*tuple.Tuple, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := min(start+lookupChunk, len(ids))
		chunk := ids[start:end]
		query := LookupSQL(d, table, len(chunk), lock)
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", table, err)
		}
		for rows.Next() {
			t, err := ScanTuple(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("lookup %s: %w", table, err)
			}
			out[t.Meta.ID] = t
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", table, err)
		}
	}
	return out, nil
}

// LookupSQL returns the bulk lookup statement for n ids.
func LookupSQL(d dialect.Dialect, table string, n int, lock bool) string {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		SelectColumns(d), d.Quote(table), d.Quote("id"), dialect.Placeholders(d, 1, n))
	if lock {
		q += d.ForUpdate()
	}
	return q
}

func readOne(ctx context.Context, q topology.Querier, d dialect.Dialect, table, id string) (*tuple.Tuple, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		SelectColumns(d), d.Quote(table), d.Quote("id"), d.Placeholder(1)), id)
	t, err := ScanTuple(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", table, id, err)
	}
	return t, nil
}

func readHistory(ctx context.Context, q topology.Querier, d dialect.Dialect, c *topology.Collection, id string) ([]*tuple.Tuple, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s ASC, %s ASC",
		SelectColumns(d), d.Quote(c.HistoryTable()), d.Quote("id"), d.Placeholder(1), d.Quote("txn"), d.Quote("uid")), id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []*tuple.Tuple{}
	for rows.Next() {
		t, err := ScanTuple(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}
