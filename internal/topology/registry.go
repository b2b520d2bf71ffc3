package topology

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/storeerr"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const registryColumns = `id, map_number, collection_number, partitions, history_disabled, auto_purge,
geo_encoding, feature_encoding, tags_encoding, created_at, updated_at`

// Registry reads and writes collection definitions. Definitions are cached for
// a short time; writers call Forget when a transaction that changed one ends.
type Registry struct {
	d     dialect.Dialect
	cache *expirable.LRU[string, Collection]
	now   func() time.Time
}

// NewRegistry creates a registry caching up to size definitions for ttl.
func NewRegistry(d dialect.Dialect, size int, ttl time.Duration, now func() time.Time) *Registry {
	if size <= 0 {
		size = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		d:     d,
		cache: expirable.NewLRU[string, Collection](size, nil, ttl),
		now:   now,
	}
}

// Get returns the definition of collection id.
func (r *Registry) Get(ctx context.Context, q Querier, id string) (*Collection, error) {
	if c, ok := r.cache.Get(id); ok {
		return &c, nil
	}
	c, err := r.load(ctx, q, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, *c)
	return c, nil
}

func (r *Registry) load(ctx context.Context, q Querier, id string) (*Collection, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+registryColumns+" FROM geostore_collections WHERE id = "+r.d.Placeholder(1), id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeerr.NewCollectionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", id, err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(s scanner) (*Collection, error) {
	var (
		c                          Collection
		mapNumber, number          int64
		historyDisabled, autoPurge int64
		geoEnc, featEnc, tagsEnc   int64
	)
	err := s.Scan(&c.ID, &mapNumber, &number, &c.Partitions, &historyDisabled, &autoPurge,
		&geoEnc, &featEnc, &tagsEnc, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.MapNumber = uint16(mapNumber)
	c.Number = uint64(number)
	c.HistoryDisabled = historyDisabled != 0
	c.AutoPurge = autoPurge != 0
	c.GeometryEncoding = uint8(geoEnc)
	c.FeatureEncoding = uint8(featEnc)
	c.TagsEncoding = uint8(tagsEnc)
	return &c, nil
}

// List returns all collections ordered by id.
func (r *Registry) List(ctx context.Context, q Querier) ([]Collection, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+registryColumns+" FROM geostore_collections ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return out, nil
}

// Create records c and creates its tables. A zero collection number is replaced
// by the next free number of the map.
func (r *Registry) Create(ctx context.Context, q Querier, c Collection) (*Collection, error) {
	if c.Partitions == 0 {
		c.Partitions = 1
	}
	if err := c.Validate(); err != nil {
		return nil, storeerr.NewIllegalArgument(c.ID, "", err.Error())
	}
	if _, err := r.load(ctx, q, c.ID); err == nil {
		return nil, storeerr.NewCollectionExists(c.ID)
	} else if !storeerr.IsNotFound(err) {
		return nil, err
	}
	if c.Number == 0 && !c.IsTransactionLog() {
		err := q.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(collection_number), 0) + 1 FROM geostore_collections WHERE map_number = "+r.d.Placeholder(1),
			int64(c.MapNumber)).Scan(&c.Number)
		if err != nil {
			return nil, fmt.Errorf("create collection %s: allocate number: %w", c.ID, err)
		}
	}
	now := r.now().UnixMilli()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := q.ExecContext(ctx,
		"INSERT INTO geostore_collections ("+registryColumns+") VALUES ("+dialect.Placeholders(r.d, 1, 11)+")",
		c.ID, int64(c.MapNumber), int64(c.Number), c.Partitions, boolInt(c.HistoryDisabled), boolInt(c.AutoPurge),
		int64(c.GeometryEncoding), int64(c.FeatureEncoding), int64(c.TagsEncoding), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if code, ok := storeerr.Translate(err); ok && code == storeerr.ErrCodeConflict {
			return nil, storeerr.NewCollectionExists(c.ID)
		}
		return nil, fmt.Errorf("create collection %s: %w", c.ID, err)
	}
	for _, stmt := range DDL(r.d, &c) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create collection %s: %w", c.ID, err)
		}
	}
	r.cache.Remove(c.ID)
	return &c, nil
}

// Ensure returns the existing definition of c.ID or creates it.
func (r *Registry) Ensure(ctx context.Context, q Querier, c Collection) (*Collection, error) {
	existing, err := r.Get(ctx, q, c.ID)
	if err == nil {
		return existing, nil
	}
	if !storeerr.IsNotFound(err) {
		return nil, err
	}
	return r.Create(ctx, q, c)
}

// Update changes the mutable settings of a collection: history, auto purge and
// payload encodings. Partitioning is fixed at creation.
func (r *Registry) Update(ctx context.Context, q Querier, c Collection) (*Collection, error) {
	cur, err := r.load(ctx, q, c.ID)
	if err != nil {
		return nil, err
	}
	if c.Partitions != 0 && c.Partitions != cur.Partitions {
		return nil, storeerr.NewIllegalArgument(c.ID, "", "partition count cannot change")
	}
	next := *cur
	next.HistoryDisabled = c.HistoryDisabled
	next.AutoPurge = c.AutoPurge
	next.GeometryEncoding = c.GeometryEncoding
	next.FeatureEncoding = c.FeatureEncoding
	next.TagsEncoding = c.TagsEncoding
	if err := next.Validate(); err != nil {
		return nil, storeerr.NewIllegalArgument(c.ID, "", err.Error())
	}
	next.UpdatedAt = r.now().UnixMilli()

	_, err = q.ExecContext(ctx, fmt.Sprintf(
		`UPDATE geostore_collections SET history_disabled = %s, auto_purge = %s, geo_encoding = %s,
feature_encoding = %s, tags_encoding = %s, updated_at = %s WHERE id = %s`,
		r.d.Placeholder(1), r.d.Placeholder(2), r.d.Placeholder(3), r.d.Placeholder(4),
		r.d.Placeholder(5), r.d.Placeholder(6), r.d.Placeholder(7)),
		boolInt(next.HistoryDisabled), boolInt(next.AutoPurge), int64(next.GeometryEncoding),
		int64(next.FeatureEncoding), int64(next.TagsEncoding), next.UpdatedAt, next.ID)
	if err != nil {
		return nil, fmt.Errorf("update collection %s: %w", c.ID, err)
	}
	r.cache.Remove(c.ID)
	return &next, nil
}

// Drop removes collection id and its tables.
func (r *Registry) Drop(ctx context.Context, q Querier, id string) error {
	c, err := r.load(ctx, q, id)
	if err != nil {
		return err
	}
	if c.IsTransactionLog() {
		return storeerr.NewIllegalArgument(id, "", "the transaction log cannot be dropped")
	}
	for _, stmt := range DropDDL(r.d, c) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop collection %s: %w", id, err)
		}
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM geostore_collections WHERE id = "+r.d.Placeholder(1), id); err != nil {
		return fmt.Errorf("drop collection %s: %w", id, err)
	}
	r.cache.Remove(id)
	return nil
}

// Forget drops cached definitions.
func (r *Registry) Forget(ids ...string) {
	for _, id := range ids {
		r.cache.Remove(id)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
