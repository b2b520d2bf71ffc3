package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
)

// Session is the part of a write transaction the engine needs.
// Implemented by *store.Session.
type Session interface {
	// Txn returns the version of the transaction, allocating it on first use.
	Txn(ctx context.Context) (ident.Version, error)
	NextUID() uint32
	Author() string
	AppID() string
	Now() time.Time
}

// Engine computes the metadata of new feature states.
type Engine struct {
	sess         Session
	excludePaths [][]string
	excludeFn    tuple.ExcludeFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithHashExclusions leaves property paths out of the content hash, in addition
// to the namespace property that is always excluded.
func WithHashExclusions(paths [][]string, fn tuple.ExcludeFunc) Option {
	return func(e *Engine) {
		e.excludePaths = paths
		e.excludeFn = fn
	}
}

// New creates an Engine writing through sess.
func New(sess Session, opts ...Option) *Engine {
	e := &Engine{sess: sess}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ContentHash hashes f with the engine's exclusions.
func (e *Engine) ContentHash(f *geojson.Feature) (int64, error) {
	return tuple.ContentHash(f, e.excludePaths, e.excludeFn)
}

// Insert returns the metadata of a newly created feature state. m supplies the
// caller owned fields: StoreNumber, ID, Flags encodings, Type, Origin and
// optionally GeoGrid. Everything else is computed.
func (e *Engine) Insert(ctx context.Context, collectionID string, m *tuple.Metadata, f *geojson.Feature, ref *orb.Point) (*tuple.Metadata, error) {
	txn, err := e.sess.Txn(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", m.ID, err)
	}
	hash, err := e.ContentHash(f)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", m.ID, err)
	}

	out := *m
	out.Version = txn
	if collectionID == topology.TransactionLog {
		// One record per transaction; the version alone identifies it.
		out.UID = 0
	} else {
		out.UID = e.sess.NextUID()
	}
	out.PrevVersion = 0
	out.PUID = 0
	out.NextVersion = 0
	out.ChangeCount = 1
	if out.GeoGrid == 0 {
		var g orb.Geometry
		if f != nil {
			g = f.Geometry
		}
		out.GeoGrid = tuple.GeoGrid(out.ID, ref, g)
	}
	out.AppID = e.sess.AppID()
	out.Author = e.sess.Author()
	if out.Author == "" {
		out.Author = out.AppID
	}
	now := e.sess.Now().UnixMilli()
	out.AuthorTs, out.CreatedAt, out.UpdatedAt = now, now, now
	out.Flags = out.Flags.WithAction(ident.ActionCreated)
	out.ContentHash = hash
	return &out, nil
}

// UpdateHead returns the metadata of a state that supersedes old.
func (e *Engine) UpdateHead(ctx context.Context, collectionID string, m *tuple.Metadata, f *geojson.Feature, ref *orb.Point, old *tuple.Metadata) (*tuple.Metadata, error) {
	out, err := e.Insert(ctx, collectionID, m, f, ref)
	if err != nil {
		return nil, err
	}
	out.ChangeCount = old.ChangeCount + 1
	out.PrevVersion = old.Version
	out.PUID = old.UID
	out.CreatedAt = old.CreatedAt
	out.Flags = out.Flags.WithAction(ident.ActionUpdated)
	if e.sess.Author() == "" {
		out.Author = old.Author
		out.AuthorTs = old.AuthorTs
	}
	return out, nil
}

// Tombstone returns the metadata of the marker that records the deletion of old.
// The tombstone is born superseded: its NextVersion equals its Version.
func (e *Engine) Tombstone(ctx context.Context, old *tuple.Metadata) (*tuple.Metadata, error) {
	txn, err := e.sess.Txn(ctx)
	if err != nil {
		return nil, fmt.Errorf("tombstone %s: %w", old.ID, err)
	}
	out := *old
	out.Version = txn
	out.NextVersion = txn
	out.UID = e.sess.NextUID()
	out.PrevVersion = old.Version
	out.PUID = old.UID
	out.ChangeCount = old.ChangeCount + 1
	out.Flags = old.Flags.WithAction(ident.ActionDeleted)
	out.AppID = e.sess.AppID()
	now := e.sess.Now().UnixMilli()
	out.UpdatedAt = now
	if author := e.sess.Author(); author != "" {
		out.Author = author
		out.AuthorTs = now
	}
	return &out, nil
}

// TombstoneTuple wraps Tombstone: the marker keeps the payload of old.
func (e *Engine) TombstoneTuple(ctx context.Context, old *tuple.Tuple) (*tuple.Tuple, error) {
	m, err := e.Tombstone(ctx, old.Meta)
	if err != nil {
		return nil, err
	}
	t := *old
	t.Meta = m
	t.Number = m.TupleNumber()
	return &t, nil
}
