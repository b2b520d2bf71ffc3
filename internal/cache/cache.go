// Package cache provides the process-wide tuple cache.
//
// The cache is shared by all sessions without locks. Correctness relies on the
// atomic compute of the underlying map plus the gap-filling Tuple.Merge: a store
// can only ever add parts to a cached tuple, never remove them. Memory is bounded
// by a TTL and a maximum entry count enforced by GC, and the write path drops
// superseded states explicitly through Invalidate.
package cache

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/tuple"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxEntries = 100_000
	DefaultTTL        = 10 * time.Minute
)

// Options configures a TupleCache.
type Options struct {
	MaxEntries int
	TTL        time.Duration

	// Now overrides the wall clock (tests).
	Now func() time.Time
}

// Key identifies a cached tuple: storage id plus tuple number. Tuple numbers are
// kept in compact form so the same state is found regardless of partition bits.
type Key struct {
	Storage string
	Number  ident.TupleNumber
}

type entry struct {
	tuple   *tuple.Tuple
	touched atomic.Int64
}

// TupleCache maps (storage id, tuple number) to the most complete known tuple.
type TupleCache struct {
	m          *xsync.MapOf[Key, *entry]
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates an empty cache.
func New(opts Options) *TupleCache {
	c := &TupleCache{
		m:          xsync.NewMapOf[Key, *entry](),
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		now:        opts.Now,
	}
	if c.maxEntries <= 0 {
		c.maxEntries = DefaultMaxEntries
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func keyOf(storage string, tn ident.TupleNumber) Key {
	return Key{Storage: storage, Number: tn.Compact()}
}

// Get returns the cached tuple or nil. It never blocks.
func (c *TupleCache) Get(storage string, tn ident.TupleNumber) *tuple.Tuple {
	e, ok := c.m.Load(keyOf(storage, tn))
	if !ok || c.expired(e) {
		return nil
	}
	e.touched.Store(c.now().UnixNano())
	return e.tuple
}

// Store records t and returns the authoritative tuple for its number. When a live
// entry exists the result is existing.Merge(t); the entry is replaced only if the
// merge produced a new tuple.
func (c *TupleCache) Store(storage string, t *tuple.Tuple) *tuple.Tuple {
	if t == nil {
		return nil
	}
	now := c.now().UnixNano()
	actual, _ := c.m.Compute(keyOf(storage, t.Number), func(old *entry, loaded bool) (*entry, bool) {
		if loaded && !c.expired(old) {
			merged := old.tuple.Merge(t)
			if merged == old.tuple {
				old.touched.Store(now)
				return old, false
			}
			return newEntry(merged, now), false
		}
		return newEntry(t, now), false
	})
	return actual.tuple
}

func newEntry(t *tuple.Tuple, now int64) *entry {
	e := &entry{tuple: t}
	e.touched.Store(now)
	return e
}

// Invalidate drops the entry for tn.
func (c *TupleCache) Invalidate(storage string, tn ident.TupleNumber) {
	c.m.Delete(keyOf(storage, tn))
}

// Len returns the number of entries, expired ones included until the next GC.
func (c *TupleCache) Len() int {
	return c.m.Size()
}

// GC removes expired entries and, if the cache is still over its limit, the least
// recently touched ones. It returns the number of removed entries.
func (c *TupleCache) GC() int {
	removed := 0
	type aged struct {
		key     Key
		touched int64
	}
	var live []aged
	c.m.Range(func(k Key, e *entry) bool {
		if c.expired(e) {
			c.m.Delete(k)
			removed++
			return true
		}
		live = append(live, aged{key: k, touched: e.touched.Load()})
		return true
	})

	excess := len(live) - c.maxEntries
	if excess <= 0 {
		return removed
	}
	slices.SortFunc(live, func(a, b aged) int {
		switch {
		case a.touched < b.touched:
			return -1
		case a.touched > b.touched:
			return 1
		}
		return 0
	})
	for _, a := range live[:excess] {
		c.m.Delete(a.key)
		removed++
	}
	return removed
}

func (c *TupleCache) expired(e *entry) bool {
	return c.now().UnixNano()-e.touched.Load() > c.ttl.Nanoseconds()
}
