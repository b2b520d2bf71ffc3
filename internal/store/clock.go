package store

import "sync/atomic"

// uidClock hands out the row uids of one transaction: 0, 1, 2, ...
// Uids are unique within a transaction version, which makes
// (store number, version, uid) unique.
type uidClock struct {
	next atomic.Uint32
}

// Next returns the next uid and advances the clock.
func (c *uidClock) Next() uint32 {
	return c.next.Add(1) - 1
}

// Issued returns how many uids were handed out.
func (c *uidClock) Issued() uint32 {
	return c.next.Load()
}
