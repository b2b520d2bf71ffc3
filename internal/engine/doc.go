// Package engine implements the row transitions of a feature.
//
// Every write of a feature produces a new state whose metadata is computed here,
// before any statement runs:
//
//	absent -> CREATED -> UPDATED* -> DELETED -> PURGED
//	                                         -> CREATED
//
// Insert stamps a brand new state, UpdateHead a state that supersedes the
// current HEAD row and Tombstone the marker of a deleted feature. Whenever HEAD
// is overwritten or removed, the caller first copies it to HISTORY with
// NextVersion set to the superseding transaction.
//
// The engine holds no state of its own. Versions, uids, the author and the clock
// come from the Session.
package engine
