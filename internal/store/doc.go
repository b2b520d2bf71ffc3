// Package store provides the database side of the write path: opening a store,
// sessions and reads.
//
// A Store owns a *sql.DB, the collection registry and the process-wide tuple
// cache. A Session is one database transaction. It allocates the transaction
// version lazily from geostore_txn_seq, hands out row uids, keeps
// per-collection counters and queues cache updates that are applied on Commit
// and dropped on Rollback.
//
// # Database Configuration
//
// SQLite (Open):
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: Every session holds the write lock from BEGIN
//   - a single connection; reads through the Store block while a Session is open
//
// PostgreSQL (OpenPostgres):
//   - row locks via SELECT ... FOR UPDATE
//   - SET LOCAL statement_timeout / lock_timeout per session
//   - the daily txn sequence is bumped in its own statement, outside the session
package store
