// Package writeplan turns a batch of feature intents for one collection into
// batched SQL.
//
// Build runs entirely before the first write:
//
//  1. duplicate ids fail the batch (DUPLICATE_OPERATION)
//  2. every id is mapped to its physical partition and target table
//  3. the existing HEAD rows (and DELETE rows for purges) are read and locked
//     with one query per table
//  4. optimistic preconditions are checked (CONFLICT)
//  5. each intent is dispatched into rows of the eight statement shapes
//
// Execute then runs one prepared statement per (shape, table) group in the
// fixed shape order. A failure leaves the transaction to be rolled back by the
// caller.
package writeplan
