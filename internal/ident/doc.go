// Package ident provides the bit-packed identifiers of the row storage model.
//
// All identifiers are plain values with pure encode/decode functions:
//   - StoreNumber: map(16) | collection(40) | partition(8)
//   - Version:     year(23) | month(4) | day(5) | daily sequence(32)
//   - TupleNumber: StoreNumber + Version + uid(32), 160 bits
//   - Flags:       geometry/feature/tags encodings, action, partition
//
// The partition number of a feature is never stored on its own: it is the first
// byte of the xxhash64 of the feature id, so any compacted identifier can be
// restored once the id is known.
//
// This package imports nothing internal.
package ident
