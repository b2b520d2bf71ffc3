// Package tuple holds the immutable per-state record of a feature.
//
// A Tuple is one state of one feature at one Version, identified by its
// TupleNumber. It may be partially loaded: the metadata and each payload part
// (feature, geometry, reference point, tags, attachment) are optional, and the
// Parts bitmask records which ones were loaded. Merge only fills gaps; a part
// that is present never changes.
package tuple
