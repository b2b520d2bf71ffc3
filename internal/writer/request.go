package writer

import (
	"fmt"
	"strings"

	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/tuple"
	"github.com/roach88/geostore/internal/writeplan"
)

// CollectionOp is a collection definition change.
type CollectionOp uint8

const (
	CollectionCreate CollectionOp = iota + 1
	CollectionUpdate
	CollectionDrop
)

func (o CollectionOp) String() string {
	switch o {
	case CollectionCreate:
		return "CREATE"
	case CollectionUpdate:
		return "UPDATE"
	case CollectionDrop:
		return "DROP"
	default:
		return fmt.Sprintf("CollectionOp(%d)", uint8(o))
	}
}

// ParseCollectionOp parses a collection operation name, case-insensitively.
func ParseCollectionOp(s string) (CollectionOp, error) {
	switch strings.ToUpper(s) {
	case "CREATE":
		return CollectionCreate, nil
	case "UPDATE":
		return CollectionUpdate, nil
	case "DROP":
		return CollectionDrop, nil
	}
	return 0, fmt.Errorf("unknown collection operation %q", s)
}

// CollectionMutation creates, updates or drops one collection.
type CollectionMutation struct {
	Op         CollectionOp
	Collection topology.Collection
}

// FeatureWrite is an intent addressed to a collection.
type FeatureWrite struct {
	Collection string
	writeplan.Intent
}

// Request is one write call. Collection mutations run before feature writes.
type Request struct {
	Collections []CollectionMutation
	Features    []FeatureWrite
}

// Row is the result of one feature write.
type Row struct {
	Collection string
	ID         string
	Action     writeplan.Action
	Number     ident.TupleNumber
	Superseded ident.TupleNumber
	Tuple      *tuple.Tuple
}

// CollectionResult is the result of one collection mutation. Collection is nil
// after a drop.
type CollectionResult struct {
	ID         string
	Op         CollectionOp
	Collection *topology.Collection
}

// Response is the result of a write call.
type Response struct {
	Collections []CollectionResult
	Rows        []Row
}
