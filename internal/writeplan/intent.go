package writeplan

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geostore/internal/ident"
	"github.com/roach88/geostore/internal/tuple"
)

// Op is the requested operation of an intent.
type Op uint8

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpUpsert
	OpDelete
	OpPurge
)

var opNames = map[Op]string{
	OpCreate: "CREATE",
	OpUpdate: "UPDATE",
	OpUpsert: "UPSERT",
	OpDelete: "DELETE",
	OpPurge:  "PURGE",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// ParseOp parses an operation name, case-insensitively.
func ParseOp(s string) (Op, error) {
	up := strings.ToUpper(s)
	for op, name := range opNames {
		if name == up {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Intent is one requested mutation of one feature.
type Intent struct {
	Op Op
	ID string

	// Feature is required by CREATE, UPDATE and UPSERT. Its id, when set, must
	// equal ID.
	Feature        *geojson.Feature
	ReferencePoint *orb.Point
	Tags           []string
	Attachment     []byte
	Type           string
	Origin         string

	// Expected, when set, is the state the caller believes is current. The
	// batch fails with CONFLICT when it is not.
	Expected *ident.TupleNumber
}

func (i *Intent) content(f *geojson.Feature) tuple.Content {
	return tuple.Content{Feature: f, ReferencePoint: i.ReferencePoint, Tags: i.Tags, Attachment: i.Attachment}
}

// Action is what happened to a feature.
type Action uint8

const (
	ActionCreated Action = iota + 1
	ActionUpdated
	ActionDeleted
	ActionPurged
	ActionRetained
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "CREATED"
	case ActionUpdated:
		return "UPDATED"
	case ActionDeleted:
		return "DELETED"
	case ActionPurged:
		return "PURGED"
	case ActionRetained:
		return "RETAINED"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Result reports the outcome for one intent.
type Result struct {
	ID     string
	Op     Op
	Action Action

	// Tuple is the resulting state: the new HEAD state, the tombstone, or for
	// RETAINED the unchanged current state (nil if there is none).
	Tuple *tuple.Tuple

	// Superseded is the state this write replaced or removed, zero if none.
	Superseded ident.TupleNumber

	// Replaced is that state as copied to HISTORY, carrying its NextVersion.
	// Nil when the collection keeps no history.
	Replaced *tuple.Tuple
}
