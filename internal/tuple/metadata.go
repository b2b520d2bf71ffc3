package tuple

import "github.com/roach88/geostore/internal/ident"

// Metadata is the immutable bookkeeping of one feature state.
//
// PrevVersion and NextVersion are zero when absent. PUID is only meaningful when
// PrevVersion is set. ChangeCount counts the states of the feature (1 on creation).
// Timestamps are Unix milliseconds.
type Metadata struct {
	StoreNumber ident.StoreNumber
	Version     ident.Version
	PrevVersion ident.Version
	NextVersion ident.Version
	UID         uint32
	PUID        uint32
	ContentHash int64
	ChangeCount int64
	GeoGrid     int64
	Flags       ident.Flags
	ID          string
	AppID       string
	Author      string
	AuthorTs    int64
	CreatedAt   int64
	UpdatedAt   int64
	Type        string
	Origin      string
}

// TupleNumber returns the identity of the state described by m.
func (m *Metadata) TupleNumber() ident.TupleNumber {
	return ident.TupleNumber{Store: m.StoreNumber, Version: m.Version, UID: m.UID}
}

// Equal compares everything but NextVersion: a state stays the same state after
// it has been superseded.
func (m *Metadata) Equal(o *Metadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	a, b := *m, *o
	a.NextVersion, b.NextVersion = 0, 0
	return a == b
}

func (m *Metadata) Action() ident.Action {
	return m.Flags.Action()
}

// HasPrev reports whether the state has a predecessor.
func (m *Metadata) HasPrev() bool {
	return !m.PrevVersion.IsZero()
}
