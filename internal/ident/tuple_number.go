package ident

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// TupleNumberSize is the length of the binary form of a TupleNumber.
const TupleNumberSize = 20

// TupleNumber identifies exactly one state of one feature.
type TupleNumber struct {
	Store   StoreNumber
	Version Version
	UID     uint32
}

// Compact strips the partition bits of the store number.
func (t TupleNumber) Compact() TupleNumber {
	t.Store = t.Store.Compact()
	return t
}

// Restore sets the partition bits of the store number.
func (t TupleNumber) Restore(partition uint8) TupleNumber {
	t.Store = t.Store.Restore(partition)
	return t
}

// RestoreID sets the partition bits derived from a feature id.
func (t TupleNumber) RestoreID(id string) TupleNumber {
	t.Store = t.Store.RestoreID(id)
	return t
}

func (t TupleNumber) IsZero() bool {
	return t == TupleNumber{}
}

// SameState reports whether both numbers identify the same state regardless of
// physical placement.
func (t TupleNumber) SameState(o TupleNumber) bool {
	return t.Compact() == o.Compact()
}

// Compare orders by compacted store number, then version, then uid.
func (t TupleNumber) Compare(o TupleNumber) int {
	if c := cmp.Compare(t.Store.Compact(), o.Store.Compact()); c != 0 {
		return c
	}
	if c := cmp.Compare(t.Version, o.Version); c != 0 {
		return c
	}
	return cmp.Compare(t.UID, o.UID)
}

// Bytes encodes the number as 20 big-endian bytes: store, version, uid.
func (t TupleNumber) Bytes() []byte {
	b := make([]byte, TupleNumberSize)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.Store))
	binary.BigEndian.PutUint64(b[8:16], uint64(t.Version))
	binary.BigEndian.PutUint32(b[16:20], t.UID)
	return b
}

// TupleNumberFromBytes decodes the Bytes form.
func TupleNumberFromBytes(b []byte) (TupleNumber, error) {
	if len(b) != TupleNumberSize {
		return TupleNumber{}, fmt.Errorf("decode tuple number: want %d bytes, got %d", TupleNumberSize, len(b))
	}
	return TupleNumber{
		Store:   StoreNumber(binary.BigEndian.Uint64(b[0:8])),
		Version: Version(binary.BigEndian.Uint64(b[8:16])),
		UID:     binary.BigEndian.Uint32(b[16:20]),
	}, nil
}

// String returns "<store-hex>:<YYYY:MM:DD:SEQ>:<uid>".
func (t TupleNumber) String() string {
	return t.Store.String() + ":" + t.Version.String() + ":" + strconv.FormatUint(uint64(t.UID), 10)
}

// ParseTupleNumber decodes the String form.
func ParseTupleNumber(s string) (TupleNumber, error) {
	first := strings.IndexByte(s, ':')
	last := strings.LastIndexByte(s, ':')
	if first < 0 || last <= first {
		return TupleNumber{}, fmt.Errorf("parse tuple number %q: malformed", s)
	}
	store, err := ParseStoreNumber(s[:first])
	if err != nil {
		return TupleNumber{}, fmt.Errorf("parse tuple number: %w", err)
	}
	version, err := ParseVersion(s[first+1 : last])
	if err != nil {
		return TupleNumber{}, fmt.Errorf("parse tuple number: %w", err)
	}
	uid, err := strconv.ParseUint(s[last+1:], 10, 32)
	if err != nil {
		return TupleNumber{}, fmt.Errorf("parse tuple number %q: %w", s, err)
	}
	return TupleNumber{Store: store, Version: version, UID: uint32(uid)}, nil
}

// MarshalText implements encoding.TextMarshaler so tuple numbers travel as strings
// in YAML and JSON batch files.
func (t TupleNumber) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TupleNumber) UnmarshalText(b []byte) error {
	parsed, err := ParseTupleNumber(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
