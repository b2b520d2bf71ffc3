package ident

import "fmt"

// Action records which transition produced a tuple.
type Action uint8

const (
	ActionCreated Action = 0
	ActionUpdated Action = 1
	ActionDeleted Action = 2
	ActionUnknown Action = 3
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "CREATED"
	case ActionUpdated:
		return "UPDATED"
	case ActionDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Payload encodings selected by the Flags bits.
const (
	GeoWKB     uint8 = 0
	GeoGeoJSON uint8 = 1

	FeatureJSON       uint8 = 0
	FeatureJSONSnappy uint8 = 1

	TagsJSON uint8 = 0
	TagsCBOR uint8 = 1
)

const (
	geoShift       = 0
	featureShift   = 4
	tagsShift      = 8
	actionShift    = 12
	flagsPartShift = 16

	nibbleMask     = uint32(0xF)
	actionMask     = uint32(0x3)
	flagsPartMask  = uint32(0xFF)
	flagsKnownBits = nibbleMask<<geoShift | nibbleMask<<featureShift | nibbleMask<<tagsShift |
		actionMask<<actionShift | flagsPartMask<<flagsPartShift
)

// Flags is the 32-bit per-row flag word.
//
//	bits  0-3  geometry encoding
//	bits  4-7  feature encoding
//	bits  8-11 tags encoding
//	bits 12-13 action
//	bits 16-23 partition number (informational)
type Flags uint32

// FlagsFromInt validates a raw column value.
func FlagsFromInt(v int64) (Flags, error) {
	if v < 0 || uint64(v) > uint64(^uint32(0)) || uint32(v)&^flagsKnownBits != 0 {
		return 0, fmt.Errorf("invalid flags value %#x", v)
	}
	return Flags(v), nil
}

func (f Flags) GeometryEncoding() uint8 { return uint8(uint32(f) >> geoShift & nibbleMask) }
func (f Flags) FeatureEncoding() uint8  { return uint8(uint32(f) >> featureShift & nibbleMask) }
func (f Flags) TagsEncoding() uint8     { return uint8(uint32(f) >> tagsShift & nibbleMask) }
func (f Flags) Action() Action          { return Action(uint32(f) >> actionShift & actionMask) }
func (f Flags) PartitionNumber() uint8  { return uint8(uint32(f) >> flagsPartShift & flagsPartMask) }

func (f Flags) set(shift, mask, v uint32) Flags {
	return Flags(uint32(f)&^(mask<<shift) | (v&mask)<<shift)
}

func (f Flags) WithGeometryEncoding(e uint8) Flags {
	return f.set(geoShift, nibbleMask, uint32(e))
}

func (f Flags) WithFeatureEncoding(e uint8) Flags {
	return f.set(featureShift, nibbleMask, uint32(e))
}

func (f Flags) WithTagsEncoding(e uint8) Flags {
	return f.set(tagsShift, nibbleMask, uint32(e))
}

func (f Flags) WithAction(a Action) Flags {
	return f.set(actionShift, actionMask, uint32(a))
}

func (f Flags) WithPartitionNumber(p uint8) Flags {
	return f.set(flagsPartShift, flagsPartMask, uint32(p))
}

func (f Flags) String() string {
	return fmt.Sprintf("flags(geo=%d feature=%d tags=%d action=%s partition=%d)",
		f.GeometryEncoding(), f.FeatureEncoding(), f.TagsEncoding(), f.Action(), f.PartitionNumber())
}
