package ident

import (
	"fmt"
	"strconv"
)

const (
	PartitionBits  = 8
	CollectionBits = 40
	MapBits        = 16

	partitionMask  = uint64(1)<<PartitionBits - 1
	collectionMask = uint64(1)<<CollectionBits - 1
	mapShift       = PartitionBits + CollectionBits

	// MaxCollectionNumber is the largest collection number a StoreNumber can carry.
	MaxCollectionNumber = collectionMask
)

// StoreNumber locates a row: map number, collection number and partition number.
type StoreNumber uint64

// NewStoreNumber packs the components. The collection number must fit 40 bits.
func NewStoreNumber(mapNumber uint16, collection uint64, partition uint8) (StoreNumber, error) {
	if collection > collectionMask {
		return 0, fmt.Errorf("collection number %d exceeds %d bits", collection, CollectionBits)
	}
	n := uint64(mapNumber)<<mapShift | collection<<PartitionBits | uint64(partition)
	return StoreNumber(n), nil
}

// MustStoreNumber is like NewStoreNumber but panics on error.
// Use only in tests or with constant inputs.
func MustStoreNumber(mapNumber uint16, collection uint64, partition uint8) StoreNumber {
	s, err := NewStoreNumber(mapNumber, collection, partition)
	if err != nil {
		panic(err)
	}
	return s
}

func (s StoreNumber) MapNumber() uint16 {
	return uint16(uint64(s) >> mapShift)
}

func (s StoreNumber) CollectionNumber() uint64 {
	return (uint64(s) >> PartitionBits) & collectionMask
}

func (s StoreNumber) PartitionNumber() uint8 {
	return uint8(uint64(s) & partitionMask)
}

// Compact strips the partition bits, leaving the identity of the collection
// independent of physical placement.
func (s StoreNumber) Compact() StoreNumber {
	return StoreNumber(uint64(s) &^ partitionMask)
}

// Restore combines a (compacted) store number with a partition number.
func (s StoreNumber) Restore(partition uint8) StoreNumber {
	return StoreNumber(uint64(s)&^partitionMask | uint64(partition))
}

// RestoreID combines a (compacted) store number with the partition of a feature id.
func (s StoreNumber) RestoreID(id string) StoreNumber {
	return s.Restore(PartitionNumber(id))
}

// String returns the store number as 16 lower-case hex digits.
func (s StoreNumber) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// ParseStoreNumber decodes the String form.
func ParseStoreNumber(str string) (StoreNumber, error) {
	if len(str) != 16 {
		return 0, fmt.Errorf("parse store number %q: want 16 hex digits", str)
	}
	n, err := strconv.ParseUint(str, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse store number %q: %w", str, err)
	}
	return StoreNumber(n), nil
}
