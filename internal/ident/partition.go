package ident

import "github.com/cespare/xxhash/v2"

// PartitionNumber returns the partition number of a feature id: the most
// significant byte of the xxhash64 of the id.
func PartitionNumber(id string) uint8 {
	return uint8(xxhash.Sum64String(id) >> 56)
}

// PhysicalPartition maps a partition number onto one of n physical partitions.
// Returns -1 when the collection is not partitioned (n <= 1).
func PhysicalPartition(partition uint8, n int) int {
	if n <= 1 {
		return -1
	}
	return int(partition) % n
}
