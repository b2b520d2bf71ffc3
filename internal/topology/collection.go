// Package topology maps collections onto physical tables.
//
// A collection with id "roads" owns:
//
//	roads          HEAD (the partitioned parent when partitions > 1 on PostgreSQL)
//	roads$p<NNN>   HEAD partitions, when partitions > 1
//	roads$del      DELETE, tombstones of deleted features
//	roads$hst      HISTORY, every superseded state
//
// Collections are recorded in geostore_collections and cached by Registry.
package topology

import (
	"fmt"
	"regexp"

	"github.com/roach88/geostore/internal/ident"
)

// TransactionLog is the internal collection the transaction records go to.
const TransactionLog = "geostore~transactions"

// MaxPartitions bounds the partition count; physical partitions are derived from
// an 8-bit partition number.
const MaxPartitions = 256

var collectionIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_~-]{0,62}$`)

// Collection is the stored configuration of one collection.
type Collection struct {
	ID         string
	MapNumber  uint16
	Number     uint64
	Partitions int

	HistoryDisabled bool
	AutoPurge       bool

	GeometryEncoding uint8
	FeatureEncoding  uint8
	TagsEncoding     uint8

	CreatedAt int64
	UpdatedAt int64
}

// Validate checks the settings a caller may supply.
func (c *Collection) Validate() error {
	if !collectionIDPattern.MatchString(c.ID) {
		return fmt.Errorf("invalid collection id %q", c.ID)
	}
	if c.Partitions < 1 || c.Partitions > MaxPartitions {
		return fmt.Errorf("collection %s: partitions must be in [1, %d], got %d", c.ID, MaxPartitions, c.Partitions)
	}
	if c.Number > ident.MaxCollectionNumber {
		return fmt.Errorf("collection %s: number %d out of range", c.ID, c.Number)
	}
	if c.GeometryEncoding > ident.GeoGeoJSON || c.FeatureEncoding > ident.FeatureJSONSnappy || c.TagsEncoding > ident.TagsCBOR {
		return fmt.Errorf("collection %s: unknown payload encoding", c.ID)
	}
	return nil
}

// IsTransactionLog reports whether c is the internal transaction log.
func (c *Collection) IsTransactionLog() bool {
	return c.ID == TransactionLog
}

// StoreNumber returns the store number of feature id in c.
func (c *Collection) StoreNumber(id string) ident.StoreNumber {
	return ident.MustStoreNumber(c.MapNumber, c.Number, ident.PartitionNumber(id))
}

// Flags returns the flags new rows of feature id start from.
func (c *Collection) Flags(id string) ident.Flags {
	return ident.Flags(0).
		WithGeometryEncoding(c.GeometryEncoding).
		WithFeatureEncoding(c.FeatureEncoding).
		WithTagsEncoding(c.TagsEncoding).
		WithPartitionNumber(ident.PartitionNumber(id))
}

// Partition returns the physical partition of feature id, or -1 when c is not
// partitioned.
func (c *Collection) Partition(id string) int {
	return ident.PhysicalPartition(ident.PartitionNumber(id), c.Partitions)
}

// HeadTable returns the unquoted HEAD table of physical partition p. A negative p
// names the parent table.
func (c *Collection) HeadTable(p int) string {
	if p < 0 {
		return c.ID
	}
	return fmt.Sprintf("%s$p%03d", c.ID, p)
}

func (c *Collection) DeleteTable() string  { return c.ID + "$del" }
func (c *Collection) HistoryTable() string { return c.ID + "$hst" }
