// Package dialect hides the SQL differences between the supported back ends.
//
// SQLite serves embedded use and tests. It has neither row locks nor declarative
// partitioning: sessions take the database write lock up front (BEGIN IMMEDIATE)
// and partitioned collections are written one partition table at a time.
// PostgreSQL locks rows with FOR UPDATE and routes rows through the partitioned
// parent table.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Dialect is one SQL back end.
type Dialect interface {
	// Name is the configuration name of the dialect ("sqlite", "postgres").
	Name() string

	// Driver is the database/sql driver name.
	Driver() string

	// Quote quotes an identifier.
	Quote(name string) string

	// Placeholder returns the i-th (1-based) bind parameter.
	Placeholder(i int) string

	// ForUpdate is appended to locking reads. Empty when locking is implicit.
	ForUpdate() string

	// RoutesPartitions reports whether writes to a partitioned parent table are
	// routed to the right partition by the database.
	RoutesPartitions() bool

	// Column types.
	IntType() string
	TextType() string
	BlobType() string

	// PartitionBy is the clause appended to a partitioned parent table. Empty
	// when the dialect does not partition declaratively.
	PartitionBy(column string) string

	// PartitionOf returns the DDL that attaches child as partition p of parent,
	// or "" when partition tables are standalone.
	PartitionOf(parent, child string, p int) string

	// TxnSeqAutocommit reports whether the daily transaction sequence is bumped
	// outside the session transaction. The sequence row lock is then held for
	// one statement only, and a rolled back session leaves a gap in the
	// sequence instead of handing its version out again.
	TxnSeqAutocommit() bool

	// SessionSettings returns the statements that apply timeouts to the current
	// transaction.
	SessionSettings(statement, lock time.Duration) []string

	// SchemaVersion and SetSchemaVersion track applied migrations.
	SchemaVersion(ctx context.Context, db *sql.DB) (int, error)
	SetSchemaVersion(ctx context.Context, db *sql.DB, v int) error
}

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// Placeholders returns n comma separated bind parameters starting at start.
func Placeholders(d Dialect, start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(start + i))
	}
	return b.String()
}

// NextTxnSeq returns the statement that bumps and returns the daily transaction
// sequence. Its only parameter is the day.
func NextTxnSeq(d Dialect) string {
	return fmt.Sprintf(`INSERT INTO geostore_txn_seq (day, seq) VALUES (%s, 1)
ON CONFLICT (day) DO UPDATE SET seq = geostore_txn_seq.seq + 1
RETURNING seq`, d.Placeholder(1))
}
