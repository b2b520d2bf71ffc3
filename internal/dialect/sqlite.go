package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/geostore/internal/storeerr"
)

// SQLite is the embedded dialect.
type SQLite struct{}

func init() {
	storeerr.RegisterExtractor(func(err error) (string, bool) {
		var se sqlite3.Error
		if errors.As(err, &se) {
			return fmt.Sprintf("sqlite:%d", int(se.ExtendedCode)), true
		}
		return "", false
	})
	for _, code := range []sqlite3.ErrNoExtended{
		sqlite3.ErrConstraintPrimaryKey,
		sqlite3.ErrConstraintUnique,
	} {
		storeerr.RegisterStorageCode(fmt.Sprintf("sqlite:%d", int(code)), storeerr.ErrCodeConflict)
	}
	for _, code := range []sqlite3.ErrNoExtended{
		sqlite3.ErrNoExtended(sqlite3.ErrBusy),
		sqlite3.ErrNoExtended(sqlite3.ErrLocked),
		sqlite3.ErrBusyRecovery,
		sqlite3.ErrBusySnapshot,
		sqlite3.ErrLockedSharedCache,
	} {
		storeerr.RegisterStorageCode(fmt.Sprintf("sqlite:%d", int(code)), storeerr.ErrCodeLockTimeout)
	}
}

func (SQLite) Name() string   { return "sqlite" }
func (SQLite) Driver() string { return "sqlite3" }

func (SQLite) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) Placeholder(int) string { return "?" }
func (SQLite) ForUpdate() string      { return "" }
func (SQLite) RoutesPartitions() bool { return false }
func (SQLite) TxnSeqAutocommit() bool { return false }
func (SQLite) IntType() string        { return "INTEGER" }
func (SQLite) TextType() string       { return "TEXT" }
func (SQLite) BlobType() string       { return "BLOB" }

func (SQLite) PartitionBy(string) string                             { return "" }
func (SQLite) PartitionOf(string, string, int) string                { return "" }
func (SQLite) SessionSettings(time.Duration, time.Duration) []string { return nil }

func (SQLite) SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return v, nil
}

func (SQLite) SetSchemaVersion(ctx context.Context, db *sql.DB, v int) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// SQLiteDSN turns a file path into a DSN whose transactions take the write lock
// at BEGIN.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}
