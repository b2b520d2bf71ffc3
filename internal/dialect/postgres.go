package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/roach88/geostore/internal/storeerr"
)

// Postgres is the server dialect.
type Postgres struct{}

func init() {
	storeerr.RegisterExtractor(func(err error) (string, bool) {
		var pe *pq.Error
		if errors.As(err, &pe) {
			return "postgres:" + string(pe.Code), true
		}
		return "", false
	})
	storeerr.RegisterStorageCode("postgres:23505", storeerr.ErrCodeConflict) // unique_violation
	storeerr.RegisterStorageCode("postgres:40001", storeerr.ErrCodeConflict) // serialization_failure
	storeerr.RegisterStorageCode("postgres:40P01", storeerr.ErrCodeLockTimeout)
	storeerr.RegisterStorageCode("postgres:55P03", storeerr.ErrCodeLockTimeout)
}

func (Postgres) Name() string   { return "postgres" }
func (Postgres) Driver() string { return "postgres" }

func (Postgres) Quote(name string) string { return pq.QuoteIdentifier(name) }

func (Postgres) Placeholder(i int) string { return "$" + strconv.Itoa(i) }
func (Postgres) ForUpdate() string        { return " FOR UPDATE" }
func (Postgres) RoutesPartitions() bool   { return true }
func (Postgres) TxnSeqAutocommit() bool   { return true }
func (Postgres) IntType() string          { return "BIGINT" }
func (Postgres) TextType() string         { return "TEXT" }
func (Postgres) BlobType() string         { return "BYTEA" }

func (Postgres) PartitionBy(column string) string {
	return " PARTITION BY LIST (" + pq.QuoteIdentifier(column) + ")"
}

func (Postgres) PartitionOf(parent, child string, p int) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES IN (%d)",
		pq.QuoteIdentifier(child), pq.QuoteIdentifier(parent), p)
}

func (Postgres) SessionSettings(statement, lock time.Duration) []string {
	var out []string
	if statement > 0 {
		out = append(out, fmt.Sprintf("SET LOCAL statement_timeout = %d", statement.Milliseconds()))
	}
	if lock > 0 {
		out = append(out, fmt.Sprintf("SET LOCAL lock_timeout = %d", lock.Milliseconds()))
	}
	return out
}

func (Postgres) SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS geostore_schema (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	var v int
	err := db.QueryRowContext(ctx, `SELECT version FROM geostore_schema`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}

func (Postgres) SetSchemaVersion(ctx context.Context, db *sql.DB, v int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM geostore_schema`); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO geostore_schema (version) VALUES ($1)`, v); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}
