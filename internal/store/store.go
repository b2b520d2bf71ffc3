package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/geostore/internal/cache"
	"github.com/roach88/geostore/internal/dialect"
	"github.com/roach88/geostore/internal/topology"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on geostore_collections(map_number, collection_number)
const currentSchemaVersion = 1

// Options configures a Store. Zero values select defaults.
type Options struct {
	// StorageID names this physical store in the tuple cache key.
	StorageID string

	// AppID and Author are the defaults of sessions that set neither.
	AppID  string
	Author string

	StatementTimeout time.Duration
	LockTimeout      time.Duration

	// Cache is the tuple cache to share. A private one is created when nil.
	Cache *cache.TupleCache

	CollectionCacheSize int
	CollectionCacheTTL  time.Duration

	// Now overrides the wall clock.
	Now func() time.Time

	// StreamIDs generates session stream ids.
	StreamIDs StreamIDGenerator
}

// Store provides durable, versioned feature storage.
type Store struct {
	db       *sql.DB
	dialect  dialect.Dialect
	registry *topology.Registry
	cache    *cache.TupleCache
	opts     Options
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts Options) (*Store, error) {
	return open(dialect.SQLite{}, dialect.SQLiteDSN(path), opts)
}

// OpenPostgres connects to a PostgreSQL database.
func OpenPostgres(dsn string, opts Options) (*Store, error) {
	return open(dialect.Postgres{}, dsn, opts)
}

// OpenDialect opens a store through the named dialect.
func OpenDialect(name, dsn string, opts Options) (*Store, error) {
	d, err := dialect.ByName(name)
	if err != nil {
		return nil, err
	}
	if d.Name() == "sqlite" {
		dsn = dialect.SQLiteDSN(dsn)
	}
	return open(d, dsn, opts)
}

func open(d dialect.Dialect, dsn string, opts Options) (*Store, error) {
	if opts.StorageID == "" {
		opts.StorageID = "default"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StreamIDs == nil {
		opts.StreamIDs = UUIDv7Generator{}
	}
	if opts.CollectionCacheTTL <= 0 {
		opts.CollectionCacheTTL = time.Minute
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.Options{Now: opts.Now})
	}

	db, err := sql.Open(d.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d.Name() == "sqlite" {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	s := &Store{
		db:       db,
		dialect:  d,
		registry: topology.NewRegistry(d, opts.CollectionCacheSize, opts.CollectionCacheTTL, opts.Now),
		cache:    opts.Cache,
		opts:     opts,
	}

	ctx := context.Background()
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := s.registry.Ensure(ctx, db, topology.Collection{ID: topology.TransactionLog, Partitions: 1}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transaction log: %w", err)
	}

	slog.Debug("store opened", "dialect", d.Name(), "storage", opts.StorageID)
	return s, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() dialect.Dialect     { return s.dialect }
func (s *Store) Registry() *topology.Registry { return s.registry }
func (s *Store) Cache() *cache.TupleCache     { return s.cache }
func (s *Store) StorageID() string            { return s.opts.StorageID }

// Collections lists the registered collections.
func (s *Store) Collections(ctx context.Context) ([]topology.Collection, error) {
	return s.registry.List(ctx, s.db)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on the recorded
// schema version.
func (s *Store) runMigrations(ctx context.Context) error {
	version, err := s.dialect.SchemaVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	if version < 1 {
		if err := migrateToV1(ctx, s.db); err != nil {
			return err
		}
	}

	slog.Info("store migrated", "from", version, "to", currentSchemaVersion)
	return s.dialect.SetSchemaVersion(ctx, s.db, currentSchemaVersion)
}

// migrateToV1 makes collection numbers unique within a map.
func migrateToV1(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_collections_number_unique
		ON geostore_collections(map_number, collection_number)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
