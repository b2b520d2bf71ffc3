package cli

import (
	"log/slog"

	"github.com/roach88/geostore/internal/config"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/writer"
)

// loadConfig reads --config, if given, and applies the flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg := &config.Config{Driver: "sqlite"}
	if opts.Config != "" {
		c, err := config.Load(opts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = c
	}
	if opts.Driver != "" {
		cfg.Driver = opts.Driver
	}
	if opts.Database != "" {
		cfg.DSN = opts.Database
	}
	if cfg.DSN == "" {
		return nil, NewExitError(ExitCommandError, "no database: set --db or dsn in the config file")
	}
	return cfg, nil
}

// openStore opens the store selected by the configuration.
func openStore(opts *RootOptions) (*store.Store, *config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("opening database", "driver", cfg.Driver)
	st, err := store.OpenDialect(cfg.Driver, cfg.DSN, cfg.StoreOptions())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, cfg, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func newExecutor(cfg *config.Config) *writer.Executor {
	return writer.NewExecutor(writer.Options{HashExcludePaths: cfg.HashExcludePaths()})
}
