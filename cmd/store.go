package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plates-cli/internal/config"
	"github.com/sells-group/plates-cli/internal/store"
)

func storeDSN(c *config.Config) string {
	if c.Store.Driver == "postgres" {
		return c.Store.DatabaseURL
	}
	return c.Store.Path
}

func poolConfig(c *config.Config) *store.PoolConfig {
	return &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	}
}

// initStore opens the configured store and makes sure its schema exists.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, storeDSN(c), poolConfig(c))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// openQueryStore opens an existing store read-only, without migrating it. A
// missing sqlite file is reported instead of silently creating an empty database.
func openQueryStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if c.Store.Driver == "sqlite" {
		if _, err := os.Stat(c.Store.Path); err != nil {
			return nil, eris.Wrapf(err, "database %s not found (run `plates ingest` first)", c.Store.Path)
		}
	}
	return store.OpenReadOnly(ctx, c.Store.Driver, storeDSN(c), poolConfig(c))
}
