package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// DefaultSQLitePath is used when the sqlite driver is selected without a DSN.
const DefaultSQLitePath = "plates.db"

// Open creates the store selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		return NewSQLite(dsn)
	case "postgres":
		if dsn == "" {
			return nil, eris.New("store: postgres database_url is required (PLATES_STORE_DATABASE_URL)")
		}
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unsupported driver: %s", driver)
	}
}

// OpenReadOnly opens the store selected by driver for queries only. The
// schema is not migrated and a SQLite file is opened in read-only mode, so
// the database on disk is left untouched.
func OpenReadOnly(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		return NewSQLiteReadOnly(dsn)
	case "postgres":
		if dsn == "" {
			return nil, eris.New("store: postgres database_url is required (PLATES_STORE_DATABASE_URL)")
		}
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unsupported driver: %s", driver)
	}
}
