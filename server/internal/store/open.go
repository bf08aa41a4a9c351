package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clientledger/clientledger/server/internal/config"
)

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		slog.Warn("store: using in-memory backend, data is lost on restart")
		return NewMemory(), nil
	case "sqlite":
		slog.Info("store: opening sqlite", "path", cfg.Path)
		return OpenSQLite(ctx, cfg.Path)
	case "postgres":
		dsn := cfg.DSN()
		if dsn == "" {
			return nil, fmt.Errorf("store: environment variable %s is empty", cfg.DSNEnv)
		}
		slog.Info("store: opening postgres", "dsn_env", cfg.DSNEnv)
		return OpenPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
}
