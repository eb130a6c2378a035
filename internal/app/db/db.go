/*
Package db provides the durable identity backends of the chat server.

Both engines keep the users table under goose migrations embedded in the binary.
OpenBackend selects one of them at startup and falls back to the volatile in-process
store when the durable one is unavailable.
*/
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"chatty/internal/app/identity"
	"chatty/internal/configs"
	"chatty/internal/pkg/logx"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// Backend kinds accepted by OpenBackend.
const (
	KindMemory   = configs.BackendMemory
	KindPostgres = configs.BackendPostgres
	KindSQLite   = configs.BackendSQLite
)

// openTimeout bounds connecting, migrating and health checking a durable store at startup.
const openTimeout = 15 * time.Second

// runMigrations applies all pending migrations found under dir in the embedded file system.
func runMigrations(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	fsys, err := fs.Sub(embedMigrations, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logx.Info("Database migrations applied successfully.", "dialect", string(dialect), "applied", len(results))
	return nil
}

// OpenBackend constructs the identity backend named by cfg.IdentityBackend.
// A durable store that cannot be opened or fails its health check is closed and replaced by
// an empty MemoryBackend for the rest of the process lifetime. The returned kind names the
// backend actually in use.
func OpenBackend(ctx context.Context, cfg *configs.AppConfig) (identity.Backend, string) {
	kind := cfg.IdentityBackend
	if kind == "" || kind == KindMemory {
		logx.Info("Using volatile identity backend.")
		return identity.NewMemoryBackend(), KindMemory
	}

	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	var (
		backend identity.Backend
		err     error
	)

	switch kind {
	case KindPostgres:
		backend, err = NewPostgresBackend(openCtx, cfg.DatabaseDSN)
	case KindSQLite:
		backend, err = NewSQLiteBackend(openCtx, cfg.SQLitePath)
	default:
		err = fmt.Errorf("unknown identity backend %q", kind)
	}

	if err != nil {
		logx.Error(err, "Durable identity backend unavailable, falling back to volatile store.", "backend", kind)
		return identity.NewMemoryBackend(), KindMemory
	}

	if !backend.HealthCheck(openCtx) {
		logx.Warn("Durable identity backend failed its health check, falling back to volatile store.", "backend", kind)
		if closeErr := backend.Close(); closeErr != nil {
			logx.Error(closeErr, "Failed to close unhealthy identity backend", "backend", kind)
		}
		return identity.NewMemoryBackend(), KindMemory
	}

	logx.Info("Using durable identity backend.", "backend", kind)
	return backend, kind
}
