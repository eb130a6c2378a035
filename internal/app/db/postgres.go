package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"chatty/internal/app/identity"
	"chatty/internal/pkg/logx"
)

// PostgresBackend stores accounts in PostgreSQL.
type PostgresBackend struct {
	// pool is the shared connection pool.
	pool *pgxpool.Pool

	// structured logger with backend context.
	logger zerolog.Logger
}

// NewPostgresBackend initializes a PostgreSQL connection pool and executes database migrations.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := runMigrations(ctx, sqlDB, goose.DialectPostgres, "migrations/postgres"); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresBackend{
		pool:   pool,
		logger: logx.Component("PostgresBackend"),
	}, nil
}

// Authenticate implements identity.Backend.
func (p *PostgresBackend) Authenticate(ctx context.Context, login, password string) (*identity.UserRecord, error) {
	var id, storedLogin, hash, nickname string

	err := p.pool.QueryRow(ctx,
		`SELECT id::text, login, password_hash, nickname FROM users WHERE login = $1`,
		login,
	).Scan(&id, &storedLogin, &hash, &nickname)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	record := identity.NewUserRecord(id, storedLogin, hash, nickname)
	if !record.CheckPassword(password) {
		return nil, identity.ErrInvalidCredentials
	}

	return record, nil
}

// Register implements identity.Backend.
func (p *PostgresBackend) Register(ctx context.Context, login, password, nickname string) (string, error) {
	hash, err := identity.HashPassword(password)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()

	_, err = p.pool.Exec(ctx,
		`INSERT INTO users (id, login, password_hash, nickname) VALUES ($1, $2, $3, $4)`,
		id, login, hash, nickname,
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			p.logger.Warn().Str("login", login).Str("nickname", nickname).Msg("Registration conflict.")
			return "", conflict
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	return id, nil
}

// IsRegistered implements identity.Backend.
func (p *PostgresBackend) IsRegistered(ctx context.Context, nickname string) (bool, error) {
	var exists bool

	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE nickname = $1)`,
		nickname,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up nickname: %w", err)
	}

	return exists, nil
}

// Rename implements identity.Backend.
func (p *PostgresBackend) Rename(ctx context.Context, oldNickname, newNickname string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users SET nickname = $2 WHERE nickname = $1`,
		oldNickname, newNickname,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return identity.ErrNicknameTaken
		}
		return fmt.Errorf("failed to rename user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// HealthCheck implements identity.Backend. The store is healthy when it answers and the
// users table exists.
func (p *PostgresBackend) HealthCheck(ctx context.Context) bool {
	if err := p.pool.Ping(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Database ping failed.")
		return false
	}

	var present bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('public.users') IS NOT NULL`).Scan(&present); err != nil {
		p.logger.Warn().Err(err).Msg("Users table check failed.")
		return false
	}

	return present
}

// Close implements identity.Backend.
func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
