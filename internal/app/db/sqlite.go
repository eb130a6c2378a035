package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"chatty/internal/app/identity"
	"chatty/internal/pkg/logx"
)

// SQLiteBackend stores accounts in a local SQLite file.
type SQLiteBackend struct {
	// conn is the connection pool; WAL lets readers proceed alongside the single writer.
	conn *sql.DB

	// structured logger with backend context.
	logger zerolog.Logger
}

// sqlitePragmas are applied by the driver to every new connection.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// NewSQLiteBackend opens the database file at path and executes database migrations.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	conn, err := sql.Open("sqlite", path+"?"+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(ctx, conn, goose.DialectSQLite3, "migrations/sqlite"); err != nil {
		conn.Close()
		return nil, err
	}

	return &SQLiteBackend{
		conn:   conn,
		logger: logx.Component("SQLiteBackend"),
	}, nil
}

// Authenticate implements identity.Backend.
func (s *SQLiteBackend) Authenticate(ctx context.Context, login, password string) (*identity.UserRecord, error) {
	var id, storedLogin, hash, nickname string

	err := s.conn.QueryRowContext(ctx,
		`SELECT id, login, password_hash, nickname FROM users WHERE login = ?`,
		login,
	).Scan(&id, &storedLogin, &hash, &nickname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteBackend) Register(ctx context.Context, login, password, nickname string) (string, error) {
	hash, err := identity.HashPassword(password)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO users (id, login, password_hash, nickname) VALUES (?, ?, ?, ?)`,
		id, login, hash, nickname,
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			s.logger.Warn().Str("login", login).Str("nickname", nickname).Msg("Registration conflict.")
			return "", conflict
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	return id, nil
}

// IsRegistered implements identity.Backend.
func (s *SQLiteBackend) IsRegistered(ctx context.Context, nickname string) (bool, error) {
	var exists bool

	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE nickname = ?)`,
		nickname,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up nickname: %w", err)
	}

	return exists, nil
}

// Rename implements identity.Backend.
func (s *SQLiteBackend) Rename(ctx context.Context, oldNickname, newNickname string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE users SET nickname = ? WHERE nickname = ?`,
		newNickname, oldNickname,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return identity.ErrNicknameTaken
		}
		return fmt.Errorf("failed to rename user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rename result: %w", err)
	}
	if affected == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// HealthCheck implements identity.Backend.
func (s *SQLiteBackend) HealthCheck(ctx context.Context) bool {
	if err := s.conn.PingContext(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Database ping failed.")
		return false
	}

	var tables int
	err := s.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'users'`,
	).Scan(&tables)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Users table check failed.")
		return false
	}

	return tables == 1
}

// Close implements identity.Backend.
func (s *SQLiteBackend) Close() error {
	return s.conn.Close()
}
