package identity

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials indicates that no account matches the login and password.
	ErrInvalidCredentials = errors.New("invalid login or password")

	// ErrLoginTaken indicates that a registration reused an existing login.
	ErrLoginTaken = errors.New("login already registered")

	// ErrNicknameTaken indicates that a registration or rename reused an existing nickname.
	ErrNicknameTaken = errors.New("nickname already registered")

	// ErrUserNotFound indicates that a rename targeted a nickname no account holds.
	ErrUserNotFound = errors.New("user not found")
)

// Backend is the capability contract of an identity store.
//
// Implementations own uniqueness: Register must refuse a login or nickname that is
// already present, and Rename must refuse a nickname that is already present.
// The server picks one implementation at startup and never swaps it afterwards.
type Backend interface {
	// Authenticate returns the account matching login and password, or ErrInvalidCredentials.
	Authenticate(ctx context.Context, login, password string) (*UserRecord, error)

	// Register creates an account and returns its new ID.
	// It fails with ErrLoginTaken or ErrNicknameTaken on a uniqueness conflict.
	Register(ctx context.Context, login, password, nickname string) (string, error)

	// IsRegistered reports whether any account holds nickname.
	IsRegistered(ctx context.Context, nickname string) (bool, error)

	// Rename moves an account from oldNickname to newNickname.
	// It fails with ErrUserNotFound or ErrNicknameTaken and leaves state untouched on failure.
	Rename(ctx context.Context, oldNickname, newNickname string) error

	// HealthCheck reports whether the store is usable.
	HealthCheck(ctx context.Context) bool

	// Close releases the underlying resources.
	Close() error
}
