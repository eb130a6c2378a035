/*
Package identity contains the account model of the chat server and the capability
contract every identity store must satisfy.

This file defines UserRecord, the in-memory representation of one registered account.
Records are shared: the Cache hands the same pointer to every session of a login, so the
mutable nickname is guarded by its own lock.
*/
package identity

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// UserRecord represents one registered account.
type UserRecord struct {
	// ID is the opaque identifier assigned by the backend on creation.
	ID string

	// Login is the unique, immutable account key.
	Login string

	// PasswordHash is the bcrypt hash of the account credential.
	PasswordHash string

	// mu protects nickname.
	mu sync.RWMutex

	// nickname is the unique display name; it changes on rename.
	nickname string
}

// NewUserRecord constructs a UserRecord from stored fields.
func NewUserRecord(id, login, passwordHash, nickname string) *UserRecord {
	return &UserRecord{
		ID:           id,
		Login:        login,
		PasswordHash: passwordHash,
		nickname:     nickname,
	}
}

// Nickname returns the current display name.
func (u *UserRecord) Nickname() string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.nickname
}

func (u *UserRecord) setNickname(nickname string) {
	u.mu.Lock()
	u.nickname = nickname
	u.mu.Unlock()
}

// CheckPassword reports whether password matches the stored hash.
func (u *UserRecord) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// HashPassword returns the bcrypt hash stored for a new credential.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
