package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memoryAccount is the stored form of an account inside MemoryBackend.
type memoryAccount struct {
	id           string
	login        string
	passwordHash string
	nickname     string
}

// MemoryBackend is the volatile identity store used when no durable store is available.
// It starts empty and loses everything on exit.
type MemoryBackend struct {
	// mu makes every check-and-set below atomic.
	mu sync.RWMutex

	// byLogin stores accounts keyed by login.
	byLogin map[string]*memoryAccount

	// byNickname maps a nickname to the login that holds it.
	byNickname map[string]string
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		byLogin:    make(map[string]*memoryAccount),
		byNickname: make(map[string]string),
	}
}

// Authenticate implements Backend.
func (m *MemoryBackend) Authenticate(_ context.Context, login, password string) (*UserRecord, error) {
	m.mu.RLock()
	account, ok := m.byLogin[login]
	var record *UserRecord
	if ok {
		record = NewUserRecord(account.id, account.login, account.passwordHash, account.nickname)
	}
	m.mu.RUnlock()

	if !ok || !record.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	return record, nil
}

// Register implements Backend.
func (m *MemoryBackend) Register(_ context.Context, login, password, nickname string) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byLogin[login]; ok {
		return "", ErrLoginTaken
	}
	if _, ok := m.byNickname[nickname]; ok {
		return "", ErrNicknameTaken
	}

	account := &memoryAccount{
		id:           uuid.NewString(),
		login:        login,
		passwordHash: hash,
		nickname:     nickname,
	}
	m.byLogin[login] = account
	m.byNickname[nickname] = login

	return account.id, nil
}

// IsRegistered implements Backend.
func (m *MemoryBackend) IsRegistered(_ context.Context, nickname string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byNickname[nickname]
	return ok, nil
}

// Rename implements Backend.
func (m *MemoryBackend) Rename(_ context.Context, oldNickname, newNickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	login, ok := m.byNickname[oldNickname]
	if !ok {
		return ErrUserNotFound
	}
	if oldNickname == newNickname {
		return nil
	}
	if _, taken := m.byNickname[newNickname]; taken {
		return ErrNicknameTaken
	}

	delete(m.byNickname, oldNickname)
	m.byNickname[newNickname] = login
	m.byLogin[login].nickname = newNickname

	return nil
}

// HealthCheck implements Backend. The in-process store is always available.
func (m *MemoryBackend) HealthCheck(context.Context) bool {
	return true
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}
