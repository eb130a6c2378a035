package identity

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"chatty/internal/pkg/logx"
)

// Cache is the process-wide lookup layer in front of a Backend.
//
// Records are inserted lazily on the first successful backend hit and are never evicted.
// A rename mutates the cached record in place, so every holder of the pointer observes it.
type Cache struct {
	// backend is the store consulted on a miss.
	backend Backend

	// mu protects both indexes.
	mu sync.RWMutex

	// byLogin stores cached records keyed by login.
	byLogin map[string]*UserRecord

	// byNickname indexes the same records by their current nickname.
	byNickname map[string]*UserRecord

	// structured logger with cache context.
	logger zerolog.Logger
}

// NewCache constructs an empty Cache over backend.
func NewCache(backend Backend) *Cache {
	return &Cache{
		backend:    backend,
		byLogin:    make(map[string]*UserRecord),
		byNickname: make(map[string]*UserRecord),
		logger:     logx.Component("IdentityCache"),
	}
}

// Backend returns the store behind the cache.
func (c *Cache) Backend() Backend {
	return c.backend
}

// LookupLogin returns the cached record for login without consulting the backend.
func (c *Cache) LookupLogin(login string) (*UserRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.byLogin[login]
	return record, ok
}

// Authenticate checks credentials against the cached record, falling back to the backend on a miss.
func (c *Cache) Authenticate(ctx context.Context, login, password string) (*UserRecord, error) {
	if record, ok := c.LookupLogin(login); ok {
		if !record.CheckPassword(password) {
			return nil, ErrInvalidCredentials
		}
		return record, nil
	}

	record, err := c.backend.Authenticate(ctx, login, password)
	if err != nil {
		return nil, err
	}

	return c.insert(record), nil
}

// IsRegistered reports whether nickname is held by any account.
func (c *Cache) IsRegistered(ctx context.Context, nickname string) (bool, error) {
	c.mu.RLock()
	_, ok := c.byNickname[nickname]
	c.mu.RUnlock()

	if ok {
		return true, nil
	}

	return c.backend.IsRegistered(ctx, nickname)
}

// Register creates the account in the backend and caches the stored record.
// A login or nickname already present in the cache is refused without a backend call.
func (c *Cache) Register(ctx context.Context, login, password, nickname string) (*UserRecord, error) {
	c.mu.RLock()
	_, loginCached := c.byLogin[login]
	_, nicknameCached := c.byNickname[nickname]
	c.mu.RUnlock()

	if loginCached {
		return nil, ErrLoginTaken
	}
	if nicknameCached {
		return nil, ErrNicknameTaken
	}

	id, err := c.backend.Register(ctx, login, password, nickname)
	if err != nil {
		return nil, err
	}

	record, err := c.backend.Authenticate(ctx, login, password)
	if err != nil {
		c.logger.Warn().Err(err).Str("login", login).Str("user_id", id).Msg("Registered account could not be loaded into cache.")
		return NewUserRecord(id, login, "", nickname), nil
	}

	return c.insert(record), nil
}

// Rename applies the rename in the backend and, on success, to the cached record.
// Nothing is mutated when the backend refuses.
func (c *Cache) Rename(ctx context.Context, oldNickname, newNickname string) error {
	if err := c.backend.Rename(ctx, oldNickname, newNickname); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if record, ok := c.byNickname[oldNickname]; ok {
		delete(c.byNickname, oldNickname)
		record.setNickname(newNickname)
		c.byNickname[newNickname] = record
	}

	return nil
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.byLogin)
}

// insert stores record unless another caller cached the same login first,
// in which case the existing pointer wins.
func (c *Cache) insert(record *UserRecord) *UserRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byLogin[record.Login]; ok {
		return existing
	}

	c.byLogin[record.Login] = record
	c.byNickname[record.Nickname()] = record

	return record
}
