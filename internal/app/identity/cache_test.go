package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend wraps a MemoryBackend and counts calls per operation.
type countingBackend struct {
	*MemoryBackend

	authCalls   atomic.Int32
	renameCalls atomic.Int32
	lookupCalls atomic.Int32
	renameErr   error
}

func newCountingBackend() *countingBackend {
	return &countingBackend{MemoryBackend: NewMemoryBackend()}
}

func (b *countingBackend) Authenticate(ctx context.Context, login, password string) (*UserRecord, error) {
	b.authCalls.Add(1)
	return b.MemoryBackend.Authenticate(ctx, login, password)
}

func (b *countingBackend) IsRegistered(ctx context.Context, nickname string) (bool, error) {
	b.lookupCalls.Add(1)
	return b.MemoryBackend.IsRegistered(ctx, nickname)
}

func (b *countingBackend) Rename(ctx context.Context, oldNickname, newNickname string) error {
	b.renameCalls.Add(1)
	if b.renameErr != nil {
		return b.renameErr
	}
	return b.MemoryBackend.Rename(ctx, oldNickname, newNickname)
}

func TestCacheAuthenticateIsLazy(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	_, err := backend.MemoryBackend.Register(ctx, "alice", "pw", "Alice")
	require.NoError(t, err)

	cache := NewCache(backend)
	assert.Equal(t, 0, cache.Len())

	first, err := cache.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)
	second, err := cache.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), backend.authCalls.Load())
	assert.Equal(t, 1, cache.Len())

	_, err = cache.Authenticate(ctx, "alice", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, int32(1), backend.authCalls.Load())
}

func TestCacheAuthenticateMissDoesNotInsert(t *testing.T) {
	cache := NewCache(newCountingBackend())

	_, err := cache.Authenticate(context.Background(), "ghost", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheRegisterPopulates(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	cache := NewCache(backend)

	record, err := cache.Register(ctx, "bob", "pw", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", record.Nickname())

	cached, ok := cache.LookupLogin("bob")
	require.True(t, ok)
	assert.Same(t, record, cached)

	_, err = cache.Register(ctx, "bob", "pw", "robert")
	assert.ErrorIs(t, err, ErrLoginTaken)

	_, err = cache.Register(ctx, "rob", "pw", "bob")
	assert.ErrorIs(t, err, ErrNicknameTaken)

	registered, err := cache.IsRegistered(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, registered)
	assert.Equal(t, int32(0), backend.lookupCalls.Load(), "cached nickname must not hit the backend")
}

func TestCacheRenameMutatesInPlace(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	cache := NewCache(backend)

	record, err := cache.Register(ctx, "bob", "pw", "bob")
	require.NoError(t, err)

	require.NoError(t, cache.Rename(ctx, "bob", "bobby"))
	assert.Equal(t, "bobby", record.Nickname())

	again, err := cache.Authenticate(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.Same(t, record, again)

	registered, err := cache.IsRegistered(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, registered)

	registered, err = cache.IsRegistered(ctx, "bobby")
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestCacheRenameFailureLeavesRecord(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	cache := NewCache(backend)

	record, err := cache.Register(ctx, "bob", "pw", "bob")
	require.NoError(t, err)

	backend.renameErr = errors.New("store offline")
	assert.Error(t, cache.Rename(ctx, "bob", "bobby"))
	assert.Equal(t, "bob", record.Nickname())

	registered, _ := cache.IsRegistered(ctx, "bob")
	assert.True(t, registered)
}

func TestCacheConcurrentAuthenticateSharesRecord(t *testing.T) {
	ctx := context.Background()
	backend := newCountingBackend()
	_, err := backend.MemoryBackend.Register(ctx, "alice", "pw", "Alice")
	require.NoError(t, err)

	cache := NewCache(backend)

	const workers = 6
	records := make([]*UserRecord, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records[i], _ = cache.Authenticate(ctx, "alice", "pw")
		}()
	}
	wg.Wait()

	for _, r := range records {
		require.NotNil(t, r)
		assert.Same(t, records[0], r)
	}
	assert.Equal(t, 1, cache.Len())
}
