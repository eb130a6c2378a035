package chat

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatty/internal/app/history"
	"chatty/internal/app/identity"
	"chatty/internal/app/protocol"
	"chatty/internal/configs"
)

const frameWait = 2 * time.Second

// spyBackend wraps a MemoryBackend, counts nickname traffic and can be told to fail Rename.
type spyBackend struct {
	*identity.MemoryBackend

	lookups   atomic.Int32
	renames   atomic.Int32
	renameErr error
}

func (b *spyBackend) IsRegistered(ctx context.Context, nickname string) (bool, error) {
	b.lookups.Add(1)
	return b.MemoryBackend.IsRegistered(ctx, nickname)
}

func (b *spyBackend) Rename(ctx context.Context, oldNickname, newNickname string) error {
	b.renames.Add(1)
	if b.renameErr != nil {
		return b.renameErr
	}
	return b.MemoryBackend.Rename(ctx, oldNickname, newNickname)
}

// harness is one Registry with a memory backend and a temporary history folder.
type harness struct {
	t        *testing.T
	registry *Registry
	backend  *spyBackend
	store    *history.Store
	metrics  *Metrics
}

func newHarness(t *testing.T, authTimeout time.Duration) *harness {
	t.Helper()

	pool, err := newPool()
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	cfg := &configs.AppConfig{AuthTimeout: authTimeout, HistoryLines: 5}
	backend := &spyBackend{MemoryBackend: identity.NewMemoryBackend()}
	store := history.NewStore(t.TempDir())
	metrics := NewMetrics()

	h := &harness{
		t:        t,
		registry: NewRegistry(cfg, identity.NewCache(backend), store, pool, metrics),
		backend:  backend,
		store:    store,
		metrics:  metrics,
	}

	// sessions must be gone before the history folder is removed
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), frameWait)
		defer cancel()
		_ = h.registry.Shutdown(ctx)
	})

	return h
}

func (h *harness) account(login, password, nickname string) {
	h.t.Helper()
	_, err := h.backend.Register(context.Background(), login, password, nickname)
	require.NoError(h.t, err)
}

// connect admits a new in-memory connection and returns its client end.
func (h *harness) connect() *client {
	h.t.Helper()

	server, c := newClient(h.t)
	require.NoError(h.t, h.registry.Accept(NewStreamConn(server)))
	return c
}

// client is the test side of a connection. Frames are drained continuously so that
// the server never blocks on a write.
type client struct {
	t      *testing.T
	conn   net.Conn
	frames chan string
}

func newClient(t *testing.T) (net.Conn, *client) {
	t.Helper()

	server, peer := net.Pipe()
	c := &client{t: t, conn: peer, frames: make(chan string, 256)}

	go func() {
		defer close(c.frames)
		r := bufio.NewReader(peer)
		for {
			text, err := protocol.ReadFrame(r)
			if err != nil {
				return
			}
			c.frames <- text
		}
	}()

	t.Cleanup(func() { _ = peer.Close() })
	return server, c
}

func (c *client) send(text string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(frameWait)))
	require.NoError(c.t, protocol.WriteFrame(c.conn, text))
}

func (c *client) next() string {
	c.t.Helper()

	select {
	case text, ok := <-c.frames:
		require.True(c.t, ok, "connection closed while waiting for a frame")
		return text
	case <-time.After(frameWait):
		require.FailNow(c.t, "timed out waiting for a frame")
		return ""
	}
}

func (c *client) expect(want string) {
	c.t.Helper()
	assert.Equal(c.t, want, c.next())
}

// expectNone asserts that nothing arrives within a short window.
func (c *client) expectNone() {
	c.t.Helper()

	select {
	case text, ok := <-c.frames:
		if ok {
			assert.Failf(c.t, "unexpected frame", "got %q", text)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

// waitClosed drains the connection until the server closes it and returns what was left.
func (c *client) waitClosed() []string {
	c.t.Helper()

	var rest []string
	timeout := time.After(frameWait)
	for {
		select {
		case text, ok := <-c.frames:
			if !ok {
				return rest
			}
			rest = append(rest, text)
		case <-timeout:
			require.FailNow(c.t, "connection was not closed")
			return rest
		}
	}
}

// signIn authenticates and consumes the greeting, the roster and the history backlog.
// It returns the roster frame.
func (c *client) signIn(login, password, nickname string) string {
	c.t.Helper()

	c.send("/auth " + login + " " + password)
	c.expect("/auth_ok " + nickname)

	roster := c.next()
	assert.True(c.t, strings.HasPrefix(roster, "/clientlist"), "got %q", roster)

	backlog := c.next()
	assert.Contains(c.t, backlog, "Signed in to the chat")
	return roster
}
