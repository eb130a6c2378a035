package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatty/internal/app/identity"
	"chatty/internal/app/protocol"
)

func TestBadCredentialsKeepSessionAuthenticating(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("alice", "secret", "Alice")

	c := h.connect()
	c.send("/auth alice wrongpw")
	c.expect("Incorrect login or password.")
	assert.True(t, strings.HasPrefix(c.next(), "Authentication session will be closed in"))

	c.send("/auth nobody secret")
	c.expect("Incorrect login or password.")
	c.expectNone()

	c.signIn("alice", "secret", "Alice")
	assert.Equal(t, 1, h.registry.Online())
}

func TestTimeoutWarningCountsDown(t *testing.T) {
	h := newHarness(t, 90*time.Second)
	c := h.connect()

	c.send("/auth ghost pw")
	c.expect("Incorrect login or password.")
	warning := c.next()
	assert.True(t,
		warning == "Authentication session will be closed in 1 minute 30 seconds" ||
			warning == "Authentication session will be closed in 1 minute 29 seconds",
		"got %q", warning)
}

func TestAuthTimeoutEndsSession(t *testing.T) {
	h := newHarness(t, time.Second)
	h.account("zed", "pw", "zed")
	watcher := h.connect()
	watcher.signIn("zed", "pw", "zed")

	c := h.connect()
	assert.Equal(t, []string{"/end"}, c.waitClosed())

	watcher.expectNone()
	assert.Equal(t, []string{"zed"}, h.registry.Roster())
}

func TestAuthDeadlineIsAbsolute(t *testing.T) {
	h := newHarness(t, 1500*time.Millisecond)
	c := h.connect()

	start := time.Now()
	c.send("/auth ghost pw")
	c.expect("Incorrect login or password.")
	assert.Contains(t, c.next(), "Authentication session will be closed in")

	c.send("/auth ghost pw")
	c.expect("Incorrect login or password.")

	assert.Equal(t, []string{"/end"}, c.waitClosed(), "the warning is sent only once")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestEndWhileAuthenticating(t *testing.T) {
	h := newHarness(t, time.Minute)
	c := h.connect()

	c.send("/END")
	assert.Equal(t, []string{"/end"}, c.waitClosed())
}

func TestMalformedCommandsAreIgnoredBeforeAuth(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("alice", "secret", "Alice")
	c := h.connect()

	c.send("/auth alice")
	c.send("/auth  secret")
	c.send("/reg a b")
	c.send("/reg a b c d")
	c.send("hello?")
	c.send("/w Alice hi")
	c.expectNone()

	c.signIn("alice", "secret", "Alice")
}

func TestRegisterThenAuthenticate(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("taken", "pw", "Taken")
	c := h.connect()

	c.send("/reg dave pw Dave")
	c.expect("/reg_ok")

	c.send("/reg dave other Someone")
	c.expect("/reg_fault")

	c.send("/reg erin pw Taken")
	c.expect("/reg_fault")

	_, cached := h.registry.cache.LookupLogin("erin")
	assert.False(t, cached)
	_, err := h.backend.Authenticate(context.Background(), "erin", "pw")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	registered, err := h.backend.IsRegistered(context.Background(), "Someone")
	require.NoError(t, err)
	assert.False(t, registered)

	c.send("/auth dave pw")
	c.expect("/auth_ok Dave")
	c.expect("/clientlist Dave")

	backlog := c.next()
	assert.Contains(t, backlog, "Registered with nickname Dave")
	assert.Contains(t, backlog, "Signed in to the chat")
}

func TestDuplicateLoginRejected(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("alice", "secret", "Alice")

	first := h.connect()
	first.signIn("alice", "secret", "Alice")

	second := h.connect()
	second.send("/auth alice secret")
	second.expect("Account is already connected as Alice")
	assert.Contains(t, second.next(), "Authentication session will be closed in")

	first.expectNone()
	assert.Equal(t, 1, h.registry.Online())
}

func TestPrivateMessages(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")
	h.account("carol", "pw", "carol")

	s1 := h.connect()
	s1.signIn("bob", "pw", "bob")
	s2 := h.connect()
	assert.Equal(t, "/clientlist bob carol", s2.signIn("carol", "pw", "carol"))
	s1.expect("/clientlist bob carol")

	s1.send("/w carol hello there")
	s2.expect("[private message from bob]: hello there")
	s1.expect("[private message to carol]: hello there")

	s1.send("/w dave hi")
	s1.expect("Message not delivered: unknown recipient dave")
	s2.expectNone()

	s1.send("/w carol")
	s1.expectNone()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(h.store.Path("bob"))
		return err == nil && strings.Contains(string(data), "[private message to carol]: hello there")
	}, frameWait, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return strings.Contains(h.store.Last("carol", 5), "[private message from bob]: hello there")
	}, frameWait, 20*time.Millisecond)
}

func TestPrivateMessageToSelfIsNotEchoed(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")

	c := h.connect()
	c.signIn("bob", "pw", "bob")

	c.send("/w bob note to self")
	c.expect("[private message from bob]: note to self")
	c.expectNone()
}

func TestBroadcastReachesEveryone(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")
	h.account("carol", "pw", "carol")

	s1 := h.connect()
	s1.signIn("bob", "pw", "bob")
	s2 := h.connect()
	s2.signIn("carol", "pw", "carol")
	s1.expect("/clientlist bob carol")

	s1.send("hi all")
	s1.expect("[bob]: hi all")
	s2.expect("[bob]: hi all")

	s2.send("/shrug ok")
	s1.expect("[carol]: /shrug ok")
	s2.expect("[carol]: /shrug ok")

	s1.send("   ")
	s1.expectNone()
}

func TestRename(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")
	h.account("carol", "pw", "carol")

	s1 := h.connect()
	s1.signIn("bob", "pw", "bob")
	s2 := h.connect()
	s2.signIn("carol", "pw", "carol")
	s1.expect("/clientlist bob carol")

	s1.send("/nick bobby")
	s1.expect("/change_ok bobby")
	s1.expect("[bobby]: this is my new nickname, previously bob")
	s1.expect("/clientlist bobby carol")
	s2.expect("[bobby]: this is my new nickname, previously bob")
	s2.expect("/clientlist bobby carol")

	s1.send("/nick carol")
	s1.expect("Nickname carol is already taken")

	s1.send("/nick bobby")
	s1.send("/nick two words")
	s1.expectNone()

	// the old nickname no longer routes
	s2.send("/w bob hi")
	s2.expect("Message not delivered: unknown recipient bob")

	s2.send("/w bobby hi")
	s1.expect("[private message from carol]: hi")
	s2.expect("[private message to bobby]: hi")

	s2.send("/end")
	s2.expect("/end")
	s1.expect("/clientlist bobby")
}

func TestRenameRefusedByBackend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")
	h.account("carol", "pw", "carol")

	s1 := h.connect()
	s1.signIn("bob", "pw", "bob")
	s2 := h.connect()
	s2.signIn("carol", "pw", "carol")
	s1.expect("/clientlist bob carol")

	h.backend.renameErr = errors.New("connection reset")
	s1.send("/nick bobby")
	s1.expect("/change_fault")
	s1.expectNone()
	s2.expectNone()

	assert.Equal(t, int32(1), h.backend.renames.Load())
	assert.Equal(t, []string{"bob", "carol"}, h.registry.Roster())

	record, ok := h.registry.cache.LookupLogin("bob")
	require.True(t, ok)
	assert.Equal(t, "bob", record.Nickname())

	taken, err := h.registry.cache.IsRegistered(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = h.registry.cache.IsRegistered(ctx, "bobby")
	require.NoError(t, err)
	assert.False(t, taken)

	s2.send("/w bob still you?")
	s1.expect("[private message from carol]: still you?")
	s2.expect("[private message to bob]: still you?")
}

func TestRenameToCurrentNicknameSkipsBackend(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")

	c := h.connect()
	c.signIn("bob", "pw", "bob")

	c.send("/nick bob")
	c.expectNone()

	assert.Zero(t, h.backend.lookups.Load())
	assert.Zero(t, h.backend.renames.Load())
	assert.Equal(t, []string{"bob"}, h.registry.Roster())
}

func TestMalformedNamesAreRefused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")
	long := strings.Repeat("n", protocol.MaxTokenLength+1)

	c := h.connect()
	c.send("/reg tab\tlogin pw Tabby")
	c.expect("/reg_fault")
	c.send("/reg erin pw " + long)
	c.expect("/reg_fault")

	_, err := h.backend.Authenticate(ctx, "erin", "pw")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	registered, err := h.backend.IsRegistered(ctx, "Tabby")
	require.NoError(t, err)
	assert.False(t, registered)

	c.signIn("bob", "pw", "bob")

	c.send("/nick a\tb")
	c.expect("/change_fault")
	c.send("/nick " + long)
	c.expect("/change_fault")
	c.expectNone()

	assert.Zero(t, h.backend.renames.Load())
	assert.Equal(t, []string{"bob"}, h.registry.Roster())
}

func TestOversizeMessagesAreRefused(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")
	h.account("carol", "pw", "carol")

	s1 := h.connect()
	s1.signIn("bob", "pw", "bob")
	s2 := h.connect()
	s2.signIn("carol", "pw", "carol")
	s1.expect("/clientlist bob carol")

	tooLong := fmt.Sprintf("Message not delivered: longer than %d bytes", protocol.MaxFrameSize)

	s1.send(strings.Repeat("x", protocol.MaxFrameSize-5))
	s1.expect(tooLong)
	s2.expectNone()

	s1.send("/w carol " + strings.Repeat("y", protocol.MaxFrameSize-20))
	s1.expect(tooLong)
	s2.expectNone()

	s1.send("still here")
	s1.expect("[bob]: still here")
	s2.expect("[bob]: still here")

	for _, login := range []string{"bob", "carol"} {
		backlog := h.store.Last(login, 10)
		assert.NotContains(t, backlog, "xxxxxxxxxx", login)
		assert.NotContains(t, backlog, "yyyyyyyyyy", login)
	}
}

func TestDisconnectUpdatesRosterAndHistory(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")
	h.account("carol", "pw", "carol")

	s1 := h.connect()
	s1.signIn("bob", "pw", "bob")
	s2 := h.connect()
	s2.signIn("carol", "pw", "carol")
	s1.expect("/clientlist bob carol")

	require.NoError(t, s2.conn.Close())
	s1.expect("/clientlist bob")

	require.Eventually(t, func() bool {
		return strings.Contains(h.store.Last("carol", 1), "Signed out of the chat")
	}, frameWait, 20*time.Millisecond)
	assert.Equal(t, []string{"bob"}, h.registry.Roster())
	assert.False(t, h.registry.IsConnected("carol"))
}

func TestBacklogReplaysEarlierConversation(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.account("bob", "pw", "bob")

	c := h.connect()
	c.signIn("bob", "pw", "bob")
	c.send("remember this")
	c.expect("[bob]: remember this")
	c.send("/end")
	assert.Equal(t, []string{"/end"}, c.waitClosed())

	require.Eventually(t, func() bool { return !h.registry.IsConnected("bob") }, frameWait, 10*time.Millisecond)

	again := h.connect()
	again.send("/auth bob pw")
	again.expect("/auth_ok bob")
	again.expect("/clientlist bob")

	backlog := again.next()
	assert.Contains(t, backlog, "[bob]: remember this")
	assert.Contains(t, backlog, "Signed out of the chat")
	assert.True(t, strings.HasSuffix(backlog, "Signed in to the chat\n"))
}

func TestBacklogFitsInOneFrame(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.registry.historyLines = 100
	h.account("bob", "pw", "bob")

	for i := range 90 {
		h.store.Append("bob", fmt.Sprintf("%02d %s", i, strings.Repeat("x", 800)))
	}
	require.Greater(t, len(h.store.Last("bob", 100)), protocol.MaxFrameSize)

	c := h.connect()
	c.send("/auth bob pw")
	c.expect("/auth_ok bob")
	c.expect("/clientlist bob")

	backlog := c.next()
	assert.LessOrEqual(t, len(backlog), protocol.MaxFrameSize)
	assert.Contains(t, backlog, "\t89 ")
	assert.NotContains(t, backlog, "\t00 ")
	assert.True(t, strings.HasSuffix(backlog, "Signed in to the chat\n"))
}

func TestValidArgs(t *testing.T) {
	assert.True(t, validArgs([]string{"a", "b"}, 2))
	assert.False(t, validArgs([]string{"a"}, 2))
	assert.False(t, validArgs([]string{"a", ""}, 2))
	assert.False(t, validArgs(nil, 1))
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "0 seconds", humanDuration(0))
	assert.Equal(t, "1 second", humanDuration(time.Second))
	assert.Equal(t, "45 seconds", humanDuration(45*time.Second))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "1 minute 30 seconds", humanDuration(90*time.Second))
	assert.Equal(t, "2 minutes 1 second", humanDuration(2*time.Minute+time.Second))
}
