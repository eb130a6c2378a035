package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParseLimitsSplit(t *testing.T) {
	cmd, ok := Parse("/W carol hello there  friend", 3)
	assert.True(t, ok)
	assert.Equal(t, CmdPrivate, cmd.Name)
	assert.Equal(t, []string{"carol", "hello there  friend"}, cmd.Args)
}

func TestParseUnlimited(t *testing.T) {
	cmd, ok := Parse("/reg Alice Secret Wonder", 0)
	assert.True(t, ok)
	assert.Equal(t, CmdReg, cmd.Name)
	assert.Equal(t, []string{"Alice", "Secret", "Wonder"}, cmd.Args)
}

func TestParseNotACommand(t *testing.T) {
	_, ok := Parse("hello /auth", 0)
	assert.False(t, ok)
	assert.Equal(t, "", Name("hello"))
}

func TestName(t *testing.T) {
	assert.Equal(t, CmdEnd, Name("/END"))
	assert.Equal(t, CmdNick, Name("/Nick bobby"))
	assert.Equal(t, "/", Name("/"))
}

func TestIsToken(t *testing.T) {
	assert.True(t, IsToken("alice"))
	assert.True(t, IsToken(strings.Repeat("ж", MaxTokenLength)))
	assert.False(t, IsToken(""))
	assert.False(t, IsToken("two words"))
	assert.False(t, IsToken("tab\there"))
	assert.False(t, IsToken("nbsp\u00a0here"))
	assert.False(t, IsToken(strings.Repeat("x", MaxTokenLength+1)))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "/reg_ok", Format(CmdRegOK))
	assert.Equal(t, "/clientlist bob carol", Format(CmdClientList, "bob", "carol"))
	assert.Equal(t, "/auth_ok bob", Command{Name: CmdAuthOK, Args: []string{"bob"}}.String())
}

// TestFormatParseRoundTrip checks that space-free arguments survive formatting and parsing
func TestFormatParseRoundTrip(t *testing.T) {
	token := rapid.StringMatching(`[A-Za-z0-9_]{1,12}`)

	rapid.Check(t, func(t *rapid.T) {
		name := "/" + strings.ToLower(token.Draw(t, "name"))
		args := rapid.SliceOfN(token, 0, 5).Draw(t, "args")

		cmd, ok := Parse(Format(name, args...), 0)
		if !ok {
			t.Fatalf("formatted command not recognised")
		}
		if cmd.Name != name {
			t.Fatalf("name mismatch: got %q, want %q", cmd.Name, name)
		}
		if len(cmd.Args) != len(args) {
			t.Fatalf("arg count mismatch: got %d, want %d", len(cmd.Args), len(args))
		}
		for i := range args {
			if cmd.Args[i] != args[i] {
				t.Fatalf("arg %d mismatch: got %q, want %q", i, cmd.Args[i], args[i])
			}
		}
	})
}
