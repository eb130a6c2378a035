package protocol

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Prefix marks a frame as a command.
const Prefix = "/"

// MaxTokenLength caps logins and nicknames, in runes.
const MaxTokenLength = 32

// Client to server commands.
const (
	CmdAuth    = "/auth"
	CmdReg     = "/reg"
	CmdEnd     = "/end"
	CmdPrivate = "/w"
	CmdNick    = "/nick"
)

// Server to client commands.
const (
	CmdAuthOK      = "/auth_ok"
	CmdRegOK       = "/reg_ok"
	CmdRegFault    = "/reg_fault"
	CmdChangeOK    = "/change_ok"
	CmdChangeFault = "/change_fault"
	CmdClientList  = "/clientlist"
)

// Command is a parsed command frame: a lower-cased name and its ordered arguments.
type Command struct {
	Name string
	Args []string
}

// IsCommand reports whether line is a command frame.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, Prefix)
}

// Parse splits a command line on single spaces into at most n tokens (n <= 0 means no limit),
// the same way the reference client composes them. Only the command name is case-folded;
// the last token keeps any remaining spaces when n limits the split.
// It returns false when line is not a command.
func Parse(line string, n int) (Command, bool) {
	if !IsCommand(line) {
		return Command{}, false
	}

	var tokens []string
	if n > 0 {
		tokens = strings.SplitN(line, " ", n)
	} else {
		tokens = strings.Split(line, " ")
	}

	return Command{
		Name: strings.ToLower(tokens[0]),
		Args: tokens[1:],
	}, true
}

// Name returns the case-folded command name of line, or "" when line is not a command.
func Name(line string) string {
	if !IsCommand(line) {
		return ""
	}

	name, _, _ := strings.Cut(line, " ")
	return strings.ToLower(name)
}

// String renders the command back into its frame text.
func (c Command) String() string {
	return Format(c.Name, c.Args...)
}

// Format builds a command frame from a name and arguments.
func Format(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// IsToken reports whether s can travel as one space-separated command argument,
// which logins and nicknames must.
func IsToken(s string) bool {
	if s == "" || utf8.RuneCountInString(s) > MaxTokenLength {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsSpace)
}
