/*
Package history keeps the per-user chat history files.

Every login owns one append-only text file. Each line is either a date marker
("Today dd.mm.yyyy") or an event ("HH:MM:SS<TAB>text"). A marker is written lazily,
at most once per calendar day, before the first event of that day.
*/
package history

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatty/internal/pkg/logx"
)

const (
	markerPrefix = "Today "
	dateLayout   = "02.01.2006"
	timeLayout   = "15:04:05"

	// maxLineBytes bounds one history line when reading; a frame plus its timestamp fits.
	maxLineBytes = 128 * 1024
)

// Store appends to and reads from the history files inside one folder.
type Store struct {
	// dir is the folder holding every history file.
	dir string

	// now is the clock used for markers and timestamps.
	now func() time.Time

	// mu protects files.
	mu sync.Mutex

	// files tracks the per-login write state.
	files map[string]*fileState

	// structured logger with history context.
	logger zerolog.Logger
}

// fileState serialises writers of one file and remembers the last marker it holds.
type fileState struct {
	mu      sync.Mutex
	loaded  bool
	lastDay string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore constructs a Store writing into dir. The folder is created on first append.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		now:    time.Now,
		files:  make(map[string]*fileState),
		logger: logx.Component("History"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Path returns the history file of login. The login is escaped so it cannot leave the folder.
func (s *Store) Path(login string) string {
	return filepath.Join(s.dir, "history_"+url.PathEscape(login)+".txt")
}

// Append records text in the history of login. Failures are logged and the event is dropped.
func (s *Store) Append(login, text string) {
	if login == "" || text == "" {
		return
	}

	state := s.state(login)
	state.mu.Lock()
	defer state.mu.Unlock()

	if err := s.append(login, text, state); err != nil {
		s.logger.Error().Err(err).Str("login", login).Msg("History append skipped.")
	}
}

func (s *Store) append(login, text string, state *fileState) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history folder: %w", err)
	}

	path := s.Path(login)

	if !state.loaded {
		day, err := lastMarker(path)
		if err != nil {
			return err
		}
		state.lastDay = day
		state.loaded = true
	}

	now := s.now()
	today := now.Format(dateLayout)

	var b strings.Builder
	if state.lastDay != today {
		b.WriteString(markerPrefix + today + "\n")
	}
	b.WriteString(now.Format(timeLayout) + "\t" + text + "\n")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	state.lastDay = today
	return nil
}

// Last returns the final n lines of the history of login, each terminated by a newline.
// It returns "" when the file does not exist or n is not positive.
func (s *Store) Last(login string, n int) string {
	return s.LastWithin(login, n, 0)
}

// LastWithin is Last with the oldest lines dropped until the result is at most maxBytes
// long. A maxBytes of zero or less disables the bound.
func (s *Store) LastWithin(login string, n, maxBytes int) string {
	if n <= 0 {
		return ""
	}

	state := s.state(login)
	state.mu.Lock()
	defer state.mu.Unlock()

	lines, err := tail(s.Path(login), n)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Err(err).Str("login", login).Msg("History read failed.")
		}
		return ""
	}

	if maxBytes > 0 {
		lines = fit(lines, maxBytes)
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// fit drops leading lines until the newline-terminated join of lines is at most maxBytes.
func fit(lines []string, maxBytes int) []string {
	size := 0
	for _, line := range lines {
		size += len(line) + 1
	}

	for len(lines) > 0 && size > maxBytes {
		size -= len(lines[0]) + 1
		lines = lines[1:]
	}
	return lines
}

func (s *Store) state(login string) *fileState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.files[login]
	if !ok {
		state = &fileState{}
		s.files[login] = state
	}
	return state
}

// lastMarker returns the date of the last marker in the file, or "" when there is none.
func lastMarker(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var day string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if rest, ok := strings.CutPrefix(scanner.Text(), markerPrefix); ok {
			day = rest
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to scan history file: %w", err)
	}
	return day, nil
}

// tail reads the last n lines of the file using a ring of n entries.
func tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if count <= n {
		return ring[:count], nil
	}

	start := count % n
	return append(ring[start:], ring[:start]...), nil
}
