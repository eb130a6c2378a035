/*
Package chat contains the core logic of the chat relay: client sessions, the live session
registry with broadcast and private routing, and the server that accepts connections.

This file defines the Session struct, representing one client connection. It runs the
protocol state machine: an unauthenticated phase bounded by a deadline, then the
authenticated message loop.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chatty/internal/app/identity"
	"chatty/internal/app/protocol"
	"chatty/internal/pkg/errs"
	"chatty/internal/pkg/logx"
)

const (
	// timeout duration for writing one frame to the client.
	writeWait = 10 * time.Second

	// timeout duration for the one frame sent to a refused connection.
	refuseWait = 500 * time.Millisecond

	// renameNotice is broadcast from the new nickname after a successful rename.
	renameNotice = "this is my new nickname, previously %s"
)

// History lines recorded for account events.
const (
	eventSignedIn   = "Signed in to the chat"
	eventSignedOut  = "Signed out of the chat"
	eventRegistered = "Registered with nickname %s"
)

// Session is the server-side state of one connected client.
type Session struct {
	// registry is the process-wide session directory.
	registry *Registry

	// conn is the underlying transport; only this session writes to it.
	conn Conn

	// writeMu serialises every frame sent to this client.
	writeMu sync.Mutex

	// record is the authenticated account, nil until authentication succeeds.
	record atomic.Pointer[identity.UserRecord]

	// stopping is set when the server shuts down and a read error is expected.
	stopping atomic.Bool

	// closeOnce guards conn.Close.
	closeOnce sync.Once

	// structured logger with connection context.
	logger zerolog.Logger
}

func newSession(registry *Registry, conn Conn) *Session {
	return &Session{
		registry: registry,
		conn:     conn,
		logger: logx.Logger().With().
			Str("component", "Session").
			Str("remote_ip", logx.AnonymizeIP(conn.RemoteAddr())).
			Logger(),
	}
}

// Login returns the authenticated login, or "" before authentication.
func (s *Session) Login() string {
	if record := s.record.Load(); record != nil {
		return record.Login
	}
	return ""
}

// Nickname returns the current display name, or "" before authentication.
func (s *Session) Nickname() string {
	if record := s.record.Load(); record != nil {
		return record.Nickname()
	}
	return ""
}

// Deliver sends one frame to the client. A failed write closes the connection,
// which ends the session through its read loop.
func (s *Session) Deliver(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.writeLocked(text)
}

// writeLocked writes a frame; the caller holds writeMu.
func (s *Session) writeLocked(text string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to set write deadline")
	}

	if err := s.conn.WriteFrame(text); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			s.logger.Warn().Err(err).Msg("Outbound frame dropped.")
			return err
		}
		s.logger.Info().Err(err).Msg("Error writing frame, closing connection")
		s.close()
		return err
	}

	return nil
}

// Run drives the session until the client leaves, the deadline passes or the transport fails.
func (s *Session) Run() {
	defer s.finish()

	deadline := time.Now().Add(s.registry.authTimeout)
	if !s.authenticate(deadline) {
		return
	}

	s.serve()
}

// authenticate runs the unauthenticated phase. It returns true once the session is registered.
func (s *Session) authenticate(deadline time.Time) bool {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return false
	}
	if s.stopping.Load() {
		return false
	}

	warned := false

	for {
		line, err := s.conn.ReadFrame()
		if err != nil {
			s.handleReadError(err, true)
			return false
		}

		line = strings.TrimSpace(line)

		switch protocol.Name(line) {
		case protocol.CmdEnd:
			s.Deliver(protocol.CmdEnd)
			return false

		case protocol.CmdAuth:
			cmd, _ := protocol.Parse(line, 3)
			if !validArgs(cmd.Args, 2) {
				continue
			}

			if s.handleAuth(cmd.Args[0], cmd.Args[1]) {
				return true
			}
			if s.stopping.Load() {
				return false
			}

			if !warned {
				warned = true
				s.sendTimeoutWarning(deadline)
			}

		case protocol.CmdReg:
			cmd, _ := protocol.Parse(line, 0)
			if !validArgs(cmd.Args, 3) {
				continue
			}

			s.handleRegister(cmd.Args[0], cmd.Args[1], cmd.Args[2])

		default:
			s.logger.Debug().Msg("Ignoring input from unauthenticated client")
		}
	}
}

// handleAuth checks credentials and, on success, registers the session.
func (s *Session) handleAuth(login, password string) bool {
	ctx := context.Background()
	auditLog := s.logger.With().Str("login", login).Logger()

	record, err := s.registry.cache.Authenticate(ctx, login, password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			auditLog.Error().Err(err).Msg("Identity backend failed during authentication")
		}
		auditLog.Warn().Msg("Failed authentication attempt: bad credentials")
		s.registry.metrics.RecordAuth("bad_credentials")
		s.Deliver(errs.Text(errs.ErrInvalidCredentials))
		return false
	}

	if s.registry.IsConnected(login) {
		s.rejectDuplicate(auditLog, record)
		return false
	}

	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		auditLog.Error().Err(err).Msg("Failed to clear read deadline")
		return false
	}

	s.record.Store(record)

	if err := s.registry.Register(s, protocol.Format(protocol.CmdAuthOK, record.Nickname())); err != nil {
		s.record.Store(nil)
		if errors.Is(err, ErrAlreadyConnected) {
			s.rejectDuplicate(auditLog, record)
		}
		return false
	}

	auditLog.Info().Str("nickname", record.Nickname()).Msg("Signed in")
	s.registry.metrics.RecordAuth("ok")

	s.registry.history.Append(login, eventSignedIn)
	if backlog := s.registry.history.LastWithin(login, s.registry.historyLines, protocol.MaxFrameSize); backlog != "" {
		s.Deliver(backlog)
	}

	return true
}

func (s *Session) rejectDuplicate(auditLog zerolog.Logger, record *identity.UserRecord) {
	auditLog.Warn().Msg("Failed authentication attempt: account already connected")
	s.registry.metrics.RecordAuth("already_connected")
	s.Deliver(errs.Text(errs.ErrAlreadyConnected, record.Nickname()))
}

// handleRegister creates an account. It never authenticates the session.
func (s *Session) handleRegister(login, password, nickname string) {
	auditLog := s.logger.With().Str("login", login).Str("nickname", nickname).Logger()

	if !protocol.IsToken(login) || !protocol.IsToken(nickname) {
		auditLog.Warn().Msg("Registration refused: malformed login or nickname")
		s.registry.metrics.RecordRegistration("fault")
		s.Deliver(protocol.CmdRegFault)
		return
	}

	if _, err := s.registry.cache.Register(context.Background(), login, password, nickname); err != nil {
		switch {
		case errors.Is(err, identity.ErrLoginTaken), errors.Is(err, identity.ErrNicknameTaken):
			auditLog.Warn().Err(err).Msg("Registration refused")
		default:
			auditLog.Error().Err(err).Msg("Identity backend failed during registration")
		}
		s.registry.metrics.RecordRegistration("fault")
		s.Deliver(protocol.CmdRegFault)
		return
	}

	auditLog.Info().Msg("Registered")
	s.registry.metrics.RecordRegistration("ok")
	s.registry.history.Append(login, fmt.Sprintf(eventRegistered, nickname))
	s.Deliver(protocol.CmdRegOK)
}

// sendTimeoutWarning tells the client how long the authentication phase has left.
func (s *Session) sendTimeoutWarning(deadline time.Time) {
	remaining := time.Until(deadline).Round(time.Second)
	if remaining <= 0 {
		return
	}
	s.Deliver(errs.Text(errs.ErrAuthTimeoutWarning, humanDuration(remaining)))
}

// serve runs the authenticated message loop.
func (s *Session) serve() {
	for {
		line, err := s.conn.ReadFrame()
		if err != nil {
			s.handleReadError(err, false)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch protocol.Name(line) {
		case protocol.CmdEnd:
			s.Deliver(protocol.CmdEnd)
			return

		case protocol.CmdPrivate:
			cmd, _ := protocol.Parse(line, 3)
			if !validArgs(cmd.Args, 2) {
				continue
			}

			if echo := s.registry.SendPrivate(s, cmd.Args[0], cmd.Args[1]); echo != "" {
				s.registry.history.Append(s.Login(), echo)
			}

		case protocol.CmdNick:
			cmd, _ := protocol.Parse(line, 3)
			if !validArgs(cmd.Args, 1) {
				continue
			}

			s.rename(cmd.Args[0])

		default:
			s.registry.Broadcast(s, line)
		}
	}
}

// rename changes the nickname of the session and its account.
func (s *Session) rename(newNickname string) {
	oldNickname := s.Nickname()
	if newNickname == oldNickname {
		return
	}

	ctx := context.Background()
	auditLog := s.logger.With().Str("nickname", oldNickname).Str("new_nickname", newNickname).Logger()

	if !protocol.IsToken(newNickname) {
		auditLog.Warn().Msg("Failed rename attempt: malformed nickname")
		s.registry.metrics.RecordRename("fault")
		s.Deliver(protocol.CmdChangeFault)
		return
	}

	taken, err := s.registry.cache.IsRegistered(ctx, newNickname)
	if err != nil {
		auditLog.Error().Err(err).Msg("Identity backend failed during nickname lookup")
		s.registry.metrics.RecordRename("fault")
		s.Deliver(protocol.CmdChangeFault)
		return
	}

	if taken {
		auditLog.Warn().Msg("Failed rename attempt: nickname taken")
		s.registry.metrics.RecordRename("taken")
		s.Deliver(errs.Text(errs.ErrNicknameTaken, newNickname))
		return
	}

	if err := s.registry.cache.Rename(ctx, oldNickname, newNickname); err != nil {
		auditLog.Warn().Err(err).Msg("Rename refused by identity backend")
		s.registry.metrics.RecordRename("fault")
		s.Deliver(protocol.CmdChangeFault)
		return
	}

	auditLog.Info().Msg("Nickname changed")
	s.registry.metrics.RecordRename("ok")

	s.Deliver(protocol.Format(protocol.CmdChangeOK, newNickname))
	s.registry.Broadcast(s, fmt.Sprintf(renameNotice, oldNickname))
	s.registry.BroadcastRoster()
}

// handleReadError classifies why the read loop ended.
func (s *Session) handleReadError(err error, authenticating bool) {
	switch {
	case s.stopping.Load():
		s.logger.Debug().Msg("Session stopped by server shutdown")

	case authenticating && isTimeout(err):
		s.logger.Info().Msg("Authentication timed out")
		s.registry.metrics.RecordAuth("timeout")
		s.Deliver(protocol.CmdEnd)

	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		s.logger.Info().Msg("Client disconnected")

	default:
		s.logger.Info().Err(err).Msg("Error reading frame")
	}
}

// finish releases everything the session holds. It runs exactly once, when Run returns.
func (s *Session) finish() {
	if login := s.Login(); login != "" {
		s.logger.Info().Str("login", login).Msg("Signed out")
		s.registry.history.Append(login, eventSignedOut)
	}

	s.registry.Unregister(s)
	s.close()
	s.registry.release(s)
}

// stop makes a blocked read return so the session winds down.
func (s *Session) stop() {
	s.stopping.Store(true)
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		s.close()
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Client connection close error")
		}
	})
}

// validArgs reports whether args has exactly n non-empty entries.
func validArgs(args []string, n int) bool {
	if len(args) != n {
		return false
	}
	for _, arg := range args {
		if arg == "" {
			return false
		}
	}
	return true
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// humanDuration renders d as "1 minute 30 seconds".
func humanDuration(d time.Duration) string {
	total := int(d / time.Second)
	minutes, seconds := total/60, total%60

	var parts []string
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || minutes == 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
