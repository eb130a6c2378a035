/*
Package chat contains the core logic of the chat relay: client sessions, the live session
registry with broadcast and private routing, and the server that accepts connections.

This file defines the Registry struct, the process-wide directory of live sessions.
It is responsible for admitting connections, broadcast and private delivery, roster
fan-out and the graceful shutdown barrier.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"chatty/internal/app/history"
	"chatty/internal/app/identity"
	"chatty/internal/app/protocol"
	"chatty/internal/configs"
	"chatty/internal/pkg/errs"
	"chatty/internal/pkg/logx"
)

var (
	// ErrAlreadyConnected is returned by Register when the login already has a live session.
	ErrAlreadyConnected = errors.New("login already has a live session")

	// ErrShuttingDown is returned once Shutdown has started.
	ErrShuttingDown = errors.New("registry is shutting down")
)

// Registry struct is responsible for coordinating all live sessions.
type Registry struct {
	// cache is the process-wide identity lookup layer.
	cache *identity.Cache

	// history stores the per-login history files.
	history *history.Store

	// pool runs one task per session.
	pool *ants.Pool

	// metrics is optional; a nil value disables recording.
	metrics *Metrics

	// authTimeout bounds the unauthenticated phase of each session.
	authTimeout time.Duration

	// historyLines is how many history lines a session receives after signing in.
	historyLines int

	// mu protects every field below.
	mu sync.RWMutex

	// sessions stores authenticated sessions keyed by login.
	sessions map[string]*Session

	// order keeps authenticated sessions in join order for the roster.
	order []*Session

	// pending stores sessions that have not authenticated yet.
	pending map[*Session]struct{}

	// closing is set once Shutdown starts; no session is admitted afterwards.
	closing bool

	// barrier counts down as the sessions captured by Shutdown finish.
	barrier *latch

	// counted marks the sessions the barrier is waiting for.
	counted map[*Session]struct{}

	// structured logger with Registry context.
	logger zerolog.Logger
}

// NewRegistry constructs and returns a new Registry instance.
func NewRegistry(cfg *configs.AppConfig, cache *identity.Cache, store *history.Store, pool *ants.Pool, metrics *Metrics) *Registry {
	return &Registry{
		cache:        cache,
		history:      store,
		pool:         pool,
		metrics:      metrics,
		authTimeout:  cfg.AuthTimeout,
		historyLines: cfg.HistoryLines,
		sessions:     make(map[string]*Session),
		pending:      make(map[*Session]struct{}),
		logger:       logx.Component("Registry"),
	}
}

// Accept creates a session for conn and schedules it on the worker pool.
// After Shutdown has started the connection is told so and closed.
func (r *Registry) Accept(conn Conn) error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		r.metrics.RecordRejected("shutdown")
		refuse(conn, errs.Text(errs.ErrServerShuttingDown))
		return ErrShuttingDown
	}

	s := newSession(r, conn)
	r.pending[s] = struct{}{}
	r.metrics.SetPendingConnections(len(r.pending))
	r.mu.Unlock()

	if err := r.pool.Submit(s.Run); err != nil {
		r.mu.Lock()
		delete(r.pending, s)
		r.metrics.SetPendingConnections(len(r.pending))
		r.mu.Unlock()

		s.close()
		r.release(s)
		return fmt.Errorf("failed to schedule session: %w", err)
	}

	s.logger.Debug().Msg("Session scheduled")
	return nil
}

// Register admits an authenticated session and fans out the new roster.
// greeting is written to the session before any other session can reach it.
func (r *Registry) Register(s *Session, greeting string) error {
	s.writeMu.Lock()

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		s.writeMu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := r.sessions[s.Login()]; ok {
		r.mu.Unlock()
		s.writeMu.Unlock()
		return ErrAlreadyConnected
	}

	delete(r.pending, s)
	r.sessions[s.Login()] = s
	r.order = append(r.order, s)
	r.metrics.SetActiveSessions(len(r.sessions))
	r.metrics.SetPendingConnections(len(r.pending))
	r.mu.Unlock()

	s.writeLocked(greeting)
	s.writeMu.Unlock()

	r.BroadcastRoster()
	return nil
}

// Unregister removes s and, when it was authenticated, fans out the new roster.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	delete(r.pending, s)

	wasLive := false
	if login := s.Login(); login != "" && r.sessions[login] == s {
		delete(r.sessions, login)
		for i, other := range r.order {
			if other == s {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		wasLive = true
	}

	r.metrics.SetActiveSessions(len(r.sessions))
	r.metrics.SetPendingConnections(len(r.pending))
	r.mu.Unlock()

	if wasLive {
		r.BroadcastRoster()
	}
}

// release signals the shutdown barrier that s has finished.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.counted[s]; ok {
		delete(r.counted, s)
		r.barrier.countDown()
	}
}

// snapshot returns the authenticated sessions in join order.
func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, len(r.order))
	copy(sessions, r.order)
	return sessions
}

// Broadcast delivers "[nickname]: text" from sender to every authenticated session and
// records it in each recipient's history. A message that does not fit in one frame is
// refused with a notice to sender and recorded nowhere.
func (r *Registry) Broadcast(sender *Session, text string) {
	nickname := sender.Nickname()
	msg := "[" + nickname + "]: " + text
	if !r.fits(sender, len(msg)) {
		return
	}

	recipients := r.snapshot()
	for _, s := range recipients {
		s.Deliver(msg)
		r.history.Append(s.Login(), msg)
	}

	r.logger.Info().Str("sender", nickname).Int("recipients", len(recipients)).Str("text", text).Msg("Broadcast")
	r.metrics.RecordMessage("broadcast")
	r.metrics.RecordFanout(len(recipients))
}

// SendPrivate routes text from sender to the session using target as nickname.
// It returns the copy echoed back to the sender, which the caller records in its own
// history, or "" when nothing was echoed.
func (r *Registry) SendPrivate(sender *Session, target, text string) string {
	recipient := r.findByNickname(target)
	if recipient == nil {
		r.logger.Warn().Str("sender", sender.Nickname()).Str("target", target).Msg("Private message to unknown recipient")
		r.metrics.RecordMessage("undelivered")
		sender.Deliver(errs.Text(errs.ErrUnknownRecipient, target))
		return ""
	}

	inbound := "[private message from " + sender.Nickname() + "]: " + text
	echo := "[private message to " + target + "]: " + text
	if !r.fits(sender, max(len(inbound), len(echo))) {
		return ""
	}

	recipient.Deliver(inbound)
	r.history.Append(recipient.Login(), inbound)

	r.logger.Info().Str("sender", sender.Nickname()).Str("target", target).Msg("Private message")
	r.metrics.RecordMessage("private")

	if recipient == sender {
		return ""
	}

	sender.Deliver(echo)
	return echo
}

// fits reports whether a frame of size bytes can be sent. If not, sender is told.
func (r *Registry) fits(sender *Session, size int) bool {
	if size <= protocol.MaxFrameSize {
		return true
	}

	r.logger.Warn().Str("sender", sender.Nickname()).Int("bytes", size).Msg("Message refused: exceeds frame size")
	r.metrics.RecordMessage("too_long")
	sender.Deliver(errs.Text(errs.ErrMessageTooLong, protocol.MaxFrameSize))
	return false
}

// BroadcastRoster sends the current roster to every authenticated session.
func (r *Registry) BroadcastRoster() {
	sessions := r.snapshot()
	roster := protocol.Format(protocol.CmdClientList, nicknames(sessions)...)

	for _, s := range sessions {
		s.Deliver(roster)
	}
}

// Roster returns the nicknames of the authenticated sessions in join order.
func (r *Registry) Roster() []string {
	return nicknames(r.snapshot())
}

// IsConnected reports whether login has a live session.
func (r *Registry) IsConnected(login string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[login]
	return ok
}

// IsNicknameTaken reports whether a live session uses nickname.
func (r *Registry) IsNicknameTaken(nickname string) bool {
	return r.findByNickname(nickname) != nil
}

// Online returns the number of authenticated sessions.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *Registry) findByNickname(nickname string) *Session {
	for _, s := range r.snapshot() {
		if s.Nickname() == nickname {
			return s
		}
	}
	return nil
}

// Shutdown sends the exit command to every live session and waits until each has finished.
// Sessions still running when ctx ends are force-closed and awaited once more.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	r.closing = true

	live := make([]*Session, 0, len(r.order)+len(r.pending))
	live = append(live, r.order...)
	for s := range r.pending {
		live = append(live, s)
	}

	r.counted = make(map[*Session]struct{}, len(live))
	for _, s := range live {
		r.counted[s] = struct{}{}
	}
	r.barrier = newLatch(len(live))
	barrier := r.barrier
	r.mu.Unlock()

	r.logger.Info().Int("sessions", len(live)).Msg("Shutting down Registry...")

	for _, s := range live {
		s.Deliver(protocol.CmdEnd)
		s.stop()
	}

	if err := barrier.wait(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Sessions did not finish in time, closing connections.")
		for _, s := range live {
			s.close()
		}
		if err := barrier.wait(context.Background()); err != nil {
			return err
		}
	}

	r.logger.Info().Msg("Registry shutdown complete.")
	return nil
}

func nicknames(sessions []*Session) []string {
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.Nickname())
	}
	return names
}

// refuse tells a connection it cannot be served and closes it. It runs on the accept
// loop, so a peer that does not read gets refuseWait and no more.
func refuse(conn Conn, text string) {
	if err := conn.SetWriteDeadline(time.Now().Add(refuseWait)); err == nil {
		_ = conn.WriteFrame(text)
	}
	_ = conn.Close()
}
