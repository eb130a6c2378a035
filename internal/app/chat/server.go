package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"chatty/internal/app/history"
	"chatty/internal/app/identity"
	"chatty/internal/configs"
	"chatty/internal/pkg/errs"
	"chatty/internal/pkg/limiter"
	"chatty/internal/pkg/logx"
)

const (
	// idle workers are reclaimed after this long.
	workerExpiry = time.Minute

	// acceptBackoff pauses the accept loop after a transient failure.
	acceptBackoff = 50 * time.Millisecond

	// poolReleaseTimeout bounds how long Shutdown waits for idle workers to exit.
	poolReleaseTimeout = 3 * time.Second
)

// Server accepts TCP clients and hands them to the Registry.
type Server struct {
	registry *Registry
	backend  identity.Backend
	pool     *ants.Pool
	limiter  *limiter.IPRateLimiter
	metrics  *Metrics

	mu       sync.Mutex
	listener net.Listener

	logger zerolog.Logger
}

// NewServer wires the worker pool, the identity cache and the Registry around backend.
// limiter may be nil, in which case every connection is admitted.
func NewServer(cfg *configs.AppConfig, backend identity.Backend, store *history.Store, metrics *Metrics, rl *limiter.IPRateLimiter) (*Server, error) {
	pool, err := newPool()
	if err != nil {
		return nil, err
	}

	return &Server{
		registry: NewRegistry(cfg, identity.NewCache(backend), store, pool, metrics),
		backend:  backend,
		pool:     pool,
		limiter:  rl,
		metrics:  metrics,
		logger:   logx.Component("Server"),
	}, nil
}

// newPool creates the unbounded worker pool that runs the accept loop and every session.
func newPool() (*ants.Pool, error) {
	pool, err := ants.NewPool(-1,
		ants.WithExpiryDuration(workerExpiry),
		ants.WithLogger(logx.PoolLogger{}),
		ants.WithPanicHandler(func(p any) {
			logx.Error(fmt.Errorf("%v", p), "Worker task panicked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return pool, nil
}

// Registry returns the session directory served by s.
func (s *Server) Registry() *Registry {
	return s.registry
}

// BackendHealthy reports whether the identity backend is reachable.
func (s *Server) BackendHealthy(ctx context.Context) bool {
	return s.backend.HealthCheck(ctx)
}

// RegisterAccount creates an account outside of any chat session.
func (s *Server) RegisterAccount(ctx context.Context, login, password, nickname string) error {
	if _, err := s.registry.cache.Register(ctx, login, password, nickname); err != nil {
		s.metrics.RecordRegistration("fault")
		return err
	}

	s.logger.Info().Str("login", login).Str("nickname", nickname).Msg("Registered over HTTP")
	s.metrics.RecordRegistration("ok")
	s.registry.history.Append(login, fmt.Sprintf(eventRegistered, nickname))
	return nil
}

// Listen binds addr and starts accepting clients in the background.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.Serve(ln)
}

// Serve starts the accept loop on ln. It returns once the loop is scheduled.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if err := s.pool.Submit(func() { s.acceptLoop(ln) }); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to schedule accept loop: %w", err)
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Chat server listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info().Msg("Accept loop stopped.")
				return
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			time.Sleep(acceptBackoff)
			continue
		}

		conn := NewStreamConn(c)

		if s.limiter != nil && !s.limiter.AllowAddr(conn.RemoteAddr()) {
			s.logger.Warn().Str("remote_ip", logx.AnonymizeIP(conn.RemoteAddr())).Msg("Connection rejected: Rate limit exceeded.")
			s.metrics.RecordRejected("rate_limit")
			refuse(conn, errs.Text(errs.ErrRateLimitExceeded))
			continue
		}

		if err := s.registry.Accept(conn); err != nil && !errors.Is(err, ErrShuttingDown) {
			s.logger.Error().Err(err).Msg("Failed to accept connection")
		}
	}
}

// Shutdown stops every session, then closes the listener, the backend and the pool.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down chat server...")

	var errList []error

	if err := s.registry.Shutdown(ctx); err != nil {
		errList = append(errList, fmt.Errorf("registry: %w", err))
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errList = append(errList, fmt.Errorf("listener: %w", err))
		}
	}

	if err := s.backend.Close(); err != nil {
		errList = append(errList, fmt.Errorf("identity backend: %w", err))
	}

	if err := s.pool.ReleaseTimeout(poolReleaseTimeout); err != nil {
		errList = append(errList, fmt.Errorf("worker pool: %w", err))
	}

	if err := errors.Join(errList...); err != nil {
		return err
	}

	s.logger.Info().Msg("Chat server stopped.")
	return nil
}
