/*
Package main is the entry point for the Chatty server.

It is responsible for loading configuration, initializing the global logging system,
opening the identity backend, starting the chat listener and the optional HTTP
side-channel, and gracefully handling operating system interrupt signals (SIGINT,
SIGTERM) or the console /end command to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"chatty/internal/app/chat"
	"chatty/internal/app/db"
	"chatty/internal/app/history"
	"chatty/internal/configs"
	"chatty/internal/handler"
	"chatty/internal/pkg/console"
	"chatty/internal/pkg/limiter"
	"chatty/internal/pkg/logx"
)

// shutdownTimeout bounds how long sessions get to finish before they are force-closed.
const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "chatty",
		Short:         "Run the Chatty text chat relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("CONFIG_FILE")
			}
			return run(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML configuration file (defaults to $CONFIG_FILE)")
	return cmd
}

func run(configPath string) error {
	// Load configuration from the optional file and environment variables
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize global logger
	auditSink, err := logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer auditSink.Close()

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Int("http_port", cfg.HTTPPort).
		Dur("auth_timeout", cfg.AuthTimeout).
		Str("identity_backend", cfg.IdentityBackend).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, backendKind := db.OpenBackend(ctx, cfg)
	logx.Info("Identity backend ready", "backend", backendKind)

	metrics := chat.NewMetrics()
	connLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(cfg.ConnectRate), cfg.ConnectBurst)

	server, err := chat.NewServer(cfg, backend, history.NewStore(cfg.HistoryDir), metrics, connLimiter)
	if err != nil {
		return err
	}

	if err := server.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logx.Fatal(err, "Chat server failed to start")
	}

	var httpServer *http.Server
	if cfg.HTTPPort != 0 {
		httpServer = &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler: handler.Router(&handler.AppDeps{
				Server:      server,
				Metrics:     metrics,
				Config:      cfg,
				Limiter:     connLimiter,
				BackendKind: backendKind,
			}),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			logx.Info(fmt.Sprintf("HTTP side-channel starting on http://localhost%s", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Error(err, "HTTP side-channel stopped")
			}
		}()
	}

	go console.Watch(os.Stdin, stop)

	// Wait for an interrupt signal or the console command, then shut down with a timeout.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "HTTP side-channel forced to shutdown")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Chat server shutdown incomplete")
		return err
	}

	logx.Info("Server gracefully stopped.")
	return nil
}
