/*
Package logx provides a structured logging wrapper based on zerolog.

It is responsible for initializing the global logger, configuring the output format
(JSON or console) based on the environment, tee-ing every event into a size-rotated
audit file, and providing unified helper functions for logging levels like Info, Warn,
Error, and Fatal.
*/
package logx

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// auditFileName is the name of the active audit file inside the log folder.
	auditFileName = "chatty.log"

	// auditMaxSizeMB is the size at which the audit file is rotated.
	auditMaxSizeMB = 10

	// auditMaxBackups is the number of rotated audit files kept on disk.
	auditMaxBackups = 20
)

// InitGlobalLogger initializes the global zerolog instance.
// Development: Debug level, uses ConsoleWriter (colored/human-readable format).
// Production: Info level, uses standard JSON format.
// When logDir is not empty, every event is also written as JSON into a rotated file
// inside logDir; the returned Closer releases that file.
func InitGlobalLogger(isDevelopment bool, logDir string) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var console io.Writer = os.Stdout
	level := zerolog.InfoLevel

	if isDevelopment {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    false,
			TimeFormat: time.RFC3339,
		}
		level = zerolog.DebugLevel
	}

	var (
		out    = console
		closer io.Closer = nopCloser{}
	)

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, err
		}

		audit := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, auditFileName),
			MaxSize:    auditMaxSizeMB,
			MaxBackups: auditMaxBackups,
		}
		out = zerolog.MultiLevelWriter(console, audit)
		closer = audit
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(level)

	log.Logger = logger.With().Caller().Logger()

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child of the global logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// checkFields validates that the variadic fields parameter has an even number (key-value pairs).
// If the count is odd, it logs a warning and returns nil to prevent zerolog from panicking.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level).
			Msgf("Logx call (%s) received odd number of fields: %v. Fields ignored.", level, fields)
		return nil
	}
	return fields
}

// Info records a log message at the Info level.
// It accepts a message string and optional key-value field list.
func Info(msg string, fields ...any) {
	fields = checkFields("Info", fields)

	Logger().Info().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Warn records a log message at the Warn level.
// It accepts a message string and optional key-value field list.
func Warn(msg string, fields ...any) {
	fields = checkFields("Warn", fields)

	Logger().Warn().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Error records a log message at the Error level.
// It accepts an error object, a message string, and an optional key-value field list.
func Error(err error, msg string, fields ...any) {
	fields = checkFields("Error", fields)

	Logger().Error().
		Err(err).
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Fatal records a log message at the Fatal level and then calls os.Exit(1) to terminate the program.
func Fatal(err error, msg string, fields ...any) {
	fields = checkFields("Fatal", fields)

	Logger().Fatal().
		Err(err).
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// PoolLogger adapts the global logger to the Printf-style logger the worker pool expects.
type PoolLogger struct{}

// Printf implements ants.Logger.
func (PoolLogger) Printf(format string, args ...any) {
	Logger().Warn().Str("component", "pool").Msgf(format, args...)
}
