// Package logging provides structured logging for both CLI and server modes.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog with mode-specific behavior.
type Logger struct {
	zlog   zerolog.Logger
	mode   string    // "cli" or "server"
	output io.Writer // current output writer
	file   *lumberjack.Logger
}

// Options configures a Logger beyond its mode.
type Options struct {
	// LogFile is the path of a rotating JSON log file (empty = console only)
	LogFile string

	// Console overrides the console destination (nil = stdout for cli, stderr for server)
	Console io.Writer
}

// NewLogger creates a new logger for the specified mode.
func NewLogger(mode string, opts Options) *Logger {
	console := opts.Console
	if console == nil {
		if mode == "cli" {
			// CLI mode: stdout so command output and logs interleave in order
			console = os.Stdout
		} else {
			// Server mode: stderr, stdout stays free for supervisors that capture it
			console = os.Stderr
		}
	}

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: "15:04:05",
		NoColor:    !isTerminal(console),
	}

	l := &Logger{mode: mode}

	if opts.LogFile != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		// File gets raw JSON lines, console gets the pretty form
		output = zerolog.MultiLevelWriter(output, l.file)
	}

	l.output = output
	l.zlog = zerolog.New(output).
		With().
		Timestamp().
		Str("mode", mode).
		Logger()

	return l
}

// isTerminal reports whether w is an interactive terminal. Pipes, files and
// buffers get plain text.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger("cli", Options{})
}

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), mode: "nop", output: io.Discard}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Fatal returns a fatal level event.
func (l *Logger) Fatal() *zerolog.Event {
	return l.zlog.Fatal()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Zerolog exposes the underlying logger for packages that take a zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Close flushes and closes the rotating log file if one is open.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when debug/verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config string ("debug", "info", ...) to a zerolog level.
// Unknown or empty strings map to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
