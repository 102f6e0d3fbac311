package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/remapd/internal/infrastructure/config"
)

// ServiceName is attached to every log entry as the "service" field.
const ServiceName = "remapd"

// Logger wraps slog.Logger with remapd defaults and a level that can be
// changed while running. Loggers derived with With share the level.
//
// All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a Logger writing to the destination named in cfg.Output:
// "stdout" (default), "stderr", or "file:<path>". A file that cannot be
// opened falls back to stderr with a warning.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, err := openOutput(cfg.Output)
	l := NewWithWriter(cfg, version, w)
	if err != nil {
		l.Warn("log output unavailable, using stderr", "output", cfg.Output, "error", err)
	}
	return l
}

func openOutput(output string) (io.Writer, error) {
	switch o := strings.TrimSpace(output); {
	case strings.EqualFold(o, "stderr"):
		return os.Stderr, nil
	case strings.HasPrefix(o, "file:"):
		path := strings.TrimPrefix(o, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path comes from operator config
		if err != nil {
			return os.Stderr, err
		}
		return f, nil
	default:
		return os.Stdout, nil
	}
}

// NewWithWriter creates a Logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler), level: level}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	l, ok := lookupLevel(level)
	if !ok {
		return slog.LevelInfo
	}
	return l
}

func lookupLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// SetLevel changes the minimum level of l and every logger sharing its
// level. Unknown names are rejected and leave the level unchanged.
func (l *Logger) SetLevel(level string) error {
	v, ok := lookupLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	if l.level != nil {
		l.level.Set(v)
	}
	return nil
}

// Level returns the current minimum level as a lower-case name.
func (l *Logger) Level() string {
	if l.level == nil {
		return strings.ToLower(slog.LevelInfo.String())
	}
	return strings.ToLower(l.level.Level().String())
}

// With returns a new Logger with additional default attributes.
//
//	hidLogger := logger.With("component", "hid")
//	hidLogger.Info("device opened") // Includes component=hid
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	level := new(slog.LevelVar)
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level})),
		level:  level,
	}
}
