package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
)

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values are never written.
var secretKeys = map[string]bool{
	"password": true,
	"token":    true,
	"secret":   true,
}

// Logger is a slog.Logger carrying the service and version fields, with a
// level that can be changed after construction.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a Logger writing to the destination named by cfg.Output:
// "stdout" (default), "stderr" or "discard".
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "discard":
		output = io.Discard
	default:
		output = os.Stdout
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter creates a Logger that writes to output, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "roomsync"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
	}
}

// parseLevel maps debug, info, warn/warning and error to slog levels.
// Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// With returns a Logger with additional default attributes. The derived
// logger shares its parent's level.
//
// Example:
//
//	mqttLog := logger.With("component", "mqtt")
//	mqttLog.Info("connected") // includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
	}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// SetLevel changes the minimum level for this logger and every logger
// derived from it. Unknown names select info.
func (l *Logger) SetLevel(level string) {
	l.level.Set(parseLevel(level))
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Default returns a JSON info logger on stdout for use before the
// configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
