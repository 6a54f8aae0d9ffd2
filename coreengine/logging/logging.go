// Package logging configures log/slog and adapts it to agents.Logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/agents"
)

// Init configures the global slog default with the given level and format.
// If w is nil, os.Stderr is used. Format must be "text" or "json".
func Init(level slog.Level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level.
// Unknown names fall back to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a Logger with a "component" attribute for module-scoped logging.
func New(component string) *Logger {
	return &Logger{l: slog.Default().With(slog.String("component", component))}
}

// Logger implements agents.Logger over a *slog.Logger.
type Logger struct {
	l *slog.Logger
}

func (g *Logger) Debug(msg string, keysAndValues ...any) { g.l.Debug(msg, keysAndValues...) }
func (g *Logger) Info(msg string, keysAndValues ...any)  { g.l.Info(msg, keysAndValues...) }
func (g *Logger) Warn(msg string, keysAndValues ...any)  { g.l.Warn(msg, keysAndValues...) }
func (g *Logger) Error(msg string, keysAndValues ...any) { g.l.Error(msg, keysAndValues...) }

// Bind returns a child logger carrying fields on every record.
func (g *Logger) Bind(fields ...any) agents.Logger {
	return &Logger{l: g.l.With(fields...)}
}
