package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	mu           sync.RWMutex
	globalLogger *slog.Logger
)

// New builds a logger for the given environment. Development environments log
// text at debug level with source locations; everything else logs JSON at
// info level.
func New(w io.Writer, env string) *slog.Logger {
	opts := slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch env {
	case "development", "test":
		opts.Level = slog.LevelDebug
		opts.AddSource = true
		handler = slog.NewTextHandler(w, &opts)
	case "development-json":
		opts.Level = slog.LevelDebug
		opts.AddSource = true
		handler = slog.NewJSONHandler(w, &opts)
	default:
		opts.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(w, &opts)
	}
	return slog.New(handler).With("app", "labcatalog")
}

// InitLogger configures the global logger for env and installs it as the
// slog default.
func InitLogger(env string) *slog.Logger {
	l := New(os.Stdout, env)
	switch env {
	case "development", "development-json", "test", "production", "staging":
	default:
		l.Warn("Unknown APP_ENV, defaulting to production logging", "app_env", env)
	}

	mu.Lock()
	globalLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// L returns the global logger, initializing a development logger if
// InitLogger has not run yet.
func L() *slog.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		return InitLogger("development")
	}
	return l
}
