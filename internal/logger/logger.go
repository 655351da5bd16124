package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	level slog.LevelVar
	mu    sync.RWMutex
	base  *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	base = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level})
	return slog.New(handler)
}

// SetOutput redirects all subsequent log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	base = newLogger(w)
	mu.Unlock()
}

// SetLevel accepts "debug", "info", "warn" or "error"; anything else means info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

func active() *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		base = newLogger(os.Stdout)
	}
	return base
}

func Debugf(format string, v ...any) { active().Debug(fmt.Sprintf(format, v...)) }

func Infof(format string, v ...any) { active().Info(fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { active().Warn(fmt.Sprintf(format, v...)) }

func Errorf(format string, v ...any) { active().Error(fmt.Sprintf(format, v...)) }
