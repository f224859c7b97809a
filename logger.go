package podauth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {}

func (d defLogger) Info(msg string, args ...any) {}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Fprintln(os.Stderr, "[WRN] PODAUTH "+msg+formatKV(args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Fprintln(os.Stderr, "[ERR] PODAUTH "+msg+formatKV(args))
}

// formatKV renders key/value pairs as " key=value", a trailing key
// without a value is printed as is
func formatKV(args []any) string {
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " %v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

// SlogLogger adapts a *slog.Logger to Logger
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l. A nil logger falls back to slog.Default.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

func (s *SlogLogger) Debug(msg string, args ...any) {
	s.log(slog.LevelDebug, msg, args...)
}

func (s *SlogLogger) Info(msg string, args ...any) {
	s.log(slog.LevelInfo, msg, args...)
}

func (s *SlogLogger) Warn(msg string, args ...any) {
	s.log(slog.LevelWarn, msg, args...)
}

func (s *SlogLogger) Error(msg string, args ...any) {
	s.log(slog.LevelError, msg, args...)
}

// With returns a logger that always includes args
func (s *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: s.logger.With(args...)}
}

func (s *SlogLogger) log(level slog.Level, msg string, args ...any) {
	s.logger.Log(context.Background(), level, msg, args...)
}
