package logger

import (
	"io"
	"log/slog"
	"strings"
)

// visiblePrefix is how much of a sensitive value survives redaction.
const visiblePrefix = 8

// sensitiveKeys are attribute keys whose values are session credentials.
var sensitiveKeys = map[string]bool{
	"csrf":        true,
	"token":       true,
	"captcha_key": true,
	"cookie":      true,
	"password":    true,
}

// Init initializes the global slog logger.
func Init(writer io.Writer, level slog.Level) {
	slog.SetDefault(New(writer, level))
}

// New builds the JSON logger used by the service.
func New(writer io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})
	return slog.New(handler)
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.LevelKey:
		a.Key = "level"
	case slog.MessageKey:
		a.Key = "message"
	}
	if sensitiveKeys[strings.ToLower(a.Key)] && a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(Redact(a.Value.String()))
	}
	return a
}

// Redact keeps a short prefix of a credential so log lines stay correlatable.
func Redact(v string) string {
	if len(v) <= visiblePrefix {
		return strings.Repeat("*", len(v))
	}
	return v[:visiblePrefix] + "..."
}
