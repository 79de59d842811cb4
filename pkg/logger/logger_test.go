package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenamesKeysAndRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo)

	l.Info("negotiated", "csrf", "0123456789abcdef", "district", "松山區")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "negotiated", line["message"])
	assert.Equal(t, "INFO", line["level"])
	assert.Contains(t, line, "timestamp")
	assert.Equal(t, "01234567...", line["csrf"])
	assert.Equal(t, "松山區", line["district"])
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact("abc"))
	assert.Equal(t, "abcdefgh...", Redact("abcdefghij"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
