package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" INFO ":  zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.WarnLevel,
	}
	for raw, want := range tests {
		assert.Equal(t, want, parseLevel(raw, zerolog.WarnLevel), raw)
	}
}

func TestLoggerWithFieldsAndCaller(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))

	log.Warn("something happened", Int64("chat_id", 42), Err(errors.New("boom")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, "something happened", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.Equal(t, float64(42), m["chat_id"])
	assert.Equal(t, "boom", m["err"])
	assert.True(t, strings.HasPrefix(m["caller"].(string), "logging_test.go:"))
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Info("dropped")
	assert.False(t, Nop().IsZero())
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"send failed","chat_id":42,"comp":"broadcast"}` + "\n")
	got := formatChatLine(line)
	assert.Equal(t, "[WARN] send failed\n- chat_id=42\n- comp=broadcast", got)

	assert.Equal(t, "plain text", formatChatLine([]byte("plain text\n")))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
