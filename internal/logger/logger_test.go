package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	log.Info().Str("thread_id", "thread_abc").Msg("thread created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "thread_abc", entry["thread_id"])
	assert.Equal(t, "thread created", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	log.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestOpen_UsesOverrideDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATDESK_LOG_DIR", dir)

	log, closer, err := Open("info")
	require.NoError(t, err)
	log.Info().Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
