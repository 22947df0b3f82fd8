package cli

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		want     slog.Level
		wantName string
		wantErr  bool
	}{
		{"", slog.LevelInfo, "info", false},
		{"INFO", slog.LevelInfo, "info", false},
		{"debug", slog.LevelDebug, "debug", false},
		{"warn", slog.LevelWarn, "warn", false},
		{"warning", slog.LevelWarn, "warn", false},
		{"error", slog.LevelError, "error", false},
		{"err", slog.LevelError, "error", false},
		{"verbose", slog.LevelInfo, "", true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			level, name, err := parseLogLevel(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, level)
			assert.Equal(t, tc.wantName, name)
		})
	}
}

func TestNewLoggerVerboseForcesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := newLogger(&buf, "error", true)
	require.NoError(t, err)

	logger.Debug("model process started", "pid", 42)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "pid=42")

	_, err = newLogger(&buf, "chatty", false)
	assert.Error(t, err)
}
