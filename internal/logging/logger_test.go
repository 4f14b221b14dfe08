package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victron-virtual/dbus-virtual-go/internal/config"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "x"))
	assert.NotNil(t, New(config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}, "x"))
	assert.NotNil(t, Default())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestJSONOutputHasService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"},
		"com.victronenergy.battery.virtual_dev1")

	logger.Info("device ready", "instance", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "device ready", entry["msg"])
	assert.Equal(t, "com.victronenergy.battery.virtual_dev1", entry["service"])
	assert.Equal(t, float64(7), entry["instance"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "")

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "service=")
}
