package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "json", "warn")

	logger.Info("hidden")
	logger.Warn("shown", slog.String("user_id", "1"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "1", line["user_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
}

func TestResolve(t *testing.T) {
	assert.Same(t, slog.Default(), Resolve(nil))
}
