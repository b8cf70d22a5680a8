package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLogger_InfoCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("dispatch-service", "info", &buf)

	ctx := log.WithRequestID(context.Background(), "req-1")
	ctx = log.WithRideID(ctx, "ride-9")
	log.Info(ctx, "ride_requested", " ride created ", map[string]any{"candidates": 2})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "dispatch-service", entry["service"])
	assert.Equal(t, "ride_requested", entry["action"])
	assert.Equal(t, "ride created", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "ride-9", entry["ride_id"])
	assert.NotEmpty(t, entry["timestamp"])
	assert.NotEmpty(t, entry["hostname"])
}

func TestLogger_ErrorAttachesStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("svc", "debug", &buf)

	log.Error(context.Background(), "", "store failed", errors.New("boom"), nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "unspecified", lines[0]["action"])
	errObj, ok := lines[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", errObj["msg"])
	assert.NotEmpty(t, errObj["stack"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("svc", "info", &buf)

	log.Debug(context.Background(), "noise", "dropped", nil)
	assert.Empty(t, buf.String())

	log.SetLevel("debug")
	log.Debug(context.Background(), "noise", "kept", nil)
	assert.Len(t, decodeLines(t, &buf), 1)
}
