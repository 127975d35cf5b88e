package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogConfig{Level: "debug", Output: &buf, ServiceName: "filter-test"})

	ctx := ContextWithTraceID(context.Background(), "trace-1")
	l.WithContext(ctx).
		WithTenant("acme").
		WithOperation("extract").
		Info().
		Str("entity", "E5Q").
		Int("attributes", 2).
		Bool("comparison", false).
		Strs("all", []string{"P20", "P20 Plus"}).
		Dur("took", 5*time.Millisecond).
		Err(errors.New("boom")).
		Msg("Extracted")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "filter-test", entry["service"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "acme", entry["tenant_id"])
	assert.Equal(t, "extract", entry["operation"])
	assert.Equal(t, "E5Q", entry["entity"])
	assert.Equal(t, float64(2), entry["attributes"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "Extracted", entry["message"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogConfig{Level: "warn", Output: &buf})

	l.Debug().Msg("hidden")
	l.Info().Msg("hidden")
	l.Warn().Msgf("shown %d", 1)
	l.Error().Msg("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown 1", lines[0]["message"])
	assert.Equal(t, "entity-filter", lines[0]["service"])
}

func TestLogger_WithContextWithoutTrace(t *testing.T) {
	l := Nop()
	assert.Same(t, l, l.WithContext(context.Background()))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestNopAndOrNop(t *testing.T) {
	assert.NotPanics(t, func() {
		OrNop(nil).Info().Str("k", "v").Msg("discarded")
		Nop().WithSource("csv:x").Error().Err(errors.New("x")).Msg("discarded")
	})
	l := Nop()
	assert.Same(t, l, OrNop(l))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warning").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
	assert.Equal(t, "disabled", parseLevel("off").String())
}
