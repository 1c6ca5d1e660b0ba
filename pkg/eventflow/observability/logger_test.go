package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records as JSON lines.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &testHandler{buf: h.buf, level: h.level, attrs: merged}
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testHandler) lastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(lines[i], &m); err == nil {
			return m
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds scope and event", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "EventManager", "DeathEvent")
		enriched.Info("hello")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "EventManager", record["scope"])
		assert.Equal(t, "DeathEvent", record["event"])
		assert.Equal(t, "hello", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "s", "e"))
	})
}

func TestBroadcastHelpers_UseEnrichedFields(t *testing.T) {
	h := newTestHandler()
	logger := EnrichLogger(slog.New(h), "EventManager", "Tick")

	LogBroadcastStart(logger)
	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "broadcast starting", record["msg"])
	assert.Equal(t, "EventManager", record["scope"])
	assert.Equal(t, "Tick", record["event"])

	LogFlowDrop(logger, "LOW")
	record = h.lastRecord()
	assert.Equal(t, "flow buffer full, event dropped", record["msg"])
	assert.Equal(t, "Tick", record["event"])
	assert.Equal(t, "LOW", record["priority"])
}

func TestLogBroadcastComplete(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		h := newTestHandler()
		LogBroadcastComplete(slog.New(h), false, 1.5)

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "broadcast completed", record["msg"])
		assert.Equal(t, 1.5, record["duration_ms"])
	})

	t.Run("cancelled", func(t *testing.T) {
		h := newTestHandler()
		LogBroadcastComplete(slog.New(h), true, 2)

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "broadcast cancelled", record["msg"])
	})
}

func TestLogBroadcastError(t *testing.T) {
	h := newTestHandler()
	LogBroadcastError(slog.New(h), errors.New("tier timed out"))

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "tier timed out", record["error"])
}

func TestLogIntercepted(t *testing.T) {
	h := newTestHandler()
	LogIntercepted(slog.New(h), "HIGH", true)

	record := h.lastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "event intercepted", record["msg"])
	assert.Equal(t, "HIGH", record["priority"])
	assert.Equal(t, true, record["cancelled"])
}

func TestLogTransition(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogTransition(logger, "IDLE", "RUNNING", false)
	assert.Equal(t, "state transition", h.lastRecord()["msg"])

	LogTransition(logger, "RUNNING", "DONE", true)
	record := h.lastRecord()
	assert.Equal(t, "state transition vetoed", record["msg"])
	assert.Equal(t, "RUNNING", record["from"])
	assert.Equal(t, "DONE", record["to"])
}

func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogBroadcastStart(nil)
		LogIntercepted(nil, "LOW", false)
		LogBroadcastComplete(nil, false, 0)
		LogBroadcastError(nil, errors.New("x"))
		LogFlowDrop(nil, "LOW")
		LogTransition(nil, "a", "b", false)
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	assert.GreaterOrEqual(t, done(), float64(0))
}
