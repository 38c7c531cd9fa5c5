package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/condoguard/domain/entity"
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

func TestStructuredLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	log := NewStructuredLogger(LoggerConfig{Level: "debug", Format: "json", ServiceName: "condoguard", Output: &buf})

	ctx := WithCorrelationID(context.Background(), "corr-1")
	log.WithFields(map[string]interface{}{"component": "gate"}).
		Error(ctx, "write failed", errors.New("boom"), map[string]interface{}{"attempt": 2})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "write failed", lines[0]["msg"])
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "condoguard", lines[0]["service"])
	assert.Equal(t, "gate", lines[0]["component"])
	assert.Equal(t, "corr-1", lines[0]["correlation_id"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, float64(2), lines[0]["attempt"])
	assert.Contains(t, lines[0]["caller"], "logger_test.go")
}

func TestStructuredLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewStructuredLogger(LoggerConfig{Level: "warn", Format: "json", Output: &buf})

	log.Info(context.Background(), "hidden", nil)
	log.Debug(context.Background(), "hidden", nil)
	log.Warn(context.Background(), "shown", nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestLogSecurityEvent_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewStructuredLogger(LoggerConfig{Level: "info", Format: "json", Output: &buf})

	LogSecurityEvent(context.Background(), log, "sql_injection_attempt", entity.SeverityCritical, nil)
	LogSecurityEvent(context.Background(), log, "rate_limit_exceeded", entity.SeverityWarning, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "warning", lines[1]["level"])
	assert.Equal(t, "security", lines[1]["event_type"])
}

func TestCorrelationID_Missing(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
}

func TestFallbackLog_Ring(t *testing.T) {
	var buf bytes.Buffer
	log := NewStructuredLogger(LoggerConfig{Level: "info", Format: "json", Output: &buf})
	fb := NewFallbackLog(log, 3)

	for i := 0; i < 5; i++ {
		entry := &entity.AuditLogEntry{Type: entity.AuditTypeUserAction, Action: fmt.Sprintf("a%d", i)}
		fb.Record(context.Background(), entry, "queue_full", nil)
	}

	recent := fb.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "a2", recent[0].Entry.Action)
	assert.Equal(t, "a4", recent[2].Entry.Action)
	assert.Equal(t, int64(5), fb.Total())
	assert.Len(t, decodeLines(t, &buf), 5)
}

func TestFallbackLog_ErrorWithoutEntry(t *testing.T) {
	var buf bytes.Buffer
	log := NewStructuredLogger(LoggerConfig{Level: "info", Format: "json", Output: &buf})
	fb := NewFallbackLog(log, 0)

	fb.Record(context.Background(), nil, "invalid_entry", errors.New("missing action"))

	recent := fb.Recent()
	require.Len(t, recent, 1)
	assert.Nil(t, recent[0].Entry)
	assert.Equal(t, "missing action", recent[0].Error)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "invalid_entry", lines[0]["reason"])
}

type panickingLogger struct{ Logger }

func (panickingLogger) Warn(context.Context, string, map[string]interface{}) { panic("sink down") }

func TestFallbackLog_LoggerPanic(t *testing.T) {
	fb := NewFallbackLog(panickingLogger{}, 2)

	assert.NotPanics(t, func() {
		fb.Record(context.Background(), nil, "queue_full", nil)
	})
	assert.Equal(t, int64(1), fb.Total())
}
