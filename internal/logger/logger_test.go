package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("WARN", &buf)

	l.Info("dropped")
	l.Debug("dropped too")
	assert.Empty(t, buf.String())

	l.Warn("kept")
	assert.Contains(t, buf.String(), `"message":"kept"`)
}

func TestEntryBuilderWritesFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("DEBUG", &buf)

	l.WithFields(Fields{"table": "tbl1"}).
		WithField("page", 2).
		WithError(errors.New("boom")).
		Error("page fetch failed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "page fetch failed", entry.Message)
	assert.Equal(t, "boom", entry.Error)
	assert.Equal(t, "tbl1", entry.Fields["table"])
	assert.EqualValues(t, 2, entry.Fields["page"])
	assert.Contains(t, entry.Caller, "logger_test.go")
}

func TestWithFieldsDoesNotAliasCallerMap(t *testing.T) {
	l := Discard()
	fields := Fields{"a": 1}
	l.WithFields(fields).WithField("b", 2).Info("x")
	_, ok := fields["b"]
	assert.False(t, ok)
}

func TestWithAddsBaseFields(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger("INFO", &buf)
	child := parent.With(Fields{"component": "bitable"})

	child.WithField("table", "tbl1").Info("listed")
	parent.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, Fields{"component": "bitable", "table": "tbl1"}, first.Fields)
	assert.Nil(t, second.Fields)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "LEVEL(9)", LogLevel(9).String())
}
