package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer, level LogLevel) *PipelineLogger {
	return NewLogger(&LoggerConfig{Level: level, Format: "json", Output: buf})
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestPipelineLogger_StructuredAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, LogLevelInfo)

	l.Warn("search query failed", "query", "boiling point", "error", "backend down")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "search query failed", entry["msg"], "message must not be altered by attributes")
	assert.Equal(t, "boiling point", entry["query"])
	assert.Equal(t, "backend down", entry["error"])
}

func TestPipelineLogger_ContextualAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, LogLevelInfo).WithComponent("agent").WithContext("provider", "openai")

	l.Info("model call completed", "duration", "1s")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "agent", entry["component"])
	assert.Equal(t, "openai", entry["provider"])
	assert.Equal(t, "1s", entry["duration"])
}

func TestPipelineLogger_WithQuery(t *testing.T) {
	var buf bytes.Buffer
	l := ScopeToQuery(newJSONLogger(&buf, LogLevelInfo), "sess-1", "query-1")

	l.Info("stage completed", "stage", "planner")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "query-1", entry["query_id"])
	assert.Equal(t, "planner", entry["stage"])
}

func TestScopeToQuery_PassThrough(t *testing.T) {
	l := NoOpLogger{}
	assert.Equal(t, Logger(l), ScopeToQuery(l, "s", "q"))
}

func TestPipelineLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestLogModelCall(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, LogLevelDebug)

	LogModelCall(l, "gpt-4o-mini", 250*time.Millisecond, nil)
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "model call completed", entry["msg"])
	assert.Equal(t, "gpt-4o-mini", entry["model"])

	buf.Reset()
	LogModelCall(l, "gpt-4o-mini", time.Second, errors.New("429 rate limit"))
	entry = decodeEntry(t, &buf)
	assert.Equal(t, "model call failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "429")
}

func TestLogSearchCall(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, LogLevelDebug)

	LogSearchCall(l, "boiling point", 5, 100*time.Millisecond, nil)
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "search query completed", entry["msg"])
	assert.Equal(t, "boiling point", entry["query"])
	assert.Equal(t, float64(5), entry["results"])

	buf.Reset()
	LogSearchCall(l, "boiling point", 0, time.Second, errors.New("tavily http 503"))
	entry = decodeEntry(t, &buf)
	assert.Equal(t, "search query failed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestLogStageExecution(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, LogLevelDebug)

	LogStageExecution(l, "researcher", time.Second, nil)
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "stage completed", entry["msg"])
	assert.Equal(t, "researcher", entry["stage"])

	buf.Reset()
	LogStageExecution(l, "validator", time.Second, errors.New("boom"))
	entry = decodeEntry(t, &buf)
	assert.Equal(t, "stage failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
}
