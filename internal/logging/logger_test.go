package logging

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

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithAccount("alice.near").WithSource("nearblocks").Warn("source degraded")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "source degraded", entry.Message)
	assert.Equal(t, "alice.near", entry.Fields["account"])
	assert.Equal(t, "nearblocks", entry.Fields["source"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatText)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "warn: shown")
}

func TestDerivedLoggersDoNotShareFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LevelDebug, FormatJSON)
	base.SetOutput(&buf)

	child := base.WithField("a", 1)
	_ = child.WithField("b", 2)
	child.Info("child")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry.Fields, "a")
	assert.NotContains(t, entry.Fields, "b")
	assert.Empty(t, base.fields)
}

func TestWithErrorAndCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug, FormatJSON)
	logger.SetOutput(&buf)

	logger.ErrorWithErr("fetch failed", errors.New("boom"))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry.Fields["error"])
	assert.True(t, strings.Contains(entry.Caller, "logger_test.go"))
	assert.Same(t, logger, logger.WithError(nil))
}

func TestContextLogger(t *testing.T) {
	logger := NewLogger(LevelDebug, FormatText)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevelAndFormat(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}

	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
