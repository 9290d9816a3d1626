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

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelInfo, FormatJSON)
	l.SetOutput(&buf)

	l.WithField("run_id", "r1").WithFields(Fields{"wallet_id": "w1"}).Info("fetched")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry.Level)
	assert.Equal(t, "fetched", entry.Message)
	assert.Equal(t, "r1", entry.Fields["run_id"])
	assert.Equal(t, "w1", entry.Fields["wallet_id"])
}

func TestLogger_DerivedDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LevelDebug, FormatJSON)
	parent.SetOutput(&buf)

	_ = parent.WithField("child", true)
	parent.Debug("plain")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry.Fields, "child")
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelWarn, FormatText)
	l.SetOutput(&buf)

	l.Info("hidden")
	l.Debugf("hidden %d", 1)
	l.WithError(errors.New("boom")).Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "error=boom")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestLogger_FatalUsesExit(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelInfo, FormatText)
	l.SetOutput(&buf)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatalf("storage write failed: %s", "ledger")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "storage write failed: ledger")
}

func TestFromContext(t *testing.T) {
	l := NewLogger(LevelDebug, FormatText)
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevelAndFormat(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLogLevel("bogus"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat(""))
}
