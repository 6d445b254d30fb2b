package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", "feed", "main")
	Error("shown error", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown warn feed=main")
	assert.Contains(t, out, "[ERROR] shown error err=boom")
}

func TestFormatKVsQuotesAndDropsOddTail(t *testing.T) {
	buf := capture(t, LevelDebug)

	Info("resolved", "title", "Farm Tour", "count", 3, "dangling")

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasSuffix(line, `resolved title="Farm Tour" count=3`), line)
}
