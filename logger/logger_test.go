package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, WARN)

	Debug("hidden debug")
	Infof("hidden %s", "info")
	Warnf("visible %d", 1)
	Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "visible 1")
	assert.Contains(t, out, "visible error")
	assert.Contains(t, out, "logger_test.go", "caller file should be reported")

	buf.Reset()
	SetLevel(DEBUG)
	Debug("now shown")
	assert.Contains(t, buf.String(), "now shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "warning": WARN, " error ": ERROR, "": INFO}
	for in, want := range tests {
		got, ok := ParseLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	got, ok := ParseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, INFO, got)
	assert.Equal(t, "warn", WARN.String())
}

func TestInitWritesPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixopt.log")
	require.NoError(t, Init(path, false, INFO))
	Info("to file")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO]  ")
	assert.Contains(t, string(data), "to file")
	assert.NotContains(t, string(data), "\033[")

	assert.Error(t, Init("", false, INFO))
	SetOutput(os.Stdout, INFO)
}
