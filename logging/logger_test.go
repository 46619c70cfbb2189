package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"bogus":   LogLevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshgate.log")

	logger, closeFn, err := New(Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("agent.invoke.start", "agent", "main")
	logger.Warn("gateway.send.failed", "to", "whatsapp:+1")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "agent.invoke.start")
	assert.Contains(t, out, "gateway.send.failed")
	assert.True(t, strings.HasPrefix(out, "{"))
}

func TestWith_SlogAdapter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "with.log")
	logger, closeFn, err := New(Config{Level: "debug", Format: "text", Output: path})
	require.NoError(t, err)

	With(logger, "component", "gateway").Info("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "component=gateway")

	var noop Logger = NoOpLogger{}
	assert.Equal(t, noop, With(noop, "k", "v"))
}
