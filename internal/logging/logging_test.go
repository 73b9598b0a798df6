package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("artifact missing", zap.String("name", "libx.so"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.True(t, strings.HasPrefix(out, "warn cargo-wop artifact missing"), out)
	assert.Contains(t, out, `"name": "libx.so"`)
}

func TestNew_Debug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", &buf)
	require.NoError(t, err)

	logger.Debug("exec")
	assert.Contains(t, buf.String(), "debug cargo-wop exec")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("chatty", &bytes.Buffer{})
	assert.Error(t, err)
}
