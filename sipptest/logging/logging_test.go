package logging_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/sipp_tester/sipptest/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := logging.ParseLevel("chatty")
	assert.Error(t, err)
}

func TestNew_stderr_text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger, closeFn, err := logging.New(logging.Options{
		Level:  slog.LevelWarn,
		Stderr: &buf,
	})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("probe failed", "host", "10.0.0.1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "probe failed")
	assert.Contains(t, buf.String(), "host=10.0.0.1")
	assert.NoError(t, closeFn())
}

func TestNew_rotating_json_file(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "sipptest.log")

	logger, closeFn, err := logging.New(logging.Options{
		Level: slog.LevelInfo,
		File:  path,
	})
	require.NoError(t, err)

	logger.Info("resolved kamailio target", "address", "172.18.0.3:30600")
	require.NoError(t, closeFn())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &rec))

	assert.Equal(t, "resolved kamailio target", rec["msg"])
	assert.Equal(t, "172.18.0.3:30600", rec["address"])
	assert.Equal(t, "INFO", rec["level"])
}
