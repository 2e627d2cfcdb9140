package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New(path, LevelInfo, false)
	require.NoError(t, err)

	log.Debug("hidden %d", 1)
	log.Info("visible %s", "line")
	log.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] visible line")
	assert.NotContains(t, string(data), "hidden")
}

func TestAttachDetach(t *testing.T) {
	dir := t.TempDir()
	log, err := New("", LevelInfo, false)
	require.NoError(t, err)
	defer log.Close()

	sessionLog := filepath.Join(dir, "session.log")
	require.NoError(t, log.AttachFile(sessionLog))
	require.NoError(t, log.AttachFile(sessionLog), "re-attaching the same path is a no-op")

	log.Warn("during session")
	log.DetachFile(sessionLog)
	log.Warn("after session")

	data, err := os.ReadFile(sessionLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "during session")
	assert.NotContains(t, string(data), "after session")
	assert.Equal(t, 1, strings.Count(string(data), "during session"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("anything-else"))
}
