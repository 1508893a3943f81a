package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/config"
)

func TestJSONLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log, closer, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, buf)
	require.NoError(t, err)
	defer closer.Close()

	log.Info().Msg("hidden")
	log.Warn().Str("task_queue", "pizza").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"task_queue":"pizza"`)
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "worker.log")

	buf := &bytes.Buffer{}
	log, closer, err := newLogger(config.LogConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1}, buf)
	require.NoError(t, err)

	log.Debug().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestInvalid(t *testing.T) {
	_, _, err := newLogger(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, _, err = newLogger(config.LogConfig{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)

	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, level)
}
