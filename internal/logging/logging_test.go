package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawgen/internal/config"
	"drawgen/internal/logging"
)

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "drawgen.log")
	closer, err := logging.Setup(config.LoggingConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	log.WithField("diagram", "d1").Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"diagram":"d1"`)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestSetup_BadLevel(t *testing.T) {
	_, err := logging.Setup(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
