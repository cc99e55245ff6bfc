package logger

import (
	"os"
	"path/filepath"
	"testing"

	"jobmatch-go/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := Init(config.LoggerConfig{Level: "debug", FilePath: path})
	require.NoError(t, err)

	log.Info().Str("component", "logger_test").Msg("file sink works")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file sink works")
	assert.Contains(t, string(data), "logger_test")
}

func TestInitFallsBackToInfoOnBadLevel(t *testing.T) {
	log, err := Init(config.LoggerConfig{Level: "shouting"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestInitRejectsUnwritableFile(t *testing.T) {
	_, err := Init(config.LoggerConfig{FilePath: filepath.Join(t.TempDir(), "missing", "app.log")})
	require.Error(t, err)
}
