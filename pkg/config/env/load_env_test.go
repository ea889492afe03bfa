package env

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RELAY_ENV_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("ENV_PATH", path)
	t.Setenv("RELAY_ENV_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("RELAY_ENV_TEST_KEY"))

	require.NoError(t, LoadDotEnv("local", "does-not-exist.env"))
	assert.Equal(t, "from-file", os.Getenv("RELAY_ENV_TEST_KEY"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	t.Setenv("ENV_PATH", "")

	assert.Error(t, LoadDotEnv("local", filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadDotEnv("prod", filepath.Join(t.TempDir(), "missing.env")))
}

func TestInt(t *testing.T) {
	t.Setenv("RELAY_INT", "")
	n, err := Int("RELAY_INT", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	t.Setenv("RELAY_INT", "42")
	n, err = Int("RELAY_INT", 7)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	t.Setenv("RELAY_INT", "many")
	_, err = Int("RELAY_INT", 7)
	assert.Error(t, err)
}

func TestBool(t *testing.T) {
	t.Setenv("RELAY_BOOL", "true")
	b, err := Bool("RELAY_BOOL", false)
	require.NoError(t, err)
	assert.True(t, b)

	t.Setenv("RELAY_BOOL", "maybe")
	_, err = Bool("RELAY_BOOL", false)
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, slog.LevelDebug, LogLevel())

	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, slog.LevelInfo, LogLevel())
}
