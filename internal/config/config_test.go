package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "", cfg.Terminal.Shell)
	assert.Equal(t, "python3", cfg.Terminal.Python)
	assert.Equal(t, 80, cfg.Terminal.Cols)
	assert.Equal(t, 24, cfg.Terminal.Rows)
	assert.True(t, cfg.Terminal.UseConhost)

	assert.Equal(t, 100, cfg.Console.HistoryMax)
	assert.Equal(t, 32, cfg.Console.QueueDepth)
	assert.Equal(t, 1000, cfg.Console.EventMax)
	assert.Equal(t, 2, cfg.Console.Depth)

	assert.Equal(t, 250*time.Millisecond, cfg.Resize.Debounce())
	assert.Equal(t, 5*time.Second, cfg.Resize.KeepAlive())
	assert.Equal(t, 10*time.Second, cfg.Resize.Grace())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                "9000",
		"HOST":                "127.0.0.1",
		"TERM_SHELL":          "/bin/zsh",
		"TERM_PYTHON":         "/usr/bin/python3",
		"TERM_COLS":           "132",
		"TERM_ROWS":           "43",
		"TERM_CONHOST":        "false",
		"CONSOLE_HISTORY_MAX": "50",
		"CONSOLE_QUEUE_DEPTH": "16",
		"RESIZE_DEBOUNCE_MS":  "100",
		"LOG_LEVEL":           "debug",
		"LOG_DEV":             "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/bin/zsh", cfg.Terminal.Shell)
	assert.Equal(t, "/usr/bin/python3", cfg.Terminal.Python)
	assert.Equal(t, 132, cfg.Terminal.Cols)
	assert.Equal(t, 43, cfg.Terminal.Rows)
	assert.False(t, cfg.Terminal.UseConhost)
	assert.Equal(t, 50, cfg.Console.HistoryMax)
	assert.Equal(t, 16, cfg.Console.QueueDepth)
	assert.Equal(t, 100*time.Millisecond, cfg.Resize.Debounce())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Defaults still apply elsewhere.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "python3", cfg.Terminal.Python)
	assert.True(t, cfg.Terminal.UseConhost)
}

func TestLoadFileOverlaysEnvironment(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("TERM_COLS", "100")

	path := filepath.Join(t.TempDir(), "termbed.yaml")
	body := []byte(`
server:
  port: "4000"
terminal:
  shell: /bin/fish
console:
  history_max: 10
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	// File values win over environment.
	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "/bin/fish", cfg.Terminal.Shell)
	assert.Equal(t, 10, cfg.Console.HistoryMax)

	// Environment values not named in the file survive.
	assert.Equal(t, 100, cfg.Terminal.Cols)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
