package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathExplicitWins(t *testing.T) {
	path, err := ResolvePath("  /tmp/custom.yaml  ")
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.yaml", path)
}

func TestResolvePathXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	path, err := ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/xdg-config", "minute", "config.yaml"), path)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvUserID, "tester")
	t.Setenv(EnvAPIKey, "")

	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.False(t, loaded.Exists)
	require.Equal(t, "tester", loaded.Config.UserID)
	require.Equal(t, 16000, loaded.Config.Audio.SampleRate)
	require.Equal(t, 3, loaded.Config.Transcribe.MaxAttempts)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	t.Setenv(EnvUserID, "")
	t.Setenv(EnvAPIKey, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
user_id: u-123
data_dir: ` + dir + `
transcribe:
  endpoint: https://stt.example.com
  api_key: sekret
  language: de-DE
  timeout_seconds: 30
  max_attempts: 5
  retry_backoff_ms: 500
  health_path: /healthz
audio:
  input: webcam-mic
  sample_rate: 48000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, "u-123", loaded.Config.UserID)
	require.Equal(t, "https://stt.example.com", loaded.Config.Transcribe.Endpoint)
	require.Equal(t, "de-DE", loaded.Config.Transcribe.Language)
	require.Equal(t, 5, loaded.Config.Transcribe.MaxAttempts)
	require.Equal(t, "webcam-mic", loaded.Config.Audio.Input)
	require.Equal(t, 48000, loaded.Config.Audio.SampleRate)
	// Defaults survive for keys the file omits.
	require.Equal(t, "default", loaded.Config.Audio.Fallback)
	require.Empty(t, loaded.Warnings)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "user_id: file-user\ndata_dir: " + dir + "\ntranscribe:\n  api_key: file-key\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv(EnvUserID, "env-user")
	t.Setenv(EnvAPIKey, "env-key")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-user", loaded.Config.UserID)
	require.Equal(t, "env-key", loaded.Config.Transcribe.APIKey)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
}

func TestValidateRejections(t *testing.T) {
	base := Default()
	base.UserID = "u"
	base.DataDir = "/tmp/minute"
	base.Transcribe.APIKey = "k"

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty user", func(c *Config) { c.UserID = " " }, "user_id"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"bad sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "sample_rate"},
		{"empty endpoint", func(c *Config) { c.Transcribe.Endpoint = "" }, "endpoint"},
		{"non-http endpoint", func(c *Config) { c.Transcribe.Endpoint = "ftp://x" }, "http(s)"},
		{"bad health path", func(c *Config) { c.Transcribe.HealthPath = "healthz" }, "health_path"},
		{"empty language", func(c *Config) { c.Transcribe.Language = "" }, "language"},
		{"bad timeout", func(c *Config) { c.Transcribe.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"bad attempts", func(c *Config) { c.Transcribe.MaxAttempts = 0 }, "max_attempts"},
		{"negative backoff", func(c *Config) { c.Transcribe.RetryBackoffMS = -1 }, "retry_backoff_ms"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateWarnsOnMissingKey(t *testing.T) {
	cfg := Default()
	cfg.UserID = "u"
	cfg.DataDir = "/tmp/minute"
	cfg.Transcribe.APIKey = ""

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "api_key")
}
