package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		UserID:  strings.TrimSpace(os.Getenv("USER")),
		DataDir: defaultDataDir(),
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
		},
		Transcribe: TranscribeConfig{
			Endpoint:       "http://127.0.0.1:9090",
			HealthPath:     "/v1/health",
			Language:       "en-US",
			TimeoutSeconds: 60,
			MaxAttempts:    3,
			RetryBackoffMS: 2000,
		},
	}
}

// defaultDataDir selects XDG_DATA_HOME when available, otherwise ~/.local/share.
func defaultDataDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "minute")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "minute-data"
	}
	return filepath.Join(home, ".local", "share", "minute")
}
