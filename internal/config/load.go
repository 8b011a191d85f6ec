package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Env var overrides applied after file parsing. The API key is expected to
// come from the environment in most deployments.
const (
	EnvAPIKey = "MINUTE_TRANSCRIBE_API_KEY"
	EnvUserID = "MINUTE_USER_ID"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	cfg := Default()
	exists := true

	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		exists = false
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
	}

	applyEnv(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("config %q: %w", resolvedPath, err)
	}
	if !exists {
		warnings = append([]Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		}}, warnings...)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   exists,
	}, nil
}

// applyEnv overrides file values with process environment settings.
func applyEnv(cfg *Config) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		cfg.Transcribe.APIKey = key
	}
	if user := strings.TrimSpace(os.Getenv(EnvUserID)); user != "" {
		cfg.UserID = user
	}
}
