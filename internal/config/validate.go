package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("user_id must not be empty (set %s or user_id in the config file)", EnvUserID)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("data_dir must not be empty")
	}
	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if strings.TrimSpace(cfg.Transcribe.Endpoint) == "" {
		return nil, fmt.Errorf("transcribe.endpoint must not be empty")
	}
	if !strings.HasPrefix(cfg.Transcribe.Endpoint, "http://") && !strings.HasPrefix(cfg.Transcribe.Endpoint, "https://") {
		return nil, fmt.Errorf("transcribe.endpoint must be an http(s) URL")
	}
	if strings.TrimSpace(cfg.Transcribe.HealthPath) != "" && !strings.HasPrefix(cfg.Transcribe.HealthPath, "/") {
		return nil, fmt.Errorf("transcribe.health_path must start with '/'")
	}
	if strings.TrimSpace(cfg.Transcribe.Language) == "" {
		return nil, fmt.Errorf("transcribe.language must not be empty")
	}
	if cfg.Transcribe.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("transcribe.timeout_seconds must be > 0")
	}
	if cfg.Transcribe.MaxAttempts <= 0 {
		return nil, fmt.Errorf("transcribe.max_attempts must be > 0")
	}
	if cfg.Transcribe.RetryBackoffMS < 0 {
		return nil, fmt.Errorf("transcribe.retry_backoff_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.Transcribe.APIKey) == "" {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("transcribe.api_key is empty; set %s if the service requires authentication", EnvAPIKey),
		})
	}

	return warnings, nil
}
