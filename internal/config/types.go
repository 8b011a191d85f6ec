// Package config resolves, parses, validates, and defaults minute configuration.
package config

// Config is the fully materialized runtime configuration used by minute.
type Config struct {
	UserID     string           `yaml:"user_id"`
	DataDir    string           `yaml:"data_dir"`
	Audio      AudioConfig      `yaml:"audio"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input      string `yaml:"input"`
	Fallback   string `yaml:"fallback"`
	SampleRate int    `yaml:"sample_rate"`
}

// TranscribeConfig controls the remote transcription request.
type TranscribeConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	HealthPath     string `yaml:"health_path"`
	Language       string `yaml:"language"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryBackoffMS int    `yaml:"retry_backoff_ms"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
