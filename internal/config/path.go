package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath picks the explicit path when given, otherwise the XDG config
// location ($XDG_CONFIG_HOME/minute/config.yaml or ~/.config/minute/config.yaml).
func ResolvePath(explicitPath string) (string, error) {
	if trimmed := strings.TrimSpace(explicitPath); trimmed != "" {
		return trimmed, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "minute", "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for config: %w", err)
	}
	return filepath.Join(home, ".config", "minute", "config.yaml"), nil
}
