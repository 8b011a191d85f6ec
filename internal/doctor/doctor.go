// Package doctor runs runtime readiness diagnostics for config, storage,
// audio, and the transcription service.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/config"
	"github.com/pcranshaw/minute/internal/meeting"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkUser(cfg.Config))
	checks = append(checks, checkDataDir(cfg.Config))
	checks = append(checks, checkRecordStore(cfg.Config))
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkTranscribeReady(cfg.Config))

	return Report{Checks: checks}
}

// checkUser validates owner identity configuration.
func checkUser(cfg config.Config) Check {
	if strings.TrimSpace(cfg.UserID) == "" {
		return Check{Name: "user", Pass: false, Message: "user_id is empty; set it in config or MINUTE_USER_ID"}
	}
	return Check{Name: "user", Pass: true, Message: fmt.Sprintf("acting as %q", cfg.UserID)}
}

// checkDataDir validates the data directory exists and is writable.
func checkDataDir(cfg config.Config) Check {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return Check{Name: "data.dir", Pass: false, Message: err.Error()}
	}

	probe := filepath.Join(cfg.DataDir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return Check{Name: "data.dir", Pass: false, Message: fmt.Sprintf("not writable: %v", err)}
	}
	_ = os.Remove(probe)

	return Check{Name: "data.dir", Pass: true, Message: fmt.Sprintf("writable at %q", cfg.DataDir)}
}

// checkRecordStore opens the meeting database to surface schema/locking issues.
func checkRecordStore(cfg config.Config) Check {
	db, err := meeting.OpenDB(cfg.DataDir)
	if err != nil {
		return Check{Name: "record.store", Pass: false, Message: err.Error()}
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return Check{Name: "record.store", Pass: false, Message: err.Error()}
	}
	return Check{Name: "record.store", Pass: true, Message: "meetings database opens and migrates"}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkTranscribeReady probes the transcription service health endpoint.
func checkTranscribeReady(cfg config.Config) Check {
	base := strings.TrimSpace(cfg.Transcribe.Endpoint)
	if base == "" {
		return Check{Name: "transcribe.ready", Pass: false, Message: "transcribe endpoint is empty"}
	}

	url := strings.TrimRight(base, "/") + cfg.Transcribe.HealthPath
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return Check{Name: "transcribe.ready", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "transcribe.ready", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "transcribe.ready", Pass: true, Message: fmt.Sprintf("healthy at %s", url)}
}
