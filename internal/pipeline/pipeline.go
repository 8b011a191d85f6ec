// Package pipeline binds concrete capture, storage, and transcription
// components into the session controller's ports.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/blob"
	"github.com/pcranshaw/minute/internal/config"
	"github.com/pcranshaw/minute/internal/meeting"
	"github.com/pcranshaw/minute/internal/session"
	"github.com/pcranshaw/minute/internal/transcribe"
)

// Pipeline holds the wired components for one process lifetime.
type Pipeline struct {
	Recorder    *audio.Recorder
	Transcriber *transcribe.Client
	Artifacts   *blob.Adapter
	Records     *meeting.Store
	Retry       session.RetryPolicy

	closer func() error
}

// Build assembles the pipeline from runtime config. The record database
// and blob root live under cfg.DataDir.
func Build(cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	db, err := meeting.OpenDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	store, err := blob.NewFS(cfg.DataDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	return &Pipeline{
		Recorder:    audio.NewRecorder(cfg.Audio.Input, cfg.Audio.Fallback, cfg.Audio.SampleRate, logger),
		Transcriber: transcribe.NewClient(cfg.Transcribe, logger),
		Artifacts:   blob.NewAdapter(store),
		Records:     meeting.NewStore(db),
		Retry: session.RetryPolicy{
			MaxAttempts: cfg.Transcribe.MaxAttempts,
			Backoff:     time.Duration(cfg.Transcribe.RetryBackoffMS) * time.Millisecond,
		},
		closer: db.Close,
	}, nil
}

// Controller builds a fresh session controller over the wired components.
func (p *Pipeline) Controller(logger *slog.Logger) *session.Controller {
	return session.NewController(logger, p.Recorder, p.Transcriber, p.Artifacts, p.Records, p.Retry)
}

// Close releases the pipeline's persistent resources.
func (p *Pipeline) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
