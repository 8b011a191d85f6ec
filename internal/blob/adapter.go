package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/fault"
)

// Adapter persists audio artifacts and minutes payloads to a Store under
// deterministic locators derived from (ownerID, meetingID).
type Adapter struct {
	store Store
}

// NewAdapter wraps a Store with the pipeline's artifact contract.
func NewAdapter(store Store) *Adapter {
	return &Adapter{store: store}
}

// StoreAudio persists the finalized artifact and returns its locator.
// Re-storing under the same keys overwrites, so callers store at most once
// per successful capture.
func (a *Adapter) StoreAudio(ctx context.Context, ownerID, meetingID string, artifact audio.Artifact) (string, error) {
	if len(artifact.Data) == 0 {
		return "", fault.NewStore(errors.New("audio artifact is empty"))
	}
	locator, err := a.store.Put(ctx, AudioPath(ownerID, meetingID), artifact.Data)
	if err != nil {
		return "", fault.NewStore(fmt.Errorf("store audio: %w", err))
	}
	return locator, nil
}

// StoreMinutes persists the minutes payload and returns its locator.
func (a *Adapter) StoreMinutes(ctx context.Context, ownerID, meetingID string, payload []byte) (string, error) {
	locator, err := a.store.Put(ctx, MinutesPath(ownerID, meetingID), payload)
	if err != nil {
		return "", fault.NewStore(fmt.Errorf("store minutes: %w", err))
	}
	return locator, nil
}

// FetchMinutes loads a minutes payload by its locator.
func (a *Adapter) FetchMinutes(ctx context.Context, locator string) ([]byte, error) {
	payload, err := a.store.Get(ctx, locator)
	if err != nil {
		return nil, fault.NewStore(fmt.Errorf("fetch minutes: %w", err))
	}
	return payload, nil
}

// FetchAudio loads the stored audio bytes for a meeting, used when a retry
// re-submits already-captured audio without re-recording.
func (a *Adapter) FetchAudio(ctx context.Context, ownerID, meetingID string) (audio.Artifact, error) {
	data, err := a.store.Get(ctx, AudioPath(ownerID, meetingID))
	if err != nil {
		return audio.Artifact{}, fault.NewStore(fmt.Errorf("fetch audio: %w", err))
	}
	return audio.Artifact{Data: data, ContentType: audio.ContentTypeWAV}, nil
}

// AudioLocator returns the audio locator without re-uploading anything.
func (a *Adapter) AudioLocator(ctx context.Context, ownerID, meetingID string) (string, error) {
	path := AudioPath(ownerID, meetingID)
	exists, err := a.store.Exists(ctx, path)
	if err != nil {
		return "", fault.NewStore(fmt.Errorf("locate audio: %w", err))
	}
	if !exists {
		return "", fault.NewStore(fmt.Errorf("locate audio %q: %w", path, ErrNotFound))
	}
	return path, nil
}

// DeleteArtifacts removes both objects best-effort. A partial failure (one
// deleted, one not) is reported, never swallowed.
func (a *Adapter) DeleteArtifacts(ctx context.Context, ownerID, meetingID string) error {
	var audioErr, minutesErr error
	if err := a.store.Delete(ctx, AudioPath(ownerID, meetingID)); err != nil {
		audioErr = fmt.Errorf("delete audio: %w", err)
	}
	if err := a.store.Delete(ctx, MinutesPath(ownerID, meetingID)); err != nil {
		minutesErr = fmt.Errorf("delete minutes: %w", err)
	}
	if audioErr != nil || minutesErr != nil {
		return fault.NewStore(errors.Join(audioErr, minutesErr))
	}
	return nil
}
