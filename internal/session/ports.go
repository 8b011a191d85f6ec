package session

import (
	"context"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/meeting"
	"github.com/pcranshaw/minute/internal/transcribe"
)

// Recorder abstracts the capture operations the controller drives.
// *audio.Recorder satisfies it.
type Recorder interface {
	Start(context.Context) error
	Stop(context.Context) (audio.Artifact, error)
	Discard(context.Context)
	Device() audio.Device
	BytesCaptured() int64
}

// Transcriber performs one remote transcription request per call and never
// retries internally; retry decisions belong to the controller.
type Transcriber interface {
	Transcribe(context.Context, audio.Artifact) (transcribe.Result, error)
}

// Artifacts persists and retrieves audio and minutes under deterministic
// locators. *blob.Adapter satisfies it.
type Artifacts interface {
	StoreAudio(ctx context.Context, ownerID, meetingID string, artifact audio.Artifact) (string, error)
	StoreMinutes(ctx context.Context, ownerID, meetingID string, payload []byte) (string, error)
	FetchAudio(ctx context.Context, ownerID, meetingID string) (audio.Artifact, error)
}

// Records is the durable meeting-record surface the controller mutates.
// *meeting.Store satisfies it.
type Records interface {
	Create(ctx context.Context, ownerID, title string) (meeting.Meeting, error)
	Get(ctx context.Context, id string) (meeting.Meeting, error)
	Update(ctx context.Context, id string, patch meeting.Patch) (meeting.Meeting, error)
}
