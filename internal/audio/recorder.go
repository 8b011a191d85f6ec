package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pcranshaw/minute/internal/fault"
)

// SessionState tracks one capture session owned by a Recorder.
type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionRecording SessionState = "recording"
	SessionStopped   SessionState = "stopped"
	SessionError     SessionState = "error"
)

// deviceHeld enforces exclusive device ownership across the process: a
// second Start before the prior session released the device must fail
// instead of silently sharing the stream.
var deviceHeld atomic.Bool

// capturer is the capture surface the Recorder drives; *Capture satisfies
// it, tests substitute fakes.
type capturer interface {
	Stop() error
	RawPCM() []byte
	BytesCaptured() int64
	Device() Device
}

// openFunc resolves a device and opens a live capture for it.
type openFunc func(ctx context.Context, input, fallback string, sampleRate int) (capturer, Selection, error)

// openPulseCapture is the production opener backed by the Pulse server.
func openPulseCapture(ctx context.Context, input, fallback string, sampleRate int) (capturer, Selection, error) {
	selection, err := SelectDevice(ctx, input, fallback)
	if err != nil {
		return nil, Selection{}, err
	}
	capture, err := StartCapture(ctx, selection.Device, sampleRate)
	if err != nil {
		return nil, Selection{}, err
	}
	return capture, selection, nil
}

// Recorder owns the device handle for one capture session at a time and
// guarantees release on stop, discard, or error.
type Recorder struct {
	input      string
	fallback   string
	sampleRate int
	logger     *slog.Logger
	open       openFunc

	mu       sync.Mutex
	state    SessionState
	capture  capturer
	device   Device
	held     bool
	artifact *Artifact
}

// NewRecorder builds a recorder for the configured input preferences.
func NewRecorder(input, fallback string, sampleRate int, logger *slog.Logger) *Recorder {
	return &Recorder{
		input:      input,
		fallback:   fallback,
		sampleRate: sampleRate,
		logger:     logger,
		open:       openPulseCapture,
		state:      SessionIdle,
	}
}

// State returns the current capture session state.
func (r *Recorder) State() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Device returns the device of the current or last session.
func (r *Recorder) Device() Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}

// Start requests exclusive access to the audio input device and begins
// accumulating chunks in arrival order. Fails with a DeviceUnavailable
// fault when access is denied, no device exists, or another session holds
// the device.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == SessionRecording {
		r.mu.Unlock()
		return fault.NewDeviceUnavailable("capture session already recording")
	}
	r.mu.Unlock()

	if !deviceHeld.CompareAndSwap(false, true) {
		return fault.NewDeviceUnavailable("audio input device is held by another capture session")
	}

	capture, selection, err := r.open(ctx, r.input, r.fallback, r.sampleRate)
	if err != nil {
		deviceHeld.Store(false)
		r.mu.Lock()
		r.state = SessionError
		r.mu.Unlock()
		return fault.NewDeviceUnavailable(err.Error())
	}
	if selection.Warning != "" && r.logger != nil {
		r.logger.Warn(selection.Warning)
	}

	r.mu.Lock()
	r.capture = capture
	r.device = selection.Device
	r.held = true
	r.artifact = nil
	r.state = SessionRecording
	r.mu.Unlock()
	return nil
}

// Stop is valid only while recording: it releases the device, freezes the
// chunk sequence, and finalizes exactly one immutable artifact. Out of
// state it is a no-op reporting an InvalidState fault.
func (r *Recorder) Stop(_ context.Context) (Artifact, error) {
	r.mu.Lock()
	if r.state != SessionRecording || r.capture == nil {
		state := r.state
		r.mu.Unlock()
		return Artifact{}, fault.NewInvalidState("stop", string(state))
	}
	capture := r.capture
	r.mu.Unlock()

	_ = capture.Stop()
	pcm := capture.RawPCM()

	artifact := Artifact{
		Data:        EncodeWAV(pcm, r.sampleRate, 1),
		ContentType: ContentTypeWAV,
		SampleRate:  r.sampleRate,
		Channels:    1,
	}

	r.mu.Lock()
	r.capture = nil
	r.artifact = &artifact
	r.state = SessionStopped
	r.releaseLocked()
	r.mu.Unlock()

	return artifact, nil
}

// Discard clears any held artifact and session state and releases device
// resources if still held. Idempotent.
func (r *Recorder) Discard(_ context.Context) {
	r.mu.Lock()
	capture := r.capture
	r.capture = nil
	r.artifact = nil
	r.state = SessionIdle
	r.releaseLocked()
	r.mu.Unlock()

	if capture != nil {
		_ = capture.Stop()
	}
}

// BytesCaptured reports bytes accepted in the active session, 0 otherwise.
func (r *Recorder) BytesCaptured() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture == nil {
		return 0
	}
	return r.capture.BytesCaptured()
}

// releaseLocked drops the process-wide device hold. Caller holds r.mu.
func (r *Recorder) releaseLocked() {
	if r.held {
		r.held = false
		deviceHeld.Store(false)
	}
}
