package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/fault"
	"github.com/pcranshaw/minute/internal/fsm"
	"github.com/pcranshaw/minute/internal/ipc"
	"github.com/pcranshaw/minute/internal/meeting"
	"github.com/pcranshaw/minute/internal/transcribe"
)

type fakeRecorder struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	artifact  audio.Artifact
	starts    int
	stops     int
	discards  int
	recording bool
}

func (f *fakeRecorder) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.recording = true
	return nil
}

func (f *fakeRecorder) Stop(context.Context) (audio.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return audio.Artifact{}, f.stopErr
	}
	f.recording = false
	return f.artifact, nil
}

func (f *fakeRecorder) Discard(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discards++
	f.recording = false
}

func (f *fakeRecorder) Device() audio.Device { return audio.Device{ID: "fake-mic"} }

func (f *fakeRecorder) BytesCaptured() int64 { return 640 }

type fakeTranscriber struct {
	mu      sync.Mutex
	results []error
	text    string
	calls   int
}

func (f *fakeTranscriber) Transcribe(context.Context, audio.Artifact) (transcribe.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.results) {
		err = f.results[f.calls]
	}
	f.calls++
	if err != nil {
		return transcribe.Result{}, err
	}
	return transcribe.Result{Text: f.text, ProducedAt: time.Now()}, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeArtifacts struct {
	mu           sync.Mutex
	audio        map[string][]byte
	minutes      map[string][]byte
	storeAudioOK bool
	audioErr     error
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{
		audio:        make(map[string][]byte),
		minutes:      make(map[string][]byte),
		storeAudioOK: true,
	}
}

func (f *fakeArtifacts) StoreAudio(_ context.Context, ownerID, meetingID string, artifact audio.Artifact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audioErr != nil {
		return "", f.audioErr
	}
	locator := "recordings/" + ownerID + "/" + meetingID + "/audio"
	f.audio[locator] = artifact.Data
	return locator, nil
}

func (f *fakeArtifacts) StoreMinutes(_ context.Context, ownerID, meetingID string, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	locator := "minutes/" + ownerID + "/" + meetingID + "/minutes.json"
	f.minutes[locator] = payload
	return locator, nil
}

func (f *fakeArtifacts) FetchAudio(_ context.Context, ownerID, meetingID string) (audio.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	locator := "recordings/" + ownerID + "/" + meetingID + "/audio"
	data, ok := f.audio[locator]
	if !ok {
		return audio.Artifact{}, fault.NewStore(errors.New("audio not stored"))
	}
	return audio.Artifact{Data: data, ContentType: audio.ContentTypeWAV}, nil
}

type memRecords struct {
	mu        sync.Mutex
	seq       int
	meetings  map[string]meeting.Meeting
	updates   []meeting.Patch
	updateErr func(meeting.Patch) error
}

func newMemRecords() *memRecords {
	return &memRecords{meetings: make(map[string]meeting.Meeting)}
}

func (m *memRecords) Create(_ context.Context, ownerID, title string) (meeting.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec := meeting.Meeting{
		ID:        string(rune('a'+m.seq-1)) + "-meeting",
		OwnerID:   ownerID,
		Title:     title,
		Status:    fsm.StateDraft,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.meetings[rec.ID] = rec
	return rec, nil
}

func (m *memRecords) Get(_ context.Context, id string) (meeting.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.meetings[id]
	if !ok {
		return meeting.Meeting{}, meeting.ErrNotFound
	}
	return rec, nil
}

func (m *memRecords) Update(_ context.Context, id string, patch meeting.Patch) (meeting.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.meetings[id]
	if !ok {
		return meeting.Meeting{}, meeting.ErrNotFound
	}
	if m.updateErr != nil {
		if err := m.updateErr(patch); err != nil {
			return meeting.Meeting{}, err
		}
	}
	if patch.Title != nil {
		rec.Title = *patch.Title
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.FailureReason != nil {
		rec.FailureReason = *patch.FailureReason
	}
	if patch.TranscriptText != nil {
		rec.TranscriptText = *patch.TranscriptText
	}
	if patch.AudioLocator != nil {
		if rec.AudioLocator != "" && rec.AudioLocator != *patch.AudioLocator {
			return meeting.Meeting{}, fault.NewStore(errors.New("audio locator already set"))
		}
		rec.AudioLocator = *patch.AudioLocator
	}
	if patch.MinutesLocator != nil {
		rec.MinutesLocator = *patch.MinutesLocator
	}
	rec.UpdatedAt = time.Now()
	m.meetings[id] = rec
	m.updates = append(m.updates, patch)
	return rec, nil
}

func (m *memRecords) get(t *testing.T, id string) meeting.Meeting {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.meetings[id]
	require.True(t, ok, "meeting %q not found", id)
	return rec
}

func (m *memRecords) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.meetings)
}

func newTestController(recorder *fakeRecorder, transcriber *fakeTranscriber, artifacts *fakeArtifacts, records *memRecords) *Controller {
	ctrl := NewController(nil, recorder, transcriber, artifacts, records, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond})
	ctrl.sleep = func(context.Context, time.Duration) error { return nil }
	return ctrl
}

func waitForState(t *testing.T, ctrl *Controller, want fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("controller never reached state %s (now %s)", want, ctrl.State())
}

func runToRecording(t *testing.T, ctrl *Controller, owner, title string) chan Result {
	t.Helper()
	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(context.Background(), owner, title)
	}()
	waitForState(t, ctrl, fsm.StateRecording)
	return resultCh
}

func TestRunHappyPath(t *testing.T) {
	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav"), ContentType: audio.ContentTypeWAV}}
	transcriber := &fakeTranscriber{text: "We agreed on the launch date."}
	artifacts := newFakeArtifacts()
	records := newMemRecords()
	ctrl := newTestController(recorder, transcriber, artifacts, records)

	resultCh := runToRecording(t, ctrl, "user-1", "Launch sync")
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, resp.OK)

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateReady, result.State)
	require.Equal(t, "We agreed on the launch date.", result.Transcript)
	require.Equal(t, "fake-mic", result.AudioDevice)

	rec := records.get(t, result.Meeting.ID)
	require.Equal(t, fsm.StateReady, rec.Status)
	require.Equal(t, "recordings/user-1/"+rec.ID+"/audio", rec.AudioLocator)
	require.Equal(t, "minutes/user-1/"+rec.ID+"/minutes.json", rec.MinutesLocator)
	require.Equal(t, "We agreed on the launch date.", rec.TranscriptText)
	require.Empty(t, rec.FailureReason)
	require.NotEmpty(t, artifacts.audio[rec.AudioLocator])
	require.NotEmpty(t, artifacts.minutes[rec.MinutesLocator])
}

func TestRunDeviceDeniedCreatesNoRecord(t *testing.T) {
	recorder := &fakeRecorder{startErr: fault.NewDeviceUnavailable("device busy")}
	records := newMemRecords()
	ctrl := newTestController(recorder, &fakeTranscriber{}, newFakeArtifacts(), records)

	result := ctrl.Run(context.Background(), "user-1", "No mic")
	require.Error(t, result.Err)
	require.Equal(t, fault.KindDeviceUnavailable, fault.KindOf(result.Err))
	require.Zero(t, records.count(), "denied start must not create or mutate records")
}

func TestRunCancelLeavesDraft(t *testing.T) {
	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav")}}
	records := newMemRecords()
	artifacts := newFakeArtifacts()
	ctrl := newTestController(recorder, &fakeTranscriber{}, artifacts, records)

	resultCh := runToRecording(t, ctrl, "user-1", "Abandoned")
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "cancel"})
	require.True(t, resp.OK)

	result := <-resultCh
	require.True(t, result.Cancelled)
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateDraft, result.State)

	rec := records.get(t, result.Meeting.ID)
	require.Equal(t, fsm.StateDraft, rec.Status)
	require.Empty(t, rec.AudioLocator)
	require.Equal(t, 1, recorder.discards)
	require.Empty(t, artifacts.audio, "cancel must not persist audio")
}

func TestRunTransientFailureRetriesThenSucceeds(t *testing.T) {
	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav")}}
	transcriber := &fakeTranscriber{
		results: []error{fault.NewTransient(503, "unavailable"), fault.NewTransient(0, "timeout")},
		text:    "Third attempt sticks.",
	}
	records := newMemRecords()
	ctrl := newTestController(recorder, transcriber, newFakeArtifacts(), records)

	resultCh := runToRecording(t, ctrl, "user-1", "Flaky network")
	ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateReady, result.State)
	require.Equal(t, 3, transcriber.callCount())
}

func TestRunTransientFailureExhaustsRetries(t *testing.T) {
	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav")}}
	transcriber := &fakeTranscriber{
		results: []error{
			fault.NewTransient(0, "timeout"),
			fault.NewTransient(0, "timeout"),
			fault.NewTransient(0, "timeout"),
		},
	}
	records := newMemRecords()
	ctrl := newTestController(recorder, transcriber, newFakeArtifacts(), records)

	resultCh := runToRecording(t, ctrl, "user-1", "Service down")
	ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})

	result := <-resultCh
	require.Error(t, result.Err)
	require.Equal(t, fsm.StateFailed, result.State)
	require.Equal(t, 3, transcriber.callCount())

	rec := records.get(t, result.Meeting.ID)
	require.Equal(t, fsm.StateFailed, rec.Status)
	require.Contains(t, rec.FailureReason, "timeout")
	require.NotEmpty(t, rec.AudioLocator, "captured audio must survive transcription failure")
}

func TestRunUpdateFailureKeepsMeetingInResult(t *testing.T) {
	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav")}}
	records := newMemRecords()
	records.updateErr = func(patch meeting.Patch) error {
		if patch.AudioLocator != nil {
			return fault.NewStore(errors.New("disk full"))
		}
		return nil
	}
	ctrl := newTestController(recorder, &fakeTranscriber{}, newFakeArtifacts(), records)

	resultCh := runToRecording(t, ctrl, "user-1", "Full disk")
	ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})

	result := <-resultCh
	require.Error(t, result.Err)
	require.Equal(t, fsm.StateFailed, result.State)
	require.NotEmpty(t, result.Meeting.ID, "meeting id must survive a failed status update")

	rec := records.get(t, result.Meeting.ID)
	require.Equal(t, fsm.StateFailed, rec.Status)
	require.Contains(t, rec.FailureReason, "disk full")
}

func TestRunPermanentFailureDoesNotRetry(t *testing.T) {
	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav")}}
	transcriber := &fakeTranscriber{
		results: []error{fault.NewPermanent(415, "unsupported audio format")},
	}
	records := newMemRecords()
	ctrl := newTestController(recorder, transcriber, newFakeArtifacts(), records)

	resultCh := runToRecording(t, ctrl, "user-1", "Bad format")
	ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})

	result := <-resultCh
	require.Error(t, result.Err)
	require.Equal(t, fsm.StateFailed, result.State)
	require.Equal(t, 1, transcriber.callCount(), "permanent faults are never retried")
}

func TestRetryResubmitsStoredAudio(t *testing.T) {
	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav")}}
	failing := &fakeTranscriber{
		results: []error{
			fault.NewTransient(0, "timeout"),
			fault.NewTransient(0, "timeout"),
			fault.NewTransient(0, "timeout"),
		},
	}
	records := newMemRecords()
	artifacts := newFakeArtifacts()
	ctrl := newTestController(recorder, failing, artifacts, records)

	resultCh := runToRecording(t, ctrl, "user-1", "Retry me")
	ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	failed := <-resultCh
	require.Equal(t, fsm.StateFailed, failed.State)

	recovered := &fakeTranscriber{text: "Recovered transcript."}
	retryCtrl := newTestController(&fakeRecorder{}, recovered, artifacts, records)
	result := retryCtrl.Retry(context.Background(), failed.Meeting.ID)
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateReady, result.State)
	require.Equal(t, "Recovered transcript.", result.Transcript)

	rec := records.get(t, failed.Meeting.ID)
	require.Equal(t, fsm.StateReady, rec.Status)
	require.Empty(t, rec.FailureReason)
	require.Equal(t, 1, recovered.callCount(), "stored audio is re-submitted exactly once")
}

func TestRetryWithoutAudioRestartsRecording(t *testing.T) {
	records := newMemRecords()
	rec, err := records.Create(context.Background(), "user-1", "Never captured")
	require.NoError(t, err)
	_, err = records.Update(context.Background(), rec.ID, meeting.Patch{
		Status:        statusPtr(fsm.StateFailed),
		FailureReason: meeting.StringPtr("device busy"),
	})
	require.NoError(t, err)

	recorder := &fakeRecorder{artifact: audio.Artifact{Data: []byte("wav")}}
	transcriber := &fakeTranscriber{text: "Second take."}
	ctrl := newTestController(recorder, transcriber, newFakeArtifacts(), records)

	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Retry(context.Background(), rec.ID)
	}()
	waitForState(t, ctrl, fsm.StateRecording)
	ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateReady, result.State)
	require.Equal(t, 1, recorder.starts)
}

func TestRetryRejectsNonFailedMeeting(t *testing.T) {
	records := newMemRecords()
	rec, err := records.Create(context.Background(), "user-1", "Still fine")
	require.NoError(t, err)

	ctrl := newTestController(&fakeRecorder{}, &fakeTranscriber{}, newFakeArtifacts(), records)
	result := ctrl.Retry(context.Background(), rec.ID)
	require.ErrorIs(t, result.Err, ErrNotRetryable)
}

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	ctrl := newTestController(&fakeRecorder{}, &fakeTranscriber{}, newFakeArtifacts(), newMemRecords())

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateDraft), status.State)

	unknown := ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestRequestStopAndCancelStateGuards(t *testing.T) {
	ctrl := newTestController(&fakeRecorder{}, &fakeTranscriber{}, newFakeArtifacts(), newMemRecords())

	stopFromDraft := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, stopFromDraft.OK)
	require.Contains(t, stopFromDraft.Error, "cannot stop from state draft")

	cancelFromDraft := ctrl.Handle(context.Background(), ipc.Request{Command: "cancel"})
	require.False(t, cancelFromDraft.OK)
	require.Contains(t, cancelFromDraft.Error, "cannot cancel from state draft")

	ctrl.mu.Lock()
	ctrl.state = fsm.StateTranscribing
	ctrl.mu.Unlock()

	stopFromTranscribing := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, stopFromTranscribing.OK)
	require.Contains(t, stopFromTranscribing.Error, "already transcribing")

	cancelFromTranscribing := ctrl.Handle(context.Background(), ipc.Request{Command: "cancel"})
	require.False(t, cancelFromTranscribing.OK)
	require.Contains(t, cancelFromTranscribing.Error, "cannot cancel while transcribing")
}

func TestRequestStopAndCancelAlreadyRequested(t *testing.T) {
	ctrl := newTestController(&fakeRecorder{}, &fakeTranscriber{}, newFakeArtifacts(), newMemRecords())

	ctrl.mu.Lock()
	ctrl.state = fsm.StateRecording
	ctrl.mu.Unlock()

	ctrl.actions <- actionStop
	stop := ctrl.requestStop()
	require.True(t, stop.OK)
	require.Equal(t, "stop already requested", stop.Message)

	<-ctrl.actions
	ctrl.actions <- actionCancel
	cancel := ctrl.requestCancel()
	require.True(t, cancel.OK)
	require.Equal(t, "cancel already requested", cancel.Message)
}

func TestRunContextCancelledDiscards(t *testing.T) {
	recorder := &fakeRecorder{}
	records := newMemRecords()
	ctrl := newTestController(recorder, &fakeTranscriber{}, newFakeArtifacts(), records)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() {
		resultCh <- ctrl.Run(ctx, "user-1", "Interrupted")
	}()
	waitForState(t, ctrl, fsm.StateRecording)
	cancel()

	result := <-resultCh
	require.ErrorIs(t, result.Err, context.Canceled)
	require.Equal(t, 1, recorder.discards)

	rec := records.get(t, result.Meeting.ID)
	require.Equal(t, fsm.StateDraft, rec.Status)
}
