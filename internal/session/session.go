// Package session coordinates the meeting lifecycle: capture, persistence,
// transcription, and minutes generation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/fault"
	"github.com/pcranshaw/minute/internal/fsm"
	"github.com/pcranshaw/minute/internal/ipc"
	"github.com/pcranshaw/minute/internal/meeting"
	"github.com/pcranshaw/minute/internal/minutes"
	"github.com/pcranshaw/minute/internal/transcribe"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// ErrNotRetryable indicates a retry was requested for a meeting that is not
// in the failed status.
var ErrNotRetryable = errors.New("meeting is not in a failed status")

// RetryPolicy bounds transient-failure retries around the transcriber.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy keeps total stall under a few seconds while absorbing
// short service blips.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	Meeting       meeting.Meeting
	State         fsm.State
	Transcript    string
	Cancelled     bool
	Err           error
	AudioDevice   string
	BytesCaptured int64
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Controller orchestrates stage transitions and owns every failure
// decision: stage components report typed faults, the controller alone
// turns them into record status changes or retries.
type Controller struct {
	logger      *slog.Logger
	recorder    Recorder
	transcriber Transcriber
	artifacts   Artifacts
	records     Records
	retry       RetryPolicy
	sleep       func(context.Context, time.Duration) error

	mu        sync.RWMutex
	state     fsm.State
	meetingID string

	actions chan action
}

// NewController constructs a session controller.
func NewController(
	logger *slog.Logger,
	recorder Recorder,
	transcriber Transcriber,
	artifacts Artifacts,
	records Records,
	retry RetryPolicy,
) *Controller {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if retry.Backoff < 0 {
		retry.Backoff = 0
	}

	return &Controller{
		logger:      logger,
		recorder:    recorder,
		transcriber: transcriber,
		artifacts:   artifacts,
		records:     records,
		retry:       retry,
		sleep:       sleepCtx,
		state:       fsm.StateDraft,
		actions:     make(chan action, 1),
	}
}

// State returns the current lifecycle state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// MeetingID returns the record id of the active session, if any.
func (c *Controller) MeetingID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meetingID
}

// transition applies one state machine event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) setMeetingID(id string) {
	c.mu.Lock()
	c.meetingID = id
	c.mu.Unlock()
}

// Run executes one meeting lifecycle from capture start to ready, cancel,
// or failure. The record is created only after the device is acquired, so
// a denied device leaves nothing persisted.
func (c *Controller) Run(ctx context.Context, ownerID, title string) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.recorder.Start(ctx); err != nil {
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	rec, err := c.records.Create(ctx, ownerID, title)
	if err != nil {
		c.recorder.Discard(ctx)
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}
	c.setMeetingID(rec.ID)
	result.Meeting = rec

	updated, err := c.persistTransition(ctx, rec.ID, fsm.EventStart)
	if err != nil {
		c.recorder.Discard(ctx)
		return c.finish(result, rec, err)
	}
	rec = updated
	result.Meeting = rec

	c.logInfo("recording started", "meeting_id", rec.ID, "device", c.recorder.Device().ID)

	return c.waitAndFinish(ctx, result, rec)
}

// Retry re-enters the pipeline for a failed meeting. With stored audio the
// record moves back to transcribing and the same artifact is re-submitted;
// without audio the record re-enters recording for a fresh capture.
func (c *Controller) Retry(ctx context.Context, meetingID string) Result {
	result := Result{StartedAt: time.Now()}

	rec, err := c.records.Get(ctx, meetingID)
	if err != nil {
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}
	if rec.Status != fsm.StateFailed {
		result.Meeting = rec
		result.State = rec.Status
		result.Err = fmt.Errorf("retry meeting %q: %w", meetingID, ErrNotRetryable)
		result.FinishedAt = time.Now()
		return result
	}

	c.mu.Lock()
	c.state = fsm.StateFailed
	c.meetingID = rec.ID
	c.mu.Unlock()

	if rec.AudioLocator != "" {
		return c.retryTranscription(ctx, result, rec)
	}
	return c.retryRecording(ctx, result, rec)
}

// retryTranscription re-submits the stored artifact without re-recording.
func (c *Controller) retryTranscription(ctx context.Context, result Result, rec meeting.Meeting) Result {
	updated, err := c.persistTransition(ctx, rec.ID, fsm.EventRetryTranscribe)
	if err != nil {
		return c.finish(result, rec, err)
	}
	rec = updated
	result.Meeting = rec

	artifact, err := c.artifacts.FetchAudio(ctx, rec.OwnerID, rec.ID)
	if err != nil {
		return c.failAndFinish(ctx, result, rec, err)
	}

	return c.transcribeAndFinish(ctx, result, rec, artifact)
}

// retryRecording restarts capture for a meeting that failed before any
// audio was persisted.
func (c *Controller) retryRecording(ctx context.Context, result Result, rec meeting.Meeting) Result {
	if err := c.recorder.Start(ctx); err != nil {
		return c.failAndFinish(ctx, result, rec, err)
	}

	updated, err := c.persistTransition(ctx, rec.ID, fsm.EventRetryRecord)
	if err != nil {
		c.recorder.Discard(ctx)
		return c.finish(result, rec, err)
	}
	rec = updated
	result.Meeting = rec

	c.logInfo("recording restarted", "meeting_id", rec.ID, "device", c.recorder.Device().ID)

	return c.waitAndFinish(ctx, result, rec)
}

// waitAndFinish blocks on stop/cancel/context teardown while recording,
// then drives the remaining stages.
func (c *Controller) waitAndFinish(ctx context.Context, result Result, rec meeting.Meeting) Result {
	select {
	case <-ctx.Done():
		cleanup := context.Background()
		c.recorder.Discard(cleanup)
		if updated, err := c.persistTransition(cleanup, rec.ID, fsm.EventCancel); err == nil {
			rec = updated
		}
		result.Meeting = rec
		result.State = c.State()
		result.Err = ctx.Err()
		result.FinishedAt = time.Now()
		return result
	case a := <-c.actions:
		switch a {
		case actionCancel:
			c.recorder.Discard(ctx)
			updated, err := c.persistTransition(ctx, rec.ID, fsm.EventCancel)
			if err == nil {
				rec = updated
			}
			result.Meeting = rec
			result.State = c.State()
			result.Cancelled = true
			result.Err = err
			result.FinishedAt = time.Now()
			return result
		case actionStop:
			result.BytesCaptured = c.recorder.BytesCaptured()
			result.AudioDevice = c.recorder.Device().ID

			artifact, err := c.recorder.Stop(ctx)
			if err != nil {
				return c.failAndFinish(ctx, result, rec, err)
			}

			locator, err := c.artifacts.StoreAudio(ctx, rec.OwnerID, rec.ID, artifact)
			if err != nil {
				return c.failAndFinish(ctx, result, rec, err)
			}

			updated, err := c.records.Update(ctx, rec.ID, meeting.Patch{
				Status:       statusPtr(fsm.StateTranscribing),
				AudioLocator: &locator,
			})
			if err != nil {
				return c.failAndFinish(ctx, result, rec, err)
			}
			rec = updated
			_ = c.transition(fsm.EventStop)
			result.Meeting = rec

			return c.transcribeAndFinish(ctx, result, rec, artifact)
		default:
			return c.failAndFinish(ctx, result, rec, fmt.Errorf("unknown action %d", a))
		}
	}
}

// transcribeAndFinish runs the transcription and minutes stages, ending in
// ready or failed.
func (c *Controller) transcribeAndFinish(ctx context.Context, result Result, rec meeting.Meeting, artifact audio.Artifact) Result {
	transcript, err := c.transcribeWithRetry(ctx, artifact)
	if err != nil {
		return c.failAndFinish(ctx, result, rec, err)
	}
	result.Transcript = transcript.Text

	doc := minutes.Build(rec.ID, rec.OwnerID, rec.Title, transcript.Text, transcript.ProducedAt)
	payload, err := doc.Encode()
	if err != nil {
		return c.failAndFinish(ctx, result, rec, err)
	}

	minutesLocator, err := c.artifacts.StoreMinutes(ctx, rec.OwnerID, rec.ID, payload)
	if err != nil {
		return c.failAndFinish(ctx, result, rec, err)
	}

	final, err := c.records.Update(ctx, rec.ID, meeting.Patch{
		Status:         statusPtr(fsm.StateReady),
		TranscriptText: &transcript.Text,
		MinutesLocator: &minutesLocator,
		FailureReason:  meeting.StringPtr(""),
	})
	if err != nil {
		return c.failAndFinish(ctx, result, rec, err)
	}
	rec = final
	_ = c.transition(fsm.EventTranscribed)

	c.logInfo("meeting ready",
		"meeting_id", rec.ID,
		"transcript_length", len(transcript.Text),
	)

	result.Meeting = rec
	result.State = c.State()
	result.FinishedAt = time.Now()
	return result
}

// transcribeWithRetry retries transient faults with linear backoff up to
// the policy bound. Permanent faults and context teardown stop immediately.
func (c *Controller) transcribeWithRetry(ctx context.Context, artifact audio.Artifact) (transcribe.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		result, err := c.transcriber.Transcribe(ctx, artifact)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !fault.Retryable(err) || ctx.Err() != nil {
			return transcribe.Result{}, err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * c.retry.Backoff
		if c.logger != nil {
			c.logger.Warn("transcription attempt failed",
				"attempt", attempt,
				"max_attempts", c.retry.MaxAttempts,
				"retry_in", delay.String(),
				"error", err.Error(),
			)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return transcribe.Result{}, err
		}
	}
	return transcribe.Result{}, lastErr
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: string(c.State()), MeetingID: c.MeetingID(), Message: "status"}
	case ipc.CommandStop:
		return c.requestStop()
	case ipc.CommandCancel:
		return c.requestCancel()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestStop enqueues a stop action when state permits it.
func (c *Controller) requestStop() ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing {
		return ipc.Response{OK: false, State: string(state), Error: "already transcribing"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

// requestCancel enqueues a cancel action when state permits it.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing {
		return ipc.Response{OK: false, State: string(state), Error: "cannot cancel while transcribing"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot cancel from state %s", state)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}

// failAndFinish records the failure on the meeting and completes the result.
// The record stays retryable: failed is never terminal.
func (c *Controller) failAndFinish(ctx context.Context, result Result, rec meeting.Meeting, cause error) Result {
	_ = c.transition(fsm.EventFail)

	if rec.ID != "" {
		updated, err := c.records.Update(ctx, rec.ID, meeting.Patch{
			Status:        statusPtr(fsm.StateFailed),
			FailureReason: meeting.StringPtr(cause.Error()),
		})
		if err != nil {
			c.logError("failed to persist failure status", "meeting_id", rec.ID, "error", err.Error())
		} else {
			rec = updated
		}
	}

	return c.finish(result, rec, cause)
}

// finish stamps the terminal snapshot on the result.
func (c *Controller) finish(result Result, rec meeting.Meeting, err error) Result {
	result.Meeting = rec
	result.State = c.State()
	result.Err = err
	result.FinishedAt = time.Now()
	return result
}

// persistTransition applies an FSM event to the controller and mirrors the
// new status onto the durable record.
func (c *Controller) persistTransition(ctx context.Context, meetingID string, event fsm.Event) (meeting.Meeting, error) {
	if err := c.transition(event); err != nil {
		return meeting.Meeting{}, err
	}
	return c.records.Update(ctx, meetingID, meeting.WithStatus(c.State()))
}

func (c *Controller) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}

func statusPtr(s fsm.State) *fsm.State { return &s }

// sleepCtx waits for the delay unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
