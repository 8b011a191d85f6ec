// Package app wires CLI commands to the session pipeline and record store.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/cli"
	"github.com/pcranshaw/minute/internal/config"
	"github.com/pcranshaw/minute/internal/doctor"
	"github.com/pcranshaw/minute/internal/identity"
	"github.com/pcranshaw/minute/internal/ipc"
	"github.com/pcranshaw/minute/internal/logging"
	"github.com/pcranshaw/minute/internal/minutes"
	"github.com/pcranshaw/minute/internal/pipeline"
	"github.com/pcranshaw/minute/internal/session"
	"github.com/pcranshaw/minute/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("minute"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("minute"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CommandCancel)
	case cli.CommandRecord:
		return r.commandRecord(ctx, cfgLoaded.Config, parsed.Title, logger)
	case cli.CommandRetry:
		return r.commandRetry(ctx, cfgLoaded.Config, parsed.MeetingID, logger)
	case cli.CommandList:
		return r.commandList(ctx, cfgLoaded.Config, logger)
	case cli.CommandShow:
		return r.commandShow(ctx, cfgLoaded.Config, parsed.MeetingID, logger)
	case cli.CommandDelete:
		return r.commandDelete(ctx, cfgLoaded.Config, parsed.MeetingID, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "no active session")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.MeetingID != "" {
			fmt.Fprintf(r.Stdout, "%s %s\n", resp.State, resp.MeetingID)
		} else {
			fmt.Fprintln(r.Stdout, resp.State)
		}
		return 0
	}

	fmt.Fprintln(r.Stdout, "no active session")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active minute session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRecord owns one recording session end to end: it acquires the
// runtime socket, serves stop/cancel/status over IPC, and blocks until the
// lifecycle settles.
func (r Runner) commandRecord(ctx context.Context, cfg config.Config, title string, logger *slog.Logger) int {
	owner := identity.NewStatic(cfg.UserID)
	ownerID, err := owner.Require()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	sessionCtx, stopWatch := watchOwner(ctx, owner, ownerID, logger)
	defer stopWatch()

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a minute session is already recording; use stop or cancel")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	p, err := pipeline.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = p.Close() }()

	controller := p.Controller(logger)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(sessionCtx, ownerID, title)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)
	return r.reportResult(result)
}

// commandRetry re-runs the pipeline for one failed meeting. When the
// meeting has no stored audio a fresh capture session is started, so the
// runtime socket is served the same way record does.
func (r Runner) commandRetry(ctx context.Context, cfg config.Config, meetingID string, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a minute session is already recording; use stop or cancel")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	p, err := pipeline.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = p.Close() }()

	controller := p.Controller(logger)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Retry(ctx, meetingID)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)
	return r.reportResult(result)
}

func (r Runner) reportResult(result session.Result) int {
	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		if result.Meeting.ID != "" {
			fmt.Fprintf(r.Stderr, "meeting %s is %s; run: minute retry %s\n", result.Meeting.ID, result.Meeting.Status, result.Meeting.ID)
		}
		return 1
	}

	fmt.Fprintf(r.Stdout, "meeting %s is %s\n", result.Meeting.ID, result.Meeting.Status)
	if strings.TrimSpace(result.Transcript) != "" {
		fmt.Fprintln(r.Stdout, strings.TrimSpace(result.Transcript))
	}
	return 0
}

func (r Runner) commandList(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	owner := identity.NewStatic(cfg.UserID)
	ownerID, err := owner.Require()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	p, err := pipeline.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = p.Close() }()

	meetings, err := p.Records.ListByOwner(ctx, ownerID)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(meetings) == 0 {
		fmt.Fprintln(r.Stdout, "no meetings recorded")
		return 0
	}

	for _, m := range meetings {
		fmt.Fprintf(r.Stdout, "%s  %-12s  %s  %q\n", m.ID, m.Status, m.CreatedAt.Format(time.RFC3339), m.Title)
	}
	return 0
}

func (r Runner) commandShow(ctx context.Context, cfg config.Config, meetingID string, logger *slog.Logger) int {
	p, err := pipeline.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = p.Close() }()

	m, err := p.Records.Get(ctx, meetingID)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(r.Stdout, "id:        %s\n", m.ID)
	fmt.Fprintf(r.Stdout, "owner:     %s\n", m.OwnerID)
	fmt.Fprintf(r.Stdout, "title:     %s\n", m.Title)
	fmt.Fprintf(r.Stdout, "status:    %s\n", m.Status)
	fmt.Fprintf(r.Stdout, "created:   %s\n", m.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(r.Stdout, "updated:   %s\n", m.UpdatedAt.Format(time.RFC3339))
	if m.FailureReason != "" {
		fmt.Fprintf(r.Stdout, "failure:   %s\n", m.FailureReason)
	}
	if m.AudioLocator != "" {
		fmt.Fprintf(r.Stdout, "audio:     %s\n", m.AudioLocator)
	}
	if m.MinutesLocator != "" {
		fmt.Fprintf(r.Stdout, "minutes:   %s\n", m.MinutesLocator)
		payload, err := p.Artifacts.FetchMinutes(ctx, m.MinutesLocator)
		if err != nil {
			fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		} else if doc, err := minutes.Decode(payload); err == nil {
			fmt.Fprintln(r.Stdout)
			for _, point := range doc.KeyPoints {
				fmt.Fprintf(r.Stdout, "  - %s\n", point)
			}
		}
	}
	if m.TranscriptText != "" {
		fmt.Fprintln(r.Stdout)
		fmt.Fprintln(r.Stdout, m.TranscriptText)
	}
	return 0
}

// commandDelete removes the record first, then the artifacts; a partial
// artifact failure is surfaced but the record stays deleted.
func (r Runner) commandDelete(ctx context.Context, cfg config.Config, meetingID string, logger *slog.Logger) int {
	p, err := pipeline.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = p.Close() }()

	m, err := p.Records.Get(ctx, meetingID)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if err := p.Records.Delete(ctx, meetingID); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if err := p.Artifacts.DeleteArtifacts(ctx, m.OwnerID, m.ID); err != nil {
		fmt.Fprintf(r.Stderr, "warning: record deleted but artifact cleanup failed: %v\n", err)
		logger.Warn("artifact cleanup failed", "meeting_id", m.ID, "error", err.Error())
		return 1
	}

	fmt.Fprintf(r.Stdout, "deleted %s\n", meetingID)
	return 0
}

// watchOwner derives the session context from the signed-in user: a capture
// session records on behalf of exactly one owner, so a sign-out or account
// switch mid-recording cancels the session and releases the device instead
// of writing under the wrong identity.
func watchOwner(ctx context.Context, owner *identity.Provider, ownerID string, logger *slog.Logger) (context.Context, context.CancelFunc) {
	sessionCtx, cancel := context.WithCancel(ctx)
	unsubscribe := owner.Subscribe(func(id string) {
		if id == ownerID {
			return
		}
		if logger != nil {
			logger.Warn("signed-in user changed mid-session", "owner", ownerID)
		}
		cancel()
	})
	return sessionCtx, func() {
		unsubscribe()
		cancel()
	}
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"meeting_id", result.Meeting.ID,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
		"transcript_length", len(result.Transcript),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, command, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
