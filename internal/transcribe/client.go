// Package transcribe sends finalized audio artifacts to the remote
// speech-to-text service and classifies failures for the orchestrator.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pcranshaw/minute/internal/audio"
	"github.com/pcranshaw/minute/internal/config"
	"github.com/pcranshaw/minute/internal/fault"
)

const transcriptionsPath = "/v1/audio/transcriptions"

// Result is a successful transcript; immutable once returned.
type Result struct {
	Text       string
	ProducedAt time.Time
}

// Client performs one-shot transcription requests. It never retries by
// itself: retry eligibility is only signaled through the failure kind.
type Client struct {
	http     *resty.Client
	language string
	logger   *slog.Logger
	now      func() time.Time
}

// NewClient builds a transcription client from runtime config.
func NewClient(cfg config.TranscribeConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Accept", "application/json")
	if strings.TrimSpace(cfg.APIKey) != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:     httpClient,
		language: cfg.Language,
		logger:   logger,
		now:      time.Now,
	}
}

// apiResponse matches the service's transcription response body.
type apiResponse struct {
	Text string `json:"text"`
}

// apiError matches the service's structured error body.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
	Message string `json:"message"`
}

// Transcribe uploads the whole artifact and resolves once with text or a
// typed failure. Timeouts surface as transient failures.
func (c *Client) Transcribe(ctx context.Context, artifact audio.Artifact) (Result, error) {
	if len(artifact.Data) == 0 {
		return Result{}, fault.NewPermanent(0, "audio payload is empty")
	}

	started := c.now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", "recording.wav", bytes.NewReader(artifact.Data)).
		SetFormData(map[string]string{
			"language":     c.language,
			"content_type": artifact.ContentType,
		}).
		SetResult(&apiResponse{}).
		SetError(&apiError{}).
		Post(transcriptionsPath)
	if err != nil {
		return Result{}, classifyTransportError(err)
	}

	if resp.IsError() {
		return Result{}, classifyStatus(resp.StatusCode(), errorMessage(resp))
	}

	body, ok := resp.Result().(*apiResponse)
	if !ok || body == nil {
		return Result{}, fault.NewTransient(resp.StatusCode(), "malformed transcription response")
	}

	if c.logger != nil {
		c.logger.Info("transcription complete",
			"latency_ms", c.now().Sub(started).Milliseconds(),
			"transcript_length", len(body.Text),
		)
	}

	return Result{Text: body.Text, ProducedAt: c.now()}, nil
}

// classifyTransportError maps network-level failures; anything that never
// reached a server verdict is safe to retry verbatim.
func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fault.NewTransient(0, "timeout")
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fault.NewTransient(0, fmt.Sprintf("transcription request failed: %v", err))
	}
}

// classifyStatus maps server verdicts: 408/429/5xx are retry-eligible,
// remaining 4xx (unsupported format, payload too large, quota) require a
// changed input.
func classifyStatus(status int, message string) error {
	switch {
	case status == http.StatusRequestTimeout:
		return fault.NewTransient(status, "timeout")
	case status == http.StatusTooManyRequests || status >= 500:
		return fault.NewTransient(status, message)
	default:
		return fault.NewPermanent(status, message)
	}
}

// errorMessage extracts the most specific message from an error body.
func errorMessage(resp *resty.Response) string {
	if body, ok := resp.Error().(*apiError); ok && body != nil {
		if body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return http.StatusText(resp.StatusCode())
}
