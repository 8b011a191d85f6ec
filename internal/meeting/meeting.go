// Package meeting defines the durable meeting record and its SQLite store.
package meeting

import (
	"time"

	"github.com/pcranshaw/minute/internal/fsm"
)

// Meeting is the durable entity tying one recording to its transcript and
// derived artifacts, with a visible processing status.
type Meeting struct {
	ID             string
	OwnerID        string
	Title          string
	Status         fsm.State
	FailureReason  string
	TranscriptText string
	AudioLocator   string
	MinutesLocator string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Patch carries the fields an update may change; nil fields are untouched.
// Every applied patch stamps a store-assigned, non-decreasing UpdatedAt.
type Patch struct {
	Title          *string
	Status         *fsm.State
	FailureReason  *string
	TranscriptText *string
	AudioLocator   *string
	MinutesLocator *string
}

// WithStatus is a convenience constructor for status-only patches.
func WithStatus(status fsm.State) Patch {
	return Patch{Status: &status}
}

// String helpers for optional patch fields.
func StringPtr(s string) *string { return &s }
