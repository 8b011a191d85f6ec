// Package fault defines the typed failure taxonomy shared across the pipeline.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for orchestration decisions.
type Kind string

const (
	// KindDeviceUnavailable means no input device exists or access was denied.
	KindDeviceUnavailable Kind = "DEVICE_UNAVAILABLE"
	// KindInvalidState means an operation was attempted outside its valid state.
	KindInvalidState Kind = "INVALID_STATE"
	// KindTransient means the operation is safe to retry verbatim.
	KindTransient Kind = "TRANSIENT"
	// KindPermanent means retrying the same input cannot succeed.
	KindPermanent Kind = "PERMANENT"
	// KindStore means a record or blob read/write failed.
	KindStore Kind = "STORE"
)

// Failure is a structured error carrying its classification and an
// HTTP-style status when one was observed.
type Failure struct {
	Kind    Kind
	Status  int
	Message string
}

func (f *Failure) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewDeviceUnavailable reports a missing or denied audio input device.
func NewDeviceUnavailable(msg string) *Failure {
	return &Failure{Kind: KindDeviceUnavailable, Message: msg}
}

// NewInvalidState reports an operation invalid in the current state.
func NewInvalidState(op, state string) *Failure {
	return &Failure{Kind: KindInvalidState, Message: fmt.Sprintf("%s is not valid in state %q", op, state)}
}

// NewTransient reports a retry-eligible failure.
func NewTransient(status int, msg string) *Failure {
	return &Failure{Kind: KindTransient, Status: status, Message: msg}
}

// NewPermanent reports a failure that requires changed input to resolve.
func NewPermanent(status int, msg string) *Failure {
	return &Failure{Kind: KindPermanent, Status: status, Message: msg}
}

// NewStore reports a record or blob storage failure.
func NewStore(err error) *Failure {
	msg := "storage failure"
	if err != nil {
		msg = err.Error()
	}
	return &Failure{Kind: KindStore, Message: msg}
}

// KindOf extracts the failure kind from an error chain, or "" for plain errors.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether err may be retried verbatim.
func Retryable(err error) bool {
	return Is(err, KindTransient)
}
