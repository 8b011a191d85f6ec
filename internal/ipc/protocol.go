// Package ipc carries session commands between a minute invocation and the
// process that owns the active capture session. The wire format is one JSON
// object per line over a unix socket in the user's runtime directory.
package ipc

// Commands a session owner understands. Anything else gets an error
// response with OK false.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandCancel = "cancel"
)

// Request is one command addressed to the session owner.
type Request struct {
	Command string `json:"command"`
}

// Response reports the outcome together with the owner's lifecycle state
// and, when a meeting is active, its record id.
type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	MeetingID string `json:"meeting_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
