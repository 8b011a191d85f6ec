// Package fsm defines the meeting status machine shared by the session
// controller and the durable meeting record.
package fsm

import "fmt"

type State string

type Event string

const (
	StateDraft        State = "draft"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateReady        State = "ready"
	StateFailed       State = "failed"
)

const (
	EventStart           Event = "start"
	EventStop            Event = "stop"
	EventCancel          Event = "cancel"
	EventTranscribed     Event = "transcribed"
	EventFail            Event = "fail"
	EventRetryRecord     Event = "retry_record"
	EventRetryTranscribe Event = "retry_transcribe"
)

// Settled reports whether the pipeline holds no device or network
// resources in this state.
func Settled(state State) bool {
	return state == StateReady || state == StateFailed
}

// Transition applies one event to the current state. Status only moves
// forward along draft -> recording -> transcribing -> ready; failed is
// reached from any non-settled state and is left only via retry events.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		if Settled(current) {
			return current, invalidTransition(current, event)
		}
		return StateFailed, nil
	}

	switch current {
	case StateDraft:
		switch event {
		case EventStart:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateTranscribing, nil
		case EventCancel:
			return StateDraft, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateTranscribing:
		switch event {
		case EventTranscribed:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReady:
		return current, invalidTransition(current, event)
	case StateFailed:
		switch event {
		case EventRetryRecord:
			return StateRecording, nil
		case EventRetryTranscribe:
			return StateTranscribing, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
