package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailureErrorIncludesStatus(t *testing.T) {
	withStatus := NewTransient(503, "service unavailable")
	require.Contains(t, withStatus.Error(), "HTTP 503")
	require.Contains(t, withStatus.Error(), "service unavailable")

	withoutStatus := NewDeviceUnavailable("microphone access denied")
	require.NotContains(t, withoutStatus.Error(), "HTTP")
	require.Contains(t, withoutStatus.Error(), "microphone access denied")
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := NewPermanent(415, "unsupported media type")
	wrapped := fmt.Errorf("transcribe meeting: %w", base)

	require.Equal(t, KindPermanent, KindOf(wrapped))
	require.True(t, Is(wrapped, KindPermanent))
	require.False(t, Retryable(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
	require.Equal(t, Kind(""), KindOf(nil))
	require.False(t, Retryable(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(NewTransient(0, "timeout")))
	require.False(t, Retryable(NewPermanent(413, "payload too large")))
	require.False(t, Retryable(NewStore(errors.New("disk full"))))
	require.False(t, Retryable(NewInvalidState("stop", "idle")))
}
