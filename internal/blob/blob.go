// Package blob provides write-once-read-many object storage addressed by
// deterministic paths, and the artifact adapter used by the pipeline.
package blob

import (
	"context"
	"errors"
	"path"
)

// ErrNotFound indicates no object exists at the requested path.
var ErrNotFound = errors.New("blob not found")

// Store is the minimal object storage contract. A locator returned by Put
// is opaque to callers; for path-addressed stores it is the path itself.
type Store interface {
	Put(ctx context.Context, objectPath string, data []byte) (string, error)
	Get(ctx context.Context, objectPath string) ([]byte, error)
	Exists(ctx context.Context, objectPath string) (bool, error)
	Delete(ctx context.Context, objectPath string) error
}

// AudioPath derives the deterministic audio object path for one meeting.
// Re-storing under the same keys overwrites.
func AudioPath(ownerID, meetingID string) string {
	return path.Join("recordings", ownerID, meetingID, "audio")
}

// MinutesPath derives the deterministic minutes object path for one meeting.
func MinutesPath(ownerID, meetingID string) string {
	return path.Join("minutes", ownerID, meetingID, "minutes.json")
}
