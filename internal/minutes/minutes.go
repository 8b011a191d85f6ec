// Package minutes derives the persisted meeting-minutes document from a
// finished transcript.
package minutes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Minutes is the JSON document stored alongside a ready meeting.
type Minutes struct {
	MeetingID   string    `json:"meeting_id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	WordCount   int       `json:"word_count"`
	KeyPoints   []string  `json:"key_points"`
	Transcript  string    `json:"transcript"`
}

// maxKeyPoints caps the sentence extraction; long meetings keep the full
// text in Transcript regardless.
const maxKeyPoints = 5

// Build assembles minutes from a transcript. The transcript is stored
// verbatim; key points are the leading sentences.
func Build(meetingID, ownerID, title, transcript string, generatedAt time.Time) Minutes {
	transcript = strings.TrimSpace(transcript)
	return Minutes{
		MeetingID:   meetingID,
		OwnerID:     ownerID,
		Title:       title,
		GeneratedAt: generatedAt.UTC(),
		WordCount:   len(strings.Fields(transcript)),
		KeyPoints:   keyPoints(transcript),
		Transcript:  transcript,
	}
}

// Encode renders the document as indented JSON for storage.
func (m Minutes) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode minutes: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a stored minutes document.
func Decode(data []byte) (Minutes, error) {
	var m Minutes
	if err := json.Unmarshal(data, &m); err != nil {
		return Minutes{}, fmt.Errorf("failed to decode minutes: %w", err)
	}
	return m, nil
}

// keyPoints splits the transcript into sentences and keeps the first few
// non-trivial ones.
func keyPoints(transcript string) []string {
	if transcript == "" {
		return nil
	}

	var points []string
	start := 0
	for i, r := range transcript {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		sentence := strings.TrimSpace(transcript[start : i+1])
		start = i + 1
		if len(strings.Fields(sentence)) < 3 {
			continue
		}
		points = append(points, sentence)
		if len(points) == maxKeyPoints {
			return points
		}
	}

	if tail := strings.TrimSpace(transcript[start:]); tail != "" && len(strings.Fields(tail)) >= 3 {
		points = append(points, tail)
	}
	return points
}
