package meeting

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pcranshaw/minute/internal/fault"
	"github.com/pcranshaw/minute/internal/fsm"
)

// ErrNotFound indicates no meeting record exists for the requested id.
var ErrNotFound = errors.New("meeting not found")

// Store persists meeting records in SQLite. Writes stamp a store-assigned
// updated_at that never decreases for a given record.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create inserts a new record in draft status and returns it.
func (s *Store) Create(ctx context.Context, ownerID, title string) (Meeting, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Meeting{}, fault.NewStore(errors.New("owner id is required"))
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled meeting"
	}

	id, err := newULID(s.now())
	if err != nil {
		return Meeting{}, fault.NewStore(err)
	}

	now := s.now()
	m := Meeting{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		Status:    fsm.StateDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, owner_id, title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerID, m.Title, string(m.Status), m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return Meeting{}, fault.NewStore(fmt.Errorf("insert meeting: %w", err))
	}
	return m, nil
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, id string) (Meeting, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM meetings WHERE id = ?", id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Meeting{}, fault.NewStore(fmt.Errorf("load meeting: %w", err))
	}
	return m, nil
}

// Update applies a patch inside a transaction. The audio locator is
// write-once: changing an already-set locator to a different value is a
// store failure, re-writing the same value is accepted.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (Meeting, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meeting{}, fault.NewStore(fmt.Errorf("begin update: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, selectColumns+" FROM meetings WHERE id = ?", id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Meeting{}, fault.NewStore(fmt.Errorf("load meeting for update: %w", err))
	}

	if patch.Title != nil {
		m.Title = *patch.Title
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.FailureReason != nil {
		m.FailureReason = *patch.FailureReason
	}
	if patch.TranscriptText != nil {
		m.TranscriptText = *patch.TranscriptText
	}
	if patch.AudioLocator != nil {
		if m.AudioLocator != "" && m.AudioLocator != *patch.AudioLocator {
			return Meeting{}, fault.NewStore(fmt.Errorf("audio locator already set for meeting %q", id))
		}
		m.AudioLocator = *patch.AudioLocator
	}
	if patch.MinutesLocator != nil {
		m.MinutesLocator = *patch.MinutesLocator
	}

	// Server-assigned stamp; clamp so updated_at never moves backwards even
	// under clock skew.
	now := s.now()
	if now.Before(m.UpdatedAt) {
		now = m.UpdatedAt
	}
	m.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		UPDATE meetings SET
		  title = ?, status = ?, failure_reason = ?, transcript_text = ?,
		  audio_locator = ?, minutes_locator = ?, updated_at = ?
		WHERE id = ?`,
		m.Title, string(m.Status), m.FailureReason, m.TranscriptText,
		m.AudioLocator, m.MinutesLocator, m.UpdatedAt.UnixMilli(), m.ID,
	)
	if err != nil {
		return Meeting{}, fault.NewStore(fmt.Errorf("update meeting: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return Meeting{}, fault.NewStore(fmt.Errorf("commit update: %w", err))
	}
	return m, nil
}

// ListByOwner returns the owner's meetings, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM meetings WHERE owner_id = ? ORDER BY created_at DESC, id DESC", ownerID)
	if err != nil {
		return nil, fault.NewStore(fmt.Errorf("list meetings: %w", err))
	}
	defer rows.Close()

	meetings := make([]Meeting, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fault.NewStore(fmt.Errorf("scan meeting: %w", err))
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.NewStore(fmt.Errorf("iterate meetings: %w", err))
	}
	return meetings, nil
}

// Delete removes one record. The pipeline never calls this; it backs the
// administrative delete command.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM meetings WHERE id = ?", id)
	if err != nil {
		return fault.NewStore(fmt.Errorf("delete meeting: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fault.NewStore(fmt.Errorf("delete meeting: %w", err))
	}
	if affected == 0 {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return nil
}

const selectColumns = `SELECT id, owner_id, title, status, failure_reason,
	transcript_text, audio_locator, minutes_locator, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (Meeting, error) {
	var (
		m         Meeting
		status    string
		createdMS int64
		updatedMS int64
	)
	err := row.Scan(&m.ID, &m.OwnerID, &m.Title, &status, &m.FailureReason,
		&m.TranscriptText, &m.AudioLocator, &m.MinutesLocator, &createdMS, &updatedMS)
	if err != nil {
		return Meeting{}, err
	}
	m.Status = fsm.State(status)
	m.CreatedAt = time.UnixMilli(createdMS).UTC()
	m.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	return m, nil
}

// newULID generates a lexicographically sortable meeting id.
func newULID(at time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(at), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate meeting id: %w", err)
	}
	return id.String(), nil
}
