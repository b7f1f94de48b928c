package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RestoreSnapshot is the last known state and event list of a timetable,
// used to seed it after a restart.
type RestoreSnapshot struct {
	ID        string      `json:"id"`
	State     State       `json:"state"`
	Timetable []Attribute `json:"timetable"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RestoreStore persists restart snapshots.
type RestoreStore interface {
	// LoadSnapshot returns ErrNotFound when no snapshot exists.
	LoadSnapshot(ctx context.Context, id string) (*RestoreSnapshot, error)
	SaveSnapshot(ctx context.Context, snap RestoreSnapshot) error
	DeleteSnapshot(ctx context.Context, id string) error
}

// SQLiteRestoreStore implements RestoreStore using SQLite. The event list is
// stored as the JSON attribute list.
type SQLiteRestoreStore struct {
	db *sql.DB
}

// NewSQLiteRestoreStore creates a new SQLite restore store.
func NewSQLiteRestoreStore(db *sql.DB) *SQLiteRestoreStore {
	return &SQLiteRestoreStore{db: db}
}

// LoadSnapshot reads the snapshot for id.
func (s *SQLiteRestoreStore) LoadSnapshot(ctx context.Context, id string) (*RestoreSnapshot, error) {
	var snap RestoreSnapshot
	var state, attrsJSON, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, state, attributes, updated_at FROM timetable_restore_state WHERE id = ?`, id,
	).Scan(&snap.ID, &state, &attrsJSON, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying restore state: %w", err)
	}

	// An unreadable state is not fatal; it is recomputed from the events.
	snap.State, _ = ParseState(state) //nolint:errcheck // defaults to off

	if err := json.Unmarshal([]byte(attrsJSON), &snap.Timetable); err != nil {
		return nil, fmt.Errorf("unmarshalling restore attributes: %w", err)
	}
	if snap.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot upserts the snapshot for snap.ID.
func (s *SQLiteRestoreStore) SaveSnapshot(ctx context.Context, snap RestoreSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("timetable id is required")
	}
	attrs := snap.Timetable
	if attrs == nil {
		attrs = []Attribute{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshalling restore attributes: %w", err)
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO timetable_restore_state (id, state, attributes, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at`,
		snap.ID,
		snap.State.String(),
		string(attrsJSON),
		snap.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving restore state: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot for id. Deleting a missing snapshot
// is not an error.
func (s *SQLiteRestoreStore) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timetable_restore_state WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting restore state: %w", err)
	}
	return nil
}
