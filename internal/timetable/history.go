package timetable

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryEntry is a single recorded state change.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	TimetableID string    `json:"timetable_id"`
	State       State     `json:"state"`
	Cause       Cause     `json:"cause"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves timetable state changes.
type HistoryRepository interface {
	HistoryRecorder

	// GetHistory returns recent changes newest first. limit defaults to 50
	// and is capped at 200.
	GetHistory(ctx context.Context, id string, limit int) ([]HistoryEntry, error)

	// DeleteHistory removes all changes recorded for id.
	DeleteHistory(ctx context.Context, id string) error
}

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordStateChange inserts a history row.
func (r *SQLiteHistoryRepository) RecordStateChange(ctx context.Context, id string, state State, cause Cause) error {
	if id == "" {
		return fmt.Errorf("timetable id is required")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timetable_state_history (timetable_id, state, cause, created_at) VALUES (?, ?, ?, ?)`,
		id,
		state.String(),
		string(cause),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns recent history entries for a timetable.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, id string, limit int) ([]HistoryEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("timetable id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timetable_id, state, cause, created_at
		 FROM timetable_state_history
		 WHERE timetable_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		id,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var state, cause, createdAt string
		if err := rows.Scan(&entry.ID, &entry.TimetableID, &state, &cause, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if entry.State, err = ParseState(state); err != nil {
			return nil, err
		}
		entry.Cause = Cause(cause)
		if entry.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// DeleteHistory removes every history row of a timetable.
func (r *SQLiteHistoryRepository) DeleteHistory(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timetable_state_history WHERE timetable_id = ?`, id); err != nil {
		return fmt.Errorf("deleting state history: %w", err)
	}
	return nil
}

// PruneHistory deletes entries older than olderThan and returns the count removed.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM timetable_state_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}
