package timetable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is a timetable in the storage collection: one created through the
// API rather than declared in the configuration file.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines the interface for storage-collection persistence.
type Repository interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every stored timetable ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM timetables ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying timetables: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timetables: %w", err)
	}
	return records, nil
}

// Get retrieves a stored timetable by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM timetables WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Create inserts a new timetable. Returns ErrExists if the ID is taken.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timetables (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting timetable: %w", err)
	}
	return nil
}

// Rename changes the name of a stored timetable.
func (r *SQLiteRepository) Rename(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timetables SET name = ?, updated_at = ? WHERE id = ?`,
		name,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating timetable: %w", err)
	}
	return requireRow(result)
}

// Delete removes a stored timetable.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting timetable: %w", err)
	}
	return requireRow(result)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &rec.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning timetable: %w", err)
	}

	var err error
	if rec.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return t, nil
	}
	if fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value); fallbackErr == nil {
		return fallback.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
}

// isUniqueConstraintError checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
