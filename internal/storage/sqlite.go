package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"elric-go/internal/jobstore"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

const memoryPath = ":memory:"

// SQLiteJobStore is a durable jobstore.Store. Next run times are stored as
// unix nanoseconds; insertion order comes from the autoincrement seq column.
type SQLiteJobStore struct {
	db *sql.DB
}

var _ jobstore.Store = (*SQLiteJobStore)(nil)

// NewSQLiteJobStore wraps an open database. Call Migrate before use.
func NewSQLiteJobStore(db *sql.DB) *SQLiteJobStore {
	return &SQLiteJobStore{db: db}
}

// validateRecord checks if the record can be persisted
func validateRecord(rec jobstore.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: job ID cannot be empty", ErrInvalidInput)
	}
	if rec.NextRunTime.IsZero() {
		return fmt.Errorf("%w: job %s has no next run time", ErrInvalidInput, rec.ID)
	}
	return nil
}

// Add inserts a job record; an existing id is left untouched
func (s *SQLiteJobStore) Add(ctx context.Context, rec jobstore.Record) (jobstore.Result, error) {
	if err := validateRecord(rec); err != nil {
		return jobstore.Applied, err
	}

	query := `
		INSERT INTO jobs (id, job_key, next_run_time, next_run_nsec, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	sec, nsec := unixParts(rec.NextRunTime)
	result, err := s.db.ExecContext(ctx, query, rec.ID, rec.Key, sec, nsec, payloadOf(rec))
	if err != nil {
		return jobstore.Applied, fmt.Errorf("failed to add job %s: %w", rec.ID, err)
	}
	return resultOf(result, jobstore.AlreadyExists)
}

// Replace overwrites a job record in place, keeping its seq
func (s *SQLiteJobStore) Replace(ctx context.Context, rec jobstore.Record) (jobstore.Result, error) {
	if err := validateRecord(rec); err != nil {
		return jobstore.Applied, err
	}

	query := `
		UPDATE jobs
		SET job_key = ?, next_run_time = ?, next_run_nsec = ?, payload = ?
		WHERE id = ?
	`
	sec, nsec := unixParts(rec.NextRunTime)
	result, err := s.db.ExecContext(ctx, query, rec.Key, sec, nsec, payloadOf(rec), rec.ID)
	if err != nil {
		return jobstore.Applied, fmt.Errorf("failed to replace job %s: %w", rec.ID, err)
	}
	return resultOf(result, jobstore.NotFound)
}

// Remove deletes a job record
func (s *SQLiteJobStore) Remove(ctx context.Context, id string) (jobstore.Result, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return jobstore.Applied, fmt.Errorf("failed to remove job %s: %w", id, err)
	}
	return resultOf(result, jobstore.NotFound)
}

// DueBefore returns the records due at or before instant
func (s *SQLiteJobStore) DueBefore(ctx context.Context, instant time.Time) ([]jobstore.Record, error) {
	sec, nsec := unixParts(instant)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_key, next_run_time, next_run_nsec, payload
		FROM jobs
		WHERE next_run_time < ? OR (next_run_time = ? AND next_run_nsec <= ?)
		ORDER BY next_run_time, next_run_nsec, seq
	`, sec, sec, nsec)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()

	var due []jobstore.Record
	for rows.Next() {
		var (
			rec             jobstore.Record
			nextSec, nextNs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Key, &nextSec, &nextNs, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		rec.NextRunTime = time.Unix(nextSec, nextNs).UTC()
		due = append(due, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due jobs: %w", err)
	}
	return due, nil
}

// ClosestUpcoming returns the earliest next run time, false when empty
func (s *SQLiteJobStore) ClosestUpcoming(ctx context.Context) (time.Time, bool, error) {
	var sec, nsec int64
	err := s.db.QueryRowContext(ctx, `
		SELECT next_run_time, next_run_nsec
		FROM jobs
		ORDER BY next_run_time, next_run_nsec
		LIMIT 1
	`).Scan(&sec, &nsec)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query closest job: %w", err)
	}
	return time.Unix(sec, nsec).UTC(), true, nil
}

// Count returns the number of stored jobs
func (s *SQLiteJobStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

// unixParts splits t into whole seconds and nanoseconds. A single
// nanosecond column only covers the years 1678 to 2262.
func unixParts(t time.Time) (int64, int64) {
	return t.Unix(), int64(t.Nanosecond())
}

// resultOf maps a statement that touched no rows to miss
func resultOf(result sql.Result, miss jobstore.Result) (jobstore.Result, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return jobstore.Applied, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return miss, nil
	}
	return jobstore.Applied, nil
}

// payloadOf keeps an empty payload from being stored as NULL
func payloadOf(rec jobstore.Record) []byte {
	if rec.Payload == nil {
		return []byte{}
	}
	return rec.Payload
}
