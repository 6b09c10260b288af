package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Backup writes a consistent copy of the job database to backupPath
func (s *SQLiteJobStore) Backup(ctx context.Context, backupPath string) error {
	if backupPath == "" {
		return fmt.Errorf("%w: backup path cannot be empty", ErrInvalidInput)
	}
	if _, err := os.Stat(backupPath); err == nil {
		return fmt.Errorf("%w: backup file %s already exists", ErrInvalidInput, backupPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat backup file: %w", err)
	}

	// Ensure backup directory exists
	if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, backupPath); err != nil {
		return fmt.Errorf("failed to backup database: %w", err)
	}

	if err := s.verifyBackup(ctx, backupPath); err != nil {
		// If verification fails, try to remove the corrupted backup
		os.Remove(backupPath)
		return fmt.Errorf("backup verification failed: %w", err)
	}
	return nil
}

// verifyBackup checks that the backup holds the same jobs as the source
func (s *SQLiteJobStore) verifyBackup(ctx context.Context, backupPath string) error {
	backupDB, err := sql.Open("sqlite3", backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup database: %w", err)
	}
	defer backupDB.Close()

	var sourceCount, backupCount int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&sourceCount); err != nil {
		return fmt.Errorf("failed to get source job count: %w", err)
	}
	if err := backupDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&backupCount); err != nil {
		return fmt.Errorf("failed to get backup job count: %w", err)
	}
	if sourceCount != backupCount {
		return fmt.Errorf("job count mismatch: source=%d, backup=%d", sourceCount, backupCount)
	}

	var version uint64
	if err := backupDB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT version FROM %s LIMIT 1", migrationsTable)).Scan(&version); err != nil {
		return fmt.Errorf("failed to verify backup schema version: %w", err)
	}
	return nil
}
