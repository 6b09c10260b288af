package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLock ensures only one migration can run at a time
var migrationLock sync.Mutex

const migrationsTable = "schema_migrations"

// Migrate applies all pending schema migrations
func (s *SQLiteJobStore) Migrate() error {
	return s.migrate(func(m *migrate.Migrate) error { return m.Up() })
}

// migrateTo moves the schema to version, up or down.
func (s *SQLiteJobStore) migrateTo(version uint) error {
	return s.migrate(func(m *migrate.Migrate) error { return m.Migrate(version) })
}

func (s *SQLiteJobStore) migrate(apply func(*migrate.Migrate) error) error {
	migrationLock.Lock()
	defer migrationLock.Unlock()

	sourceInstance, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	defer sourceInstance.Close()

	// The driver wraps the store's own handle so in-memory databases see the
	// schema. Closing the migrate instance would close s.db, so it is left open.
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceInstance, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := apply(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrationStatus is the schema version recorded by Migrate
type MigrationStatus struct {
	Version uint64
	Dirty   bool
}

// GetMigrationStatus returns the current schema version
func (s *SQLiteJobStore) GetMigrationStatus(ctx context.Context) (MigrationStatus, error) {
	var status MigrationStatus
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT version, dirty FROM %s LIMIT 1", migrationsTable)).
		Scan(&status.Version, &status.Dirty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status, fmt.Errorf("%w: no migrations applied", ErrNotFound)
		}
		return status, fmt.Errorf("failed to query migrations: %w", err)
	}
	return status, nil
}
