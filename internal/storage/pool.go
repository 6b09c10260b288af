package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Config sizes the job store's connection pool. Durations must be positive.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BusyTimeout     time.Duration
}

// DefaultConfig returns the pool settings used by the master unless the
// store section of its config says otherwise.
func DefaultConfig() Config {
	return Config{
		Path:            "elric_jobs.db",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		BusyTimeout:     5 * time.Second,
	}
}

// Validate reports the first setting OpenDatabase would refuse.
func (c Config) Validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.Path == "", "path is empty"},
		{c.MaxOpenConns < 1, "max_open_conns must be at least 1"},
		{c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns, "max_idle_conns must be between 0 and max_open_conns"},
		{c.ConnMaxLifetime <= 0, "conn_max_lifetime must be positive"},
		{c.ConnMaxIdleTime <= 0 || c.ConnMaxIdleTime > c.ConnMaxLifetime, "conn_max_idle_time must be positive and within conn_max_lifetime"},
		{c.BusyTimeout <= 0, "busy_timeout must be positive"},
	}
	for _, check := range checks {
		if check.bad {
			return fmt.Errorf("%w: store %s", ErrInvalidInput, check.msg)
		}
	}
	return nil
}

// dsn enables WAL so the loop's reads do not block API writes.
func (c Config) dsn() string {
	return fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		c.Path, c.BusyTimeout.Milliseconds())
}

// OpenDatabase opens the SQLite job store at cfg.Path and migrates it.
func OpenDatabase(cfg Config) (*SQLiteJobStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open job store %s: %w", cfg.Path, err)
	}

	if cfg.Path == memoryPath {
		// One connection, kept forever: each new one would start empty.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout+time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach job store %s: %w", cfg.Path, err)
	}

	store := NewSQLiteJobStore(db)
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle
func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}
