package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"elric-go/internal/jobstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "elric_jobs.db", cfg.Path)
	assert.Equal(t, 4, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxIdleTime)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "empty path", modify: func(c *Config) { c.Path = "" }},
		{name: "zero max open", modify: func(c *Config) { c.MaxOpenConns = 0 }},
		{name: "negative max idle", modify: func(c *Config) { c.MaxIdleConns = -1 }},
		{name: "idle above open", modify: func(c *Config) { c.MaxIdleConns = c.MaxOpenConns + 1 }},
		{name: "zero lifetime", modify: func(c *Config) { c.ConnMaxLifetime = 0 }},
		{name: "zero idle time", modify: func(c *Config) { c.ConnMaxIdleTime = 0 }},
		{name: "idle time above lifetime", modify: func(c *Config) { c.ConnMaxIdleTime = 2 * c.ConnMaxLifetime }},
		{name: "zero busy timeout", modify: func(c *Config) { c.BusyTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput)
		})
	}
}

func TestOpenDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "jobs.db")

	cfg := DefaultConfig()
	cfg.Path = dbPath

	store, err := OpenDatabase(cfg)
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	res, err := store.Add(ctx, jobstore.Record{ID: "a", Key: "k", NextRunTime: at, Payload: []byte("p")})
	require.NoError(t, err)
	assert.Equal(t, jobstore.Applied, res)
	require.NoError(t, store.Close())

	// Jobs survive a reopen.
	store, err = OpenDatabase(cfg)
	require.NoError(t, err)
	defer store.Close()

	closest, ok, err := store.ClosestUpcoming(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, closest.Equal(at))
}

func TestOpenDatabase_InMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = ":memory:"

	store, err := OpenDatabase(cfg)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.db.Stats().MaxOpenConnections, "in-memory store keeps a single connection")
}

func TestOpenDatabase_InvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = "/nonexistent/directory/jobs.db"

	_, err := OpenDatabase(cfg)
	assert.Error(t, err)
}

func TestOpenDatabase_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenConns = 0

	_, err := OpenDatabase(cfg)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
