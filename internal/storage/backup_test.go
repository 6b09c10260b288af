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

func TestSQLiteJobStore_Backup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Add(ctx, jobstore.Record{ID: id, Key: "k", NextRunTime: at, Payload: []byte(id)})
		require.NoError(t, err)
	}

	backupPath := filepath.Join(t.TempDir(), "nested", "backup.db")
	require.NoError(t, store.Backup(ctx, backupPath))

	cfg := DefaultConfig()
	cfg.Path = backupPath
	restored, err := OpenDatabase(cfg)
	require.NoError(t, err)
	defer restored.Close()

	due, err := restored.DueBefore(ctx, at)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "a", due[0].ID)
	assert.Equal(t, "c", string(due[2].Payload))
}

func TestSQLiteJobStore_BackupRefusesOverwrite(t *testing.T) {
	store := newTestStore(t)
	backupPath := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, os.WriteFile(backupPath, []byte("keep"), 0o644))

	err := store.Backup(context.Background(), backupPath)
	assert.ErrorIs(t, err, ErrInvalidInput)

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestSQLiteJobStore_BackupEmptyPath(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Backup(context.Background(), ""), ErrInvalidInput)
}
