package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"elric-go/internal/jobstore"
	"elric-go/internal/jobstore/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteJobStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A second connection would open a different in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewSQLiteJobStore(db)
	require.NoError(t, store.Migrate())
	return store
}

func TestSQLiteJobStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) jobstore.Store {
		return newTestStore(t)
	})
}

func TestSQLiteJobStore_RejectsInvalidRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, jobstore.Record{Key: "k", NextRunTime: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Add(ctx, jobstore.Record{ID: "a", Key: "k"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Replace(ctx, jobstore.Record{ID: "a", Key: "k"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteJobStore_EmptyPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	res, err := store.Add(ctx, jobstore.Record{ID: "a", Key: "k", NextRunTime: at})
	require.NoError(t, err)
	require.Equal(t, jobstore.Applied, res)

	due, err := store.DueBefore(ctx, at)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Empty(t, due[0].Payload)
}

func TestSQLiteJobStore_ReplaceKeepsSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Add(ctx, jobstore.Record{ID: "a", Key: "k", NextRunTime: at, Payload: []byte("1")})
	require.NoError(t, err)

	var before int64
	require.NoError(t, store.db.QueryRow(`SELECT seq FROM jobs WHERE id = 'a'`).Scan(&before))

	_, err = store.Replace(ctx, jobstore.Record{ID: "a", Key: "k", NextRunTime: at.Add(time.Hour), Payload: []byte("2")})
	require.NoError(t, err)

	var after int64
	require.NoError(t, store.db.QueryRow(`SELECT seq FROM jobs WHERE id = 'a'`).Scan(&after))
	assert.Equal(t, before, after)
}

func TestSQLiteJobStore_ContextCancelled(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.DueBefore(ctx, time.Now())
	assert.Error(t, err)
}
