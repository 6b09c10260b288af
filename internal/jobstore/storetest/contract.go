// Package storetest holds the behaviour every jobstore.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"elric-go/internal/jobstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) jobstore.Store

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func rec(id string, offset time.Duration, payload string) jobstore.Record {
	return jobstore.Record{
		ID:          id,
		Key:         "k-" + id,
		NextRunTime: base.Add(offset),
		Payload:     []byte(payload),
	}
}

func ids(records []jobstore.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func mustAdd(t *testing.T, s jobstore.Store, r jobstore.Record) {
	t.Helper()
	res, err := s.Add(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, jobstore.Applied, res)
}

func count(t *testing.T, s jobstore.Store) int {
	t.Helper()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	return n
}

// Run exercises the store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("add duplicate keeps original", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("a", 10*time.Second, "first"))

		res, err := s.Add(ctx, rec("a", time.Second, "second"))
		require.NoError(t, err)
		assert.Equal(t, jobstore.AlreadyExists, res)
		assert.Equal(t, 1, count(t, s))

		due, err := s.DueBefore(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "first", string(due[0].Payload))
		assert.Equal(t, "k-a", due[0].Key)
		assert.True(t, due[0].NextRunTime.Equal(base.Add(10*time.Second)))
	})

	t.Run("replace overwrites and reindexes", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("a", 10*time.Second, "old"))
		mustAdd(t, s, rec("b", 20*time.Second, "b"))

		updated := rec("a", 30*time.Second, "new")
		updated.Key = "other"
		res, err := s.Replace(ctx, updated)
		require.NoError(t, err)
		assert.Equal(t, jobstore.Applied, res)

		closest, ok, err := s.ClosestUpcoming(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, closest.Equal(base.Add(20*time.Second)))

		due, err := s.DueBefore(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, ids(due))
		assert.Equal(t, "new", string(due[1].Payload))
		assert.Equal(t, "other", due[1].Key)
	})

	t.Run("replace missing", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("a", time.Second, "a"))

		res, err := s.Replace(ctx, rec("ghost", time.Second, "x"))
		require.NoError(t, err)
		assert.Equal(t, jobstore.NotFound, res)
		assert.Equal(t, 1, count(t, s))
	})

	t.Run("remove", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("a", time.Second, "a"))

		res, err := s.Remove(ctx, "ghost")
		require.NoError(t, err)
		assert.Equal(t, jobstore.NotFound, res)
		assert.Equal(t, 1, count(t, s))

		res, err = s.Remove(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, jobstore.Applied, res)
		assert.Equal(t, 0, count(t, s))

		res, err = s.Remove(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, jobstore.NotFound, res)
	})

	t.Run("due before is inclusive and ordered", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("late", 30*time.Second, ""))
		mustAdd(t, s, rec("tie1", 10*time.Second, ""))
		mustAdd(t, s, rec("early", 5*time.Second, ""))
		mustAdd(t, s, rec("tie2", 10*time.Second, ""))

		due, err := s.DueBefore(ctx, base.Add(10*time.Second))
		require.NoError(t, err)
		assert.Equal(t, []string{"early", "tie1", "tie2"}, ids(due))

		due, err = s.DueBefore(ctx, base)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("replace keeps insertion order for ties", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("a", 10*time.Second, "a"))
		mustAdd(t, s, rec("b", 10*time.Second, "b"))

		res, err := s.Replace(ctx, rec("a", 10*time.Second, "a2"))
		require.NoError(t, err)
		require.Equal(t, jobstore.Applied, res)

		due, err := s.DueBefore(ctx, base.Add(10*time.Second))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(due))
	})

	t.Run("due snapshot is detached", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("a", time.Second, "payload"))
		mustAdd(t, s, rec("b", 2*time.Second, "payload"))

		due, err := s.DueBefore(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 2)

		due[0].Payload[0] = 'X'
		_, err = s.Remove(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(due))

		again, err := s.DueBefore(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, "payload", string(again[0].Payload))
	})

	t.Run("far future stays pending", func(t *testing.T) {
		s := newStore(t)
		far := jobstore.Record{ID: "far", Key: "k-far", NextRunTime: time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC), Payload: []byte("far")}
		mustAdd(t, s, far)
		mustAdd(t, s, rec("near", time.Minute, "near"))

		due, err := s.DueBefore(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"near"}, ids(due))

		_, err = s.Remove(ctx, "near")
		require.NoError(t, err)
		closest, ok, err := s.ClosestUpcoming(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, closest.Equal(far.NextRunTime), "got %s", closest)

		due, err = s.DueBefore(ctx, far.NextRunTime)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.True(t, due[0].NextRunTime.Equal(far.NextRunTime))
	})

	t.Run("closest upcoming", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.ClosestUpcoming(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		mustAdd(t, s, rec("b", 20*time.Second, ""))
		mustAdd(t, s, rec("a", -5*time.Second, ""))

		closest, ok, err := s.ClosestUpcoming(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, closest.Equal(base.Add(-5*time.Second)))

		// The minimum must be the first record DueBefore would return.
		due, err := s.DueBefore(ctx, closest)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(due))

		_, err = s.Remove(ctx, "a")
		require.NoError(t, err)
		_, err = s.Remove(ctx, "b")
		require.NoError(t, err)
		_, ok, err = s.ClosestUpcoming(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sub-second precision", func(t *testing.T) {
		s := newStore(t)
		mustAdd(t, s, rec("a", 1500*time.Microsecond, ""))
		mustAdd(t, s, rec("b", 1499*time.Microsecond, ""))

		due, err := s.DueBefore(ctx, base.Add(1499*time.Microsecond))
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(due))
	})
}
