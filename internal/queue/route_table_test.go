package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingQueue struct{ err error }

func (q failingQueue) Enqueue(context.Context, []byte) error { return q.err }

func TestRouteTable_CreatesQueueOncePerKey(t *testing.T) {
	broker := NewMemoryBroker()
	opened := map[string]int{}
	rt := NewRouteTable(func(key string) (Queue, error) {
		opened[key]++
		return broker.Queue(key), nil
	})
	ctx := context.Background()

	require.NoError(t, rt.Enqueue(ctx, "k1", []byte("a")))
	require.NoError(t, rt.Enqueue(ctx, "k1", []byte("b")))
	require.NoError(t, rt.Enqueue(ctx, "k2", []byte("c")))

	assert.Equal(t, map[string]int{"k1": 1, "k2": 1}, opened)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, broker.Queue("k1").Items())
	assert.Equal(t, 1, broker.Len("k2"))
	assert.Equal(t, []string{"k1", "k2"}, rt.Routes())
}

func TestRouteTable_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	rt := NewRouteTable(func(key string) (Queue, error) { return nil, boom })
	err := rt.Enqueue(ctx, "k", []byte("x"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rt.Routes(), "a failed open is not cached")

	rt = NewRouteTable(func(key string) (Queue, error) { return failingQueue{err: boom}, nil })
	err = rt.Enqueue(ctx, "k", []byte("x"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"k"}, rt.Routes())

	assert.ErrorIs(t, rt.Enqueue(ctx, "", []byte("x")), ErrEmptyKey)
}

func TestRouteTable_ConcurrentEnqueue(t *testing.T) {
	broker := NewMemoryBroker()
	rt := NewRouteTable(broker.Factory())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rt.Enqueue(ctx, "shared", []byte("p")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, broker.Len("shared"))
}

func TestMemoryQueue_CopiesPayload(t *testing.T) {
	q := &MemoryQueue{}
	payload := []byte("abc")
	require.NoError(t, q.Enqueue(context.Background(), payload))
	payload[0] = 'z'

	assert.Equal(t, "abc", string(q.Items()[0]))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, q.Enqueue(ctx, payload))
	assert.Equal(t, 1, q.Len())
}
