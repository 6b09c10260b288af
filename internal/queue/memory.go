package queue

import (
	"context"
	"slices"
	"sync"
)

// MemoryQueue is an in-process FIFO, used for single-box runs and tests.
type MemoryQueue struct {
	mu    sync.Mutex
	items [][]byte
}

func (q *MemoryQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, slices.Clone(payload))
	return nil
}

// Items returns a copy of the queued payloads, oldest first
func (q *MemoryQueue) Items() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.items))
	for i, item := range q.items {
		out[i] = slices.Clone(item)
	}
	return out
}

// Len returns the number of queued payloads
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// MemoryBroker owns one MemoryQueue per routing key.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*MemoryQueue
}

// NewMemoryBroker creates an empty broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]*MemoryQueue)}
}

// Factory returns a Factory backed by the broker
func (b *MemoryBroker) Factory() Factory {
	return func(key string) (Queue, error) {
		return b.Queue(key), nil
	}
}

// Queue returns the queue for key, creating it if needed
func (b *MemoryBroker) Queue(key string) *MemoryQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[key]
	if !ok {
		q = &MemoryQueue{}
		b.queues[key] = q
	}
	return q
}

// Len returns the number of payloads queued under key
func (b *MemoryBroker) Len(key string) int {
	b.mu.Lock()
	q, ok := b.queues[key]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return q.Len()
}
