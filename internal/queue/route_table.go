package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// RouteTable maps routing keys to queues, opening each on first use.
// Entries live for the life of the table.
type RouteTable struct {
	mu      sync.Mutex
	factory Factory
	queues  map[string]Queue
}

// NewRouteTable creates a route table that opens queues with factory
func NewRouteTable(factory Factory) *RouteTable {
	return &RouteTable{
		factory: factory,
		queues:  make(map[string]Queue),
	}
}

// Enqueue appends payload to the queue for key. The table lock is held
// through the append.
func (rt *RouteTable) Enqueue(ctx context.Context, key string, payload []byte) error {
	if key == "" {
		return ErrEmptyKey
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	q, ok := rt.queues[key]
	if !ok {
		var err error
		q, err = rt.factory(key)
		if err != nil {
			return fmt.Errorf("failed to open queue %s: %w", key, err)
		}
		rt.queues[key] = q
	}

	if err := q.Enqueue(ctx, payload); err != nil {
		return fmt.Errorf("failed to enqueue to %s: %w", key, err)
	}
	return nil
}

// Routes returns the routing keys seen so far, sorted
func (rt *RouteTable) Routes() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	keys := make([]string, 0, len(rt.queues))
	for k := range rt.queues {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
