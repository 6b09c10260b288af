// Package queue hands due job payloads to the distributed queues workers drain.
package queue

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned when a payload is routed without a routing key.
var ErrEmptyKey = errors.New("routing key cannot be empty")

// Queue is a FIFO for one routing key. Delivery guarantees belong to the
// implementation.
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// Factory opens the queue for a routing key.
type Factory func(key string) (Queue, error)
