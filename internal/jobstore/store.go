package jobstore

import (
	"context"
	"time"
)

// Record is a persisted job as the store sees it. Payload is opaque.
type Record struct {
	ID          string
	Key         string
	NextRunTime time.Time
	Payload     []byte
}

// Result is the outcome of a store mutation.
type Result int

const (
	Applied Result = iota
	AlreadyExists
	NotFound
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case AlreadyExists:
		return "already_exists"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Store is an ordered repository of pending jobs. Implementations need not
// be safe for concurrent use; the scheduler serializes every call.
//
// The error return is reserved for backend failures. Duplicate and missing
// ids are reported through Result.
type Store interface {
	// Add inserts rec unless its id is already present.
	Add(ctx context.Context, rec Record) (Result, error)
	// Replace overwrites the record with rec.ID and re-indexes it.
	Replace(ctx context.Context, rec Record) (Result, error)
	Remove(ctx context.Context, id string) (Result, error)
	// DueBefore returns every record with NextRunTime at or before instant,
	// ordered by time and then by insertion.
	DueBefore(ctx context.Context, instant time.Time) ([]Record, error)
	// ClosestUpcoming returns the minimum NextRunTime, false when empty.
	ClosestUpcoming(ctx context.Context) (time.Time, bool, error)
	Count(ctx context.Context) (int, error)
}
