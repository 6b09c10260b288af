package jobstore

import (
	"context"
	"slices"
	"time"
)

type memEntry struct {
	rec Record
	seq uint64
}

// MemoryStore keeps records in memory, sorted by (NextRunTime, insertion).
// It is not safe for concurrent use.
type MemoryStore struct {
	byID    map[string]*memEntry
	ordered []*memEntry
	nextSeq uint64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*memEntry),
	}
}

func compareEntries(a, b *memEntry) int {
	if c := a.rec.NextRunTime.Compare(b.rec.NextRunTime); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

func (s *MemoryStore) insert(e *memEntry) {
	i, _ := slices.BinarySearchFunc(s.ordered, e, compareEntries)
	s.ordered = slices.Insert(s.ordered, i, e)
}

func (s *MemoryStore) unlink(e *memEntry) {
	i, found := slices.BinarySearchFunc(s.ordered, e, compareEntries)
	if found {
		s.ordered = slices.Delete(s.ordered, i, i+1)
	}
}

func (s *MemoryStore) Add(_ context.Context, rec Record) (Result, error) {
	if _, ok := s.byID[rec.ID]; ok {
		return AlreadyExists, nil
	}
	s.nextSeq++
	e := &memEntry{rec: cloneRecord(rec), seq: s.nextSeq}
	s.byID[rec.ID] = e
	s.insert(e)
	return Applied, nil
}

// Replace keeps the record's original insertion position for tie-breaks.
func (s *MemoryStore) Replace(_ context.Context, rec Record) (Result, error) {
	e, ok := s.byID[rec.ID]
	if !ok {
		return NotFound, nil
	}
	s.unlink(e)
	e.rec = cloneRecord(rec)
	s.insert(e)
	return Applied, nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) (Result, error) {
	e, ok := s.byID[id]
	if !ok {
		return NotFound, nil
	}
	s.unlink(e)
	delete(s.byID, id)
	return Applied, nil
}

func (s *MemoryStore) DueBefore(_ context.Context, instant time.Time) ([]Record, error) {
	var due []Record
	for _, e := range s.ordered {
		if e.rec.NextRunTime.After(instant) {
			break
		}
		due = append(due, cloneRecord(e.rec))
	}
	return due, nil
}

func (s *MemoryStore) ClosestUpcoming(_ context.Context) (time.Time, bool, error) {
	if len(s.ordered) == 0 {
		return time.Time{}, false, nil
	}
	return s.ordered[0].rec.NextRunTime, true, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	return len(s.byID), nil
}

func cloneRecord(rec Record) Record {
	rec.Payload = slices.Clone(rec.Payload)
	return rec
}
