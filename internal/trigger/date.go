package trigger

import (
	"fmt"
	"time"
)

// Date fires exactly once.
type Date struct {
	RunAt time.Time
}

func NewDate(runAt time.Time) (*Date, error) {
	if runAt.IsZero() {
		return nil, fmt.Errorf("%w: run date required", ErrInvalidParams)
	}
	return &Date{RunAt: runAt}, nil
}

// NextFireTime implements Trigger.
func (t *Date) NextFireTime(prev, _ time.Time) (time.Time, bool) {
	if !prev.IsZero() {
		return time.Time{}, false
	}
	return t.RunAt, true
}

type dateParams struct {
	RunAt time.Time `json:"run_at"`
}

func (t *Date) params() dateParams {
	return dateParams{RunAt: t.RunAt}
}

func (p dateParams) trigger() (Trigger, error) {
	return NewDate(p.RunAt)
}
