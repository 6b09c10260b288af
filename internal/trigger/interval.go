package trigger

import (
	"fmt"
	"time"
)

// Interval fires every Every, starting one interval after Start.
type Interval struct {
	Every time.Duration
	Start time.Time
	End   time.Time // zero means no end
}

// NewInterval creates an interval trigger. A zero start means now.
func NewInterval(every time.Duration, start, end time.Time) (*Interval, error) {
	if every <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidParams, every)
	}
	if start.IsZero() {
		start = time.Now()
	}
	if !end.IsZero() && end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidParams, end, start)
	}
	return &Interval{Every: every, Start: start, End: end}, nil
}

// NextFireTime implements Trigger.
func (t *Interval) NextFireTime(prev, _ time.Time) (time.Time, bool) {
	base := prev
	if base.IsZero() {
		base = t.Start
	}
	next := base.Add(t.Every)
	if pastEnd(next, t.End) {
		return time.Time{}, false
	}
	return next, true
}

type intervalParams struct {
	Every string     `json:"every"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

func (t *Interval) params() intervalParams {
	p := intervalParams{Every: t.Every.String(), Start: t.Start}
	if !t.End.IsZero() {
		end := t.End
		p.End = &end
	}
	return p
}

func (p intervalParams) trigger() (Trigger, error) {
	every, err := time.ParseDuration(p.Every)
	if err != nil {
		return nil, fmt.Errorf("%w: interval: %v", ErrInvalidParams, err)
	}
	if p.Start.IsZero() {
		return nil, fmt.Errorf("%w: interval: start is required", ErrInvalidParams)
	}
	var end time.Time
	if p.End != nil {
		end = *p.End
	}
	return NewInterval(every, p.Start, end)
}
