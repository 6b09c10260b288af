package trigger

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // timezone names in stored cron triggers

	"github.com/robfig/cron/v3"
)

// SecondOptional allows both 5-field and 6-field (with seconds) specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron fires on every match of a cron expression evaluated in Location.
type Cron struct {
	Expr     string
	Location *time.Location
	Start    time.Time
	End      time.Time // zero means no end

	schedule cron.Schedule
}

// NewCron parses expr. A nil location means UTC, a zero start means now.
func NewCron(expr string, loc *time.Location, start, end time.Time) (*Cron, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: cron expression required", ErrInvalidParams)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidParams, expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if start.IsZero() {
		start = time.Now()
	}
	return &Cron{Expr: expr, Location: loc, Start: start, End: end, schedule: sched}, nil
}

// NextFireTime implements Trigger. Without prev the first match after ref
// is used, falling back to Start when ref is zero.
func (t *Cron) NextFireTime(prev, ref time.Time) (time.Time, bool) {
	base := prev
	if base.IsZero() {
		base = ref
	}
	if base.IsZero() {
		base = t.Start
	}
	next := t.schedule.Next(base.In(t.Location))
	if next.IsZero() || pastEnd(next, t.End) {
		return time.Time{}, false
	}
	return next, true
}

type cronParams struct {
	Expr     string     `json:"expr"`
	Timezone string     `json:"timezone,omitempty"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
}

func (t *Cron) params() cronParams {
	p := cronParams{Expr: t.Expr, Timezone: t.Location.String(), Start: t.Start}
	if !t.End.IsZero() {
		end := t.End
		p.End = &end
	}
	return p
}

func (p cronParams) trigger() (Trigger, error) {
	loc := time.UTC
	if p.Timezone != "" {
		l, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: cron timezone %q: %v", ErrInvalidParams, p.Timezone, err)
		}
		loc = l
	}
	if p.Start.IsZero() {
		return nil, fmt.Errorf("%w: cron: start is required", ErrInvalidParams)
	}
	var end time.Time
	if p.End != nil {
		end = *p.End
	}
	return NewCron(p.Expr, loc, p.Start, end)
}
