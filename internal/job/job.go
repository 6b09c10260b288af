package job

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"elric-go/internal/trigger"

	"github.com/google/uuid"
)

// Job is a unit of deferred or recurring work
type Job struct {
	ID     string
	Func   string
	Args   []any
	Kwargs map[string]any
	// Trigger is nil for one-shot jobs that fire immediately.
	Trigger trigger.Trigger
	// NextRunTime is zero when the job has no pending fire.
	NextRunTime time.Time
	FilterKey   string
	FilterValue string
}

// Options configures New. Exactly one of Func and Callable must be set.
type Options struct {
	ID          string
	Func        string
	Callable    *Callable
	Args        []any
	Kwargs      map[string]any
	Trigger     trigger.Trigger
	NextRunTime time.Time
	FilterKey   string
	FilterValue string
}

// New builds a job, resolving its callable and validating its arguments.
func New(reg *Registry, opts Options) (*Job, error) {
	callable := opts.Callable
	if callable == nil {
		if strings.TrimSpace(opts.Func) == "" {
			return nil, errors.New("job needs a callable reference")
		}
		if reg == nil {
			return nil, fmt.Errorf("%w: %s (no registry)", ErrCallableNotFound, opts.Func)
		}
		c, err := reg.Resolve(opts.Func)
		if err != nil {
			return nil, err
		}
		callable = c
	}

	j := &Job{
		ID:          opts.ID,
		Func:        callable.Ref,
		Args:        append([]any(nil), opts.Args...),
		Kwargs:      make(map[string]any, len(opts.Kwargs)),
		Trigger:     opts.Trigger,
		NextRunTime: opts.NextRunTime,
		FilterKey:   opts.FilterKey,
		FilterValue: opts.FilterValue,
	}
	for k, v := range opts.Kwargs {
		j.Kwargs[k] = v
	}
	if j.ID == "" {
		j.ID = NewID()
	}
	if j.Trigger != nil && j.NextRunTime.IsZero() {
		if next, ok := j.Trigger.NextFireTime(time.Time{}, time.Time{}); ok {
			j.NextRunTime = next
		}
	}

	if err := callable.Signature.CheckArgs(j.Args, j.Kwargs); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	return j, nil
}

// NewID returns a random job identifier
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Validate resolves the job's callable in reg and checks its arguments.
func (j *Job) Validate(reg *Registry) error {
	c, err := reg.Resolve(j.Func)
	if err != nil {
		return err
	}
	if err := c.Signature.CheckArgs(j.Args, j.Kwargs); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	return nil
}

// Recurring reports whether the job carries a trigger.
func (j *Job) Recurring() bool {
	return j.Trigger != nil
}

// RunTimesUntil lists every fire instant at or before now, starting at
// NextRunTime. More than one instant means fires were missed.
func (j *Job) RunTimesUntil(now time.Time) []time.Time {
	var runTimes []time.Time
	j.walkRunTimes(now, func(t time.Time) {
		runTimes = append(runTimes, t)
	})
	return runTimes
}

// LastRunTimeUntil returns the latest fire instant at or before now and how
// many instants elapsed, without keeping them. Zero count means not due.
func (j *Job) LastRunTimeUntil(now time.Time) (time.Time, int) {
	var (
		last  time.Time
		count int
	)
	j.walkRunTimes(now, func(t time.Time) {
		last = t
		count++
	})
	return last, count
}

func (j *Job) walkRunTimes(now time.Time, visit func(time.Time)) {
	if j.Trigger == nil {
		return
	}
	next := j.NextRunTime
	for !next.IsZero() && !next.After(now) {
		visit(next)
		following, ok := j.Trigger.NextFireTime(next, now)
		if !ok || !following.After(next) {
			return
		}
		next = following
	}
}

// NextAfter returns the fire time following runTime, false when exhausted.
func (j *Job) NextAfter(runTime time.Time) (time.Time, bool) {
	if j.Trigger == nil {
		return time.Time{}, false
	}
	return j.Trigger.NextFireTime(runTime, time.Time{})
}
