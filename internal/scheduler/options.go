package scheduler

import (
	"time"

	"elric-go/internal/job"

	"go.uber.org/zap"
)

const (
	// DefaultMaxWait bounds a single wait when no job is pending.
	DefaultMaxWait = 4294967 * time.Second
	// DefaultDispatchRetry is the shortest wait after a failed enqueue.
	DefaultDispatchRetry = time.Second
)

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLocation sets the zone tick times are expressed in
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMaxWait caps every wait at d
func WithMaxWait(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxWait = d
		}
	}
}

// WithDispatchRetry sets the wait floor applied after a failed enqueue
func WithDispatchRetry(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.dispatchRetry = d
		}
	}
}

// WithRegistry makes Submit reject jobs whose callable is not in reg
func WithRegistry(reg *job.Registry) Option {
	return func(s *Scheduler) {
		s.registry = reg
	}
}

// WithWakeOnUpdate makes Update wake the loop like Submit does
func WithWakeOnUpdate(wake bool) Option {
	return func(s *Scheduler) {
		s.wakeOnUpdate = wake
	}
}

// WithLogger sets the scheduler's logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}
