package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"elric-go/internal/job"
	"elric-go/internal/jobstore"
	"elric-go/internal/logging"
	"elric-go/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrInvalidJob wraps every reason a payload is refused before it
	// reaches the store or a queue.
	ErrInvalidJob = errors.New("invalid job")
)

// Outcome reports what a mutation entry point did. Conflicts and misses are
// outcomes, not errors.
type Outcome int

const (
	// OutcomeNone accompanies a returned error.
	OutcomeNone Outcome = iota
	OutcomeEnqueued
	OutcomeScheduled
	OutcomeReplaced
	OutcomeUpdated
	OutcomeRemoved
	OutcomeConflict
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeEnqueued:
		return "enqueued"
	case OutcomeScheduled:
		return "scheduled"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Dispatcher appends a payload to the queue for a routing key.
// *queue.RouteTable implements it.
type Dispatcher interface {
	Enqueue(ctx context.Context, key string, payload []byte) error
}

// Scheduler owns the job store, decides when jobs are due and hands them to
// the dispatcher.
//
// storeMu guards every store call. The dispatcher has its own lock, always
// taken after storeMu.
type Scheduler struct {
	storeMu sync.Mutex
	store   jobstore.Store
	routes  Dispatcher

	wake    chan struct{}
	running atomic.Bool

	clock         func() time.Time
	loc           *time.Location
	maxWait       time.Duration
	dispatchRetry time.Duration
	registry      *job.Registry
	wakeOnUpdate  bool

	log         *zap.SugaredLogger
	dispatchLog rate.Sometimes
}

// New creates a stopped scheduler
func New(store jobstore.Store, routes Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:         store,
		routes:        routes,
		wake:          make(chan struct{}, 1),
		clock:         time.Now,
		loc:           time.Local,
		maxWait:       DefaultMaxWait,
		dispatchRetry: DefaultDispatchRetry,
		log:           logging.Nop(),
		dispatchLog:   rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether Start is executing
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start runs the scheduling loop until ctx is done. It returns
// ErrAlreadyRunning, without touching the running loop, if called twice.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.log.Infow("Scheduler started", "max_wait", s.maxWait, "location", s.loc.String())
	for {
		wait := s.tick(ctx, s.now())
		if !s.wait(ctx, wait) {
			s.log.Infow("Scheduler stopped")
			return nil
		}
	}
}

// WakeUp cuts the current wait short. Calls made while a wake is already
// pending coalesce into it.
func (s *Scheduler) WakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) now() time.Time {
	return s.clock().In(s.loc)
}

// wait blocks for d or until woken. It returns false once ctx is done.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-s.wake:
	}

	// Clear a signal sent while the tick was already on its way.
	select {
	case <-s.wake:
	default:
	}
	return true
}

// tick dispatches every job due at now, advances or retires it, and returns
// how long to wait before the next tick.
func (s *Scheduler) tick(ctx context.Context, now time.Time) time.Duration {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	due, err := s.store.DueBefore(ctx, now)
	if err != nil {
		s.log.Errorw("Failed to load due jobs", "error", err)
		return s.dispatchRetry
	}

	dispatchFailed := false
	for _, rec := range due {
		if err := s.routes.Enqueue(ctx, rec.Key, rec.Payload); err != nil {
			dispatchFailed = true
			metrics.DispatchErrors.WithLabelValues(rec.Key).Inc()
			s.dispatchLog.Do(func() {
				s.log.Errorw("Failed to dispatch due job", "job_id", rec.ID, "job_key", rec.Key, "error", err)
			})
			continue
		}
		metrics.Dispatches.WithLabelValues(rec.Key).Inc()
		s.advanceLocked(ctx, rec, now)
	}

	wait := s.nextWaitLocked(ctx, now)
	if dispatchFailed && wait < s.dispatchRetry {
		wait = s.dispatchRetry
	}
	metrics.NextWakeSeconds.Set(wait.Seconds())
	return wait
}

// advanceLocked moves a dispatched record to the fire time after the last
// elapsed one, or removes it when its trigger is exhausted.
func (s *Scheduler) advanceLocked(ctx context.Context, rec jobstore.Record, now time.Time) {
	j, err := job.Decode(rec.Payload)
	if err != nil {
		s.log.Errorw("Removing job with undecodable payload", "job_id", rec.ID, "error", err)
		s.removeLocked(ctx, rec.ID, "retire")
		return
	}
	if !j.Recurring() {
		// A one-shot payload stored through Update fires once.
		if s.removeLocked(ctx, rec.ID, "retire") {
			metrics.JobsRetired.Inc()
		}
		return
	}

	// The stored time made the record due; the payload copy may be stale.
	j.NextRunTime = rec.NextRunTime
	last, elapsed := j.LastRunTimeUntil(now)
	if elapsed == 0 {
		return
	}
	if missed := elapsed - 1; missed > 0 {
		metrics.MissedRuns.Add(float64(missed))
		s.log.Debugw("Collapsed missed runs", "job_id", rec.ID, "missed", missed)
	}

	next, ok := j.NextAfter(last)
	if !ok {
		if s.removeLocked(ctx, rec.ID, "retire") {
			metrics.JobsRetired.Inc()
			s.log.Debugw("Retired exhausted job", "job_id", rec.ID)
		}
		return
	}

	j.NextRunTime = next
	payload, err := job.Encode(j)
	if err != nil {
		s.log.Errorw("Removing job that cannot be re-encoded", "job_id", rec.ID, "error", err)
		s.removeLocked(ctx, rec.ID, "retire")
		return
	}
	s.replaceLocked(ctx, jobstore.Record{ID: rec.ID, Key: rec.Key, NextRunTime: next, Payload: payload}, "advance")
}

func (s *Scheduler) nextWaitLocked(ctx context.Context, now time.Time) time.Duration {
	if n, err := s.store.Count(ctx); err == nil {
		metrics.StoredJobs.Set(float64(n))
	}

	closest, ok, err := s.store.ClosestUpcoming(ctx)
	if err != nil {
		s.log.Errorw("Failed to query closest job", "error", err)
		return s.dispatchRetry
	}
	if !ok {
		return s.maxWait
	}

	wait := max(closest.Sub(now), 0)
	if wait > s.maxWait {
		wait = s.maxWait
	}
	s.log.Debugw("Next wakeup scheduled", "at", closest, "in", wait)
	return wait
}

// replaceLocked reports whether the record was found
func (s *Scheduler) replaceLocked(ctx context.Context, rec jobstore.Record, op string) bool {
	res, err := s.store.Replace(ctx, rec)
	if err != nil {
		s.log.Errorw("Failed to replace job", "job_id", rec.ID, "operation", op, "error", err)
		return false
	}
	if res == jobstore.NotFound {
		metrics.StoreMisses.WithLabelValues(op).Inc()
		s.log.Errorw("Job does not exist", "job_id", rec.ID, "operation", op)
		return false
	}
	return true
}

// removeLocked reports whether the record was found
func (s *Scheduler) removeLocked(ctx context.Context, id, op string) bool {
	res, err := s.store.Remove(ctx, id)
	if err != nil {
		s.log.Errorw("Failed to remove job", "job_id", id, "operation", op, "error", err)
		return false
	}
	if res == jobstore.NotFound {
		metrics.StoreMisses.WithLabelValues(op).Inc()
		s.log.Errorw("Job does not exist", "job_id", id, "operation", op)
		return false
	}
	return true
}

// Receipt identifies the job a submission resolved to and what became of it.
type Receipt struct {
	JobID   string
	Outcome Outcome
}

// Submit accepts a serialized job under the routing key. A job without a
// trigger is enqueued at once and never stored. Otherwise it is added to the
// store, replacing an existing id only when replace is set, and the loop is
// woken.
func (s *Scheduler) Submit(ctx context.Context, payload []byte, key, id string, replace bool) (Outcome, error) {
	r, err := s.SubmitWithReceipt(ctx, payload, key, id, replace)
	return r.Outcome, err
}

// SubmitWithReceipt is Submit, also reporting the job id used. An empty id
// falls back to the one inside the payload.
func (s *Scheduler) SubmitWithReceipt(ctx context.Context, payload []byte, key, id string, replace bool) (Receipt, error) {
	j, err := s.decode(payload, key)
	if err != nil {
		return Receipt{JobID: id}, err
	}
	if id == "" {
		id = j.ID
	}
	if id == "" {
		return Receipt{}, fmt.Errorf("%w: job id required", ErrInvalidJob)
	}
	r := Receipt{JobID: id}

	s.log.Debugw("Submit job", "job_id", id, "job_key", key, "recurring", j.Recurring())

	if !j.Recurring() {
		if err := s.routes.Enqueue(ctx, key, payload); err != nil {
			metrics.DispatchErrors.WithLabelValues(key).Inc()
			return r, fmt.Errorf("submit job %s: %w", id, err)
		}
		metrics.Dispatches.WithLabelValues(key).Inc()
		metrics.Submissions.WithLabelValues(OutcomeEnqueued.String()).Inc()
		r.Outcome = OutcomeEnqueued
		return r, nil
	}

	if j.NextRunTime.IsZero() {
		return r, fmt.Errorf("%w: job %s has a trigger but no next run time", ErrInvalidJob, id)
	}

	r.Outcome, err = s.persist(ctx, jobstore.Record{ID: id, Key: key, NextRunTime: j.NextRunTime, Payload: payload}, replace)
	s.WakeUp()
	if err != nil {
		return r, fmt.Errorf("submit job %s: %w", id, err)
	}
	metrics.Submissions.WithLabelValues(r.Outcome.String()).Inc()
	return r, nil
}

func (s *Scheduler) persist(ctx context.Context, rec jobstore.Record, replace bool) (Outcome, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	res, err := s.store.Add(ctx, rec)
	if err != nil {
		return OutcomeNone, err
	}
	if res == jobstore.Applied {
		return OutcomeScheduled, nil
	}

	if !replace {
		s.log.Warnw("Job already exists", "job_id", rec.ID, "job_key", rec.Key)
		return OutcomeConflict, nil
	}
	res, err = s.store.Replace(ctx, rec)
	if err != nil {
		return OutcomeNone, err
	}
	if res == jobstore.NotFound {
		return OutcomeNotFound, nil
	}
	return OutcomeReplaced, nil
}

// Update overwrites a stored job. A missing id is logged and reported as
// OutcomeNotFound.
func (s *Scheduler) Update(ctx context.Context, id, key string, nextRunTime time.Time, payload []byte) (Outcome, error) {
	if id == "" {
		return OutcomeNone, fmt.Errorf("%w: job id required", ErrInvalidJob)
	}
	if nextRunTime.IsZero() {
		return OutcomeNone, fmt.Errorf("%w: job %s needs a next run time", ErrInvalidJob, id)
	}
	if _, err := s.decode(payload, key); err != nil {
		return OutcomeNone, err
	}

	outcome, err := s.update(ctx, jobstore.Record{ID: id, Key: key, NextRunTime: nextRunTime, Payload: payload})
	if err != nil {
		return outcome, fmt.Errorf("update job %s: %w", id, err)
	}
	if s.wakeOnUpdate {
		s.WakeUp()
	}
	return outcome, nil
}

func (s *Scheduler) update(ctx context.Context, rec jobstore.Record) (Outcome, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	res, err := s.store.Replace(ctx, rec)
	if err != nil {
		return OutcomeNone, err
	}
	if res == jobstore.NotFound {
		metrics.StoreMisses.WithLabelValues("update").Inc()
		s.log.Errorw("Update job error, job does not exist", "job_id", rec.ID)
		return OutcomeNotFound, nil
	}
	return OutcomeUpdated, nil
}

// Remove deletes a stored job. A missing id is logged and reported as
// OutcomeNotFound.
func (s *Scheduler) Remove(ctx context.Context, id string) (Outcome, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	res, err := s.store.Remove(ctx, id)
	if err != nil {
		return OutcomeNone, fmt.Errorf("remove job %s: %w", id, err)
	}
	if res == jobstore.NotFound {
		metrics.StoreMisses.WithLabelValues("remove").Inc()
		s.log.Errorw("Remove job error, job does not exist", "job_id", id)
		return OutcomeNotFound, nil
	}
	return OutcomeRemoved, nil
}

// Count returns the number of stored jobs
func (s *Scheduler) Count(ctx context.Context) (int, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.store.Count(ctx)
}

func (s *Scheduler) decode(payload []byte, key string) (*job.Job, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: routing key required", ErrInvalidJob)
	}
	j, err := job.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if s.registry != nil {
		if err := j.Validate(s.registry); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
		}
	}
	return j, nil
}
