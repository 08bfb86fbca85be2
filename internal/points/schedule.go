package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/orgadmin/internal/store"
)

// Week is the unit of repeating distributions.
const Week = 7 * 24 * time.Hour

// DefaultIdle is how long Run sleeps when no job is scheduled.
const DefaultIdle = time.Hour

// Clock tells the scheduler the time and wakes it up.
// Implemented by SystemClock (production) and testutil.FakeClock (tests).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Runner runs one distribution for a scheduled time.
// Implemented by Distributor.
type Runner interface {
	Run(ctx context.Context, dist store.Distribution, at time.Time) (Result, error)
}

// Source lists the active distributions of a type.
// Implemented by store.Store.
type Source interface {
	ActiveDistributions(ctx context.Context, typ int) ([]store.Distribution, error)
}

// JobID names the job for a distribution type. There is one job per type,
// so scheduling a type again replaces its job.
func JobID(typ int) string {
	if typ == Temporary {
		return "temporary_point_distribute"
	}
	return fmt.Sprintf("%dweeks_interval_point_distribute", typ)
}

// Job is a scheduled distribution.
type Job struct {
	ID           string
	Distribution store.Distribution
	Next         time.Time     // next run time
	Interval     time.Duration // zero for a one-shot job
}

// Scheduler runs distributions at their start time: temporary ones once,
// weekly and biweekly ones every Type weeks from then on.
//
// Jobs live in memory only. Run and Tick may be called from one goroutine;
// Add, Register, Remove and Jobs are safe from any goroutine.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	runner Runner
	clock  Clock
	logger *slog.Logger
	wake   chan struct{}
	idle   time.Duration
}

// NewScheduler creates an empty scheduler. A nil logger uses slog.Default().
func NewScheduler(runner Runner, clock Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:   make(map[string]*Job),
		runner: runner,
		clock:  clock,
		logger: logger,
		wake:   make(chan struct{}, 1),
		idle:   DefaultIdle,
	}
}

// Add schedules dist, replacing any job of the same type.
func (s *Scheduler) Add(dist store.Distribution) (Job, error) {
	if err := validate(dist); err != nil {
		return Job{}, err
	}
	start, err := dist.Start()
	if err != nil {
		return Job{}, err
	}

	job := Job{ID: JobID(dist.Type), Distribution: dist, Next: start.UTC()}
	if dist.Type != Temporary {
		job.Interval = time.Duration(dist.Type) * Week
	}

	s.mu.Lock()
	_, replaced := s.jobs[job.ID]
	s.jobs[job.ID] = &job
	s.mu.Unlock()
	s.notify()

	s.logger.Info("scheduled distribution",
		"job", job.ID,
		"distribution", dist.ID,
		"next", job.Next.Format(time.RFC3339),
		"replaced", replaced)
	return job, nil
}

// Register schedules the active distribution of typ. Exactly one
// distribution of a type may be active.
func (s *Scheduler) Register(ctx context.Context, src Source, typ int) (Job, error) {
	dist, err := Active(ctx, src, typ)
	if err != nil {
		return Job{}, err
	}
	return s.Add(dist)
}

// Active returns the one active distribution of typ.
func Active(ctx context.Context, src Source, typ int) (store.Distribution, error) {
	dists, err := src.ActiveDistributions(ctx, typ)
	if err != nil {
		return store.Distribution{}, err
	}
	switch len(dists) {
	case 0:
		return store.Distribution{}, fmt.Errorf("%w: type %d", ErrNoActiveDistribution, typ)
	case 1:
		return dists[0], nil
	default:
		return store.Distribution{}, fmt.Errorf("%w: type %d has %d", ErrAmbiguousDistribution, typ, len(dists))
	}
}

// Remove unschedules a job. It reports whether the job existed.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// Jobs returns the scheduled jobs sorted by ID.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Tick runs every job due at the clock's current time, earliest first.
//
// A repeating job that missed several runs runs once and then moves to its
// first run time after now. A run that already happened is logged and
// skipped. Other failures are collected and returned after every due job
// has been tried.
func (s *Scheduler) Tick(ctx context.Context) ([]Result, error) {
	now := s.clock.Now()

	var results []Result
	var errs []error
	for _, job := range s.due(now) {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := s.runner.Run(ctx, job.Distribution, job.Next)
		switch {
		case err == nil:
			results = append(results, res)
		case errors.Is(err, ErrAlreadyDistributed):
			s.logger.Warn("skipping distribution that already ran", "job", job.ID, "error", err)
		default:
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
		}
		s.advance(job, now)
	}
	return results, errors.Join(errs...)
}

// Run ticks until ctx is cancelled, sleeping until the next job is due.
// Adding a job wakes it.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled distribution failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.untilNext()):
		case <-s.wake:
		}
	}
}

// due returns copies of the jobs whose next run is at or before now.
func (s *Scheduler) due(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, j := range s.jobs {
		if !j.Next.After(now) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].Next.Equal(out[k].Next) {
			return out[i].Next.Before(out[k].Next)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// advance moves a job past now after it ran, or drops it when it was a
// one-shot. A job replaced while it ran is left alone.
func (s *Scheduler) advance(ran Job, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[ran.ID]
	if !ok || !j.Next.Equal(ran.Next) || j.Distribution.ID != ran.Distribution.ID {
		return
	}
	if j.Interval <= 0 {
		delete(s.jobs, j.ID)
		return
	}
	for !j.Next.After(now) {
		j.Next = j.Next.Add(j.Interval)
	}
}

func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) == 0 {
		return s.idle
	}
	var next time.Time
	for _, j := range s.jobs {
		if next.IsZero() || j.Next.Before(next) {
			next = j.Next
		}
	}
	if d := next.Sub(s.clock.Now()); d > 0 {
		return d
	}
	return 0
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
