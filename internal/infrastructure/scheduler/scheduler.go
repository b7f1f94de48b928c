package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Logger is the logging interface used by Scheduler. It is also
// gocron.Logger, so the same value is handed to gocron.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Scheduler. Zero values select the real clock, the
// local time zone and no logging.
type Options struct {
	Clock    clockwork.Clock
	Location *time.Location
	Logger   Logger
}

// Scheduler runs one-shot timetable timers and periodic maintenance jobs
// on a gocron scheduler.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Scheduler struct {
	scheduler gocron.Scheduler
	clock     clockwork.Clock
	logger    Logger
}

// New creates a stopped Scheduler. Call Start to begin running jobs.
func New(opts Options) (*Scheduler, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	schedOpts := []gocron.SchedulerOption{
		gocron.WithClock(opts.Clock),
		gocron.WithLocation(opts.Location),
	}
	if opts.Logger != nil {
		schedOpts = append(schedOpts, gocron.WithLogger(opts.Logger))
	}

	s, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, clock: opts.Clock, logger: opts.Logger}, nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop removes every job and waits for running ones to finish.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return nil
}

// Once runs fn a single time at the given instant. An instant that is not
// in the future runs fn immediately.
func (s *Scheduler) Once(at time.Time, fn func()) (*OneShot, error) {
	if fn == nil {
		return nil, errors.New("scheduler: nil task")
	}

	start := gocron.OneTimeJobStartImmediately()
	if at.After(s.clock.Now()) {
		start = gocron.OneTimeJobStartDateTime(at)
	}

	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(fn),
		gocron.WithName("timetable-transition"),
		gocron.WithTags("timetable"),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduling one-shot job at %s: %w", at.Format(time.RFC3339), err)
	}
	return &OneShot{scheduler: s.scheduler, id: job.ID()}, nil
}

// Every runs fn every interval, starting one interval from now. A run that
// would overlap the previous one is skipped. It returns the job ID.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("scheduler: interval must be positive, got %v", interval)
	}
	if fn == nil {
		return "", errors.New("scheduler: nil task")
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("scheduling %s: %w", name, err)
	}
	if s.logger != nil {
		s.logger.Debug("periodic job scheduled", "job", name, "interval", interval)
	}
	return job.ID().String(), nil
}

// JobCount returns the number of jobs known to the scheduler.
func (s *Scheduler) JobCount() int {
	return len(s.scheduler.Jobs())
}

// OneShot is the handle of a job created by Once.
type OneShot struct {
	scheduler gocron.Scheduler
	id        uuid.UUID
	once      sync.Once
}

// ID returns the gocron job ID.
func (o *OneShot) ID() uuid.UUID {
	return o.id
}

// Cancel removes the job. Cancelling a job that already ran is a no-op.
func (o *OneShot) Cancel() {
	o.once.Do(func() {
		_ = o.scheduler.RemoveJob(o.id) //nolint:errcheck // ErrJobNotFound once the job has run
	})
}
