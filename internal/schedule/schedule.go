// Package schedule wraps a gocron scheduler for the dashboard's timed work:
// the repeating poll and deferred one-shot tasks.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidInterval is returned for non-positive repeat intervals.
var ErrInvalidInterval = errors.New("schedule: interval must be positive")

// Scheduler runs jobs on a single started gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// Job is a handle on a scheduled task.
type Job struct {
	job gocron.Job
}

// New creates and starts a scheduler.
func New(logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	s.Start()
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Every runs fn now and then every interval until the job is removed.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) (*Job, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create repeating job %q: %w", name, err)
	}
	s.logger.Debug("scheduled repeating job",
		zap.String("name", name),
		zap.Duration("interval", interval),
		zap.String("job_id", job.ID().String()),
	)
	return &Job{job: job}, nil
}

// After runs fn once after delay. The job leaves the scheduler after it runs.
func (s *Scheduler) After(name string, delay time.Duration, fn func()) (*Job, error) {
	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}
	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithLimitedRuns(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create one-time job %q: %w", name, err)
	}
	return &Job{job: job}, nil
}

// Remove cancels future runs of j. A run already in progress is not interrupted.
func (s *Scheduler) Remove(j *Job) error {
	if j == nil {
		return nil
	}
	if err := s.scheduler.RemoveJob(j.job.ID()); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		return fmt.Errorf("remove job %s: %w", j.job.Name(), err)
	}
	return nil
}

// Len reports the number of jobs currently scheduled.
func (s *Scheduler) Len() int {
	return len(s.scheduler.Jobs())
}

// Shutdown stops the scheduler and waits for running tasks to return.
func (s *Scheduler) Shutdown() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// ID returns the job's identifier.
func (j *Job) ID() uuid.UUID {
	return j.job.ID()
}

// Name returns the job's name.
func (j *Job) Name() string {
	return j.job.Name()
}

// RunNow runs the task immediately without changing its schedule.
func (j *Job) RunNow() error {
	if err := j.job.RunNow(); err != nil {
		return fmt.Errorf("run job %s now: %w", j.job.Name(), err)
	}
	return nil
}
