// Package poller keeps the displayed job page in step with the backend. It
// owns the single repeating poll job for an authenticated session and applies
// fetched pages only while they still answer the current query.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/clock/system"
	"github.com/JakeFAU/crawldash/internal/errs"
	"github.com/JakeFAU/crawldash/internal/events"
	"github.com/JakeFAU/crawldash/internal/metrics"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/schedule"
	"github.com/JakeFAU/crawldash/internal/session"
)

// DefaultInterval is the time between regular polls.
const DefaultInterval = 5 * time.Second

const jobName = "poll-jobs"

// Fetcher lists one page of jobs.
type Fetcher interface {
	ListJobs(ctx context.Context, p query.Params) (model.ListResponse, error)
}

// Auth reports and broadcasts the authentication state. *session.Session satisfies it.
type Auth interface {
	Authenticated() bool
	Subscribe(fn session.Listener) func()
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Applied is one page accepted by the synchronizer.
type Applied struct {
	Page model.Page
	// QueryVersion is the query revision the page was fetched for.
	QueryVersion uint64
	// QueryChanged is true for the first page applied for QueryVersion.
	QueryChanged bool
	// Seq increases with every applied page. Listeners may be called
	// concurrently and should ignore an Applied older than one already seen.
	Seq uint64
}

// ApplyFunc observes applied pages.
type ApplyFunc func(Applied)

// Snapshot is a consistent view of the synchronizer.
type Snapshot struct {
	Page         model.Page
	QueryVersion uint64
	Seq          uint64
	Running      bool
	Loading      bool
	LastSync     time.Time
	LastErr      error
}

// Config controls polling.
type Config struct {
	Interval time.Duration
}

// Synchronizer periodically fetches the page described by a query.State.
type Synchronizer struct {
	fetcher  Fetcher
	query    *query.State
	sched    *schedule.Scheduler
	emitter  events.Emitter
	clock    Clock
	logger   *zap.Logger
	interval time.Duration

	mu             sync.Mutex
	running        bool
	generation     uint64
	runCtx         context.Context
	cancel         context.CancelFunc
	job            *schedule.Job
	page           model.Page
	appliedVersion uint64
	seq            uint64
	inFlight       int
	lastSync       time.Time
	lastErr        error
	listeners      []ApplyFunc

	unsubscribe func()
}

// New builds a Synchronizer and ties its lifecycle to auth: polling starts
// when the session becomes authenticated and stops when it is invalidated.
// emitter, clock, and logger may be nil.
func New(
	cfg Config,
	fetcher Fetcher,
	q *query.State,
	sched *schedule.Scheduler,
	auth Auth,
	emitter events.Emitter,
	clock Clock,
	logger *zap.Logger,
) (*Synchronizer, error) {
	if fetcher == nil || q == nil || sched == nil {
		return nil, errors.New("poller: fetcher, query state, and scheduler are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if emitter == nil {
		emitter = events.Discard
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Synchronizer{
		fetcher:  fetcher,
		query:    q,
		sched:    sched,
		emitter:  emitter,
		clock:    clock,
		logger:   logger,
		interval: cfg.Interval,
	}
	if auth != nil {
		s.unsubscribe = auth.Subscribe(func(authenticated bool) {
			if authenticated {
				if err := s.Start(); err != nil {
					s.logger.Error("failed to start polling", zap.Error(err))
				}
				return
			}
			s.Stop()
		})
	}
	return s, nil
}

// OnApply registers fn to be called after each applied page.
func (s *Synchronizer) OnApply(fn ApplyFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Start schedules the repeating poll, running the first fetch immediately.
// It is a no-op while already running.
func (s *Synchronizer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.generation++
	s.runCtx, s.cancel = ctx, cancel
	s.running = true
	job, err := s.sched.Every(jobName, s.interval, s.poll)
	if err != nil {
		s.running = false
		cancel()
		return fmt.Errorf("schedule poll: %w", err)
	}
	s.job = job
	metrics.SetPollActive(true)
	s.logger.Info("polling started", zap.Duration("interval", s.interval))
	return nil
}

// Stop removes the poll job, abandons in-flight fetches, and clears the held
// page. It is a no-op while stopped.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.generation++
	s.cancel()
	job := s.job
	s.job = nil
	s.page = model.Page{}
	s.appliedVersion = 0
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.sched.Remove(job); err != nil {
		s.logger.Warn("failed to remove poll job", zap.Error(err))
	}
	metrics.SetPollActive(false)
	s.logger.Info("polling stopped")
}

// Resync requests an immediate out-of-cycle fetch without touching the
// repeating schedule. It is a no-op while stopped.
func (s *Synchronizer) Resync() {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		return
	}
	if err := job.RunNow(); err != nil {
		s.logger.Debug("resync request failed", zap.Error(err))
	}
}

// Refresh runs one fetch-and-apply cycle on the caller's goroutine.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	return s.cycle(ctx, gen)
}

// Current returns the applied page and the query version it answers.
func (s *Synchronizer) Current() (model.Page, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.appliedVersion
}

// Snapshot returns the synchronizer's state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Page:         s.page,
		QueryVersion: s.appliedVersion,
		Seq:          s.seq,
		Running:      s.running,
		Loading:      s.inFlight > 0,
		LastSync:     s.lastSync,
		LastErr:      s.lastErr,
	}
}

// Running reports whether the poll job is scheduled.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close detaches from the session and stops polling.
func (s *Synchronizer) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Stop()
}

func (s *Synchronizer) poll() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx, gen := s.runCtx, s.generation
	s.mu.Unlock()
	// Failures are absorbed; the next tick retries.
	_ = s.cycle(ctx, gen)
}

func (s *Synchronizer) cycle(ctx context.Context, gen uint64) error {
	params := s.query.Snapshot()
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()

	start := s.clock.Now()
	resp, err := s.fetcher.ListJobs(ctx, params)
	now := s.clock.Now()
	dur := max(now.Sub(start), 0)

	s.mu.Lock()
	s.inFlight--
	if err != nil {
		if gen == s.generation {
			s.lastErr = err
		}
		s.mu.Unlock()
		s.failed(params, dur, err)
		return err
	}
	if gen != s.generation || params.Version != s.query.Version() {
		s.mu.Unlock()
		metrics.ObservePollFetch(metrics.OutcomeDiscarded)
		s.emitter.Emit(events.Event{Kind: events.KindPollDiscarded, QueryVersion: params.Version, Dur: dur})
		s.logger.Debug("discarded stale page", zap.Uint64("query_version", params.Version))
		return nil
	}
	page := model.NormalizeList(resp)
	s.seq++
	applied := Applied{
		Page:         page,
		QueryVersion: params.Version,
		QueryChanged: params.Version != s.appliedVersion,
		Seq:          s.seq,
	}
	s.page = page
	s.appliedVersion = params.Version
	s.lastSync = now
	s.lastErr = nil
	listeners := append([]ApplyFunc(nil), s.listeners...)
	s.mu.Unlock()

	metrics.ObservePollFetch(metrics.OutcomeApplied)
	s.emitter.Emit(events.Event{
		Kind:         events.KindPollApplied,
		QueryVersion: params.Version,
		Rows:         len(page.Rows),
		Dur:          dur,
	})
	for _, fn := range listeners {
		fn(applied)
	}
	return nil
}

func (s *Synchronizer) failed(params query.Params, dur time.Duration, err error) {
	metrics.ObservePollFetch(metrics.OutcomeFailed)
	s.emitter.Emit(events.Event{
		Kind:         events.KindPollFailed,
		QueryVersion: params.Version,
		Dur:          dur,
		Note:         err.Error(),
	})
	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Debug("poll canceled", zap.Uint64("query_version", params.Version))
	case errs.Is(err, errs.KindAuthentication):
		s.logger.Warn("poll rejected by backend; waiting for sign in", zap.Error(err))
	default:
		s.logger.Warn("poll failed; keeping previous page", zap.Error(err))
	}
}
