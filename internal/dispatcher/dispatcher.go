// Package dispatcher performs user-triggered mutations against the backend
// and asks the poller for an immediate resync after each one.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/errs"
	"github.com/JakeFAU/crawldash/internal/events"
	"github.com/JakeFAU/crawldash/internal/metrics"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/schedule"
)

// Defaults for Config.
const (
	DefaultAutoStartDelay = time.Second
	DefaultActionTimeout  = 15 * time.Second
)

// Backend is the mutation half of the backend client.
type Backend interface {
	AddJob(ctx context.Context, rawURL string) (model.JobRecord, error)
	StartJob(ctx context.Context, id int64) error
	StopJob(ctx context.Context, id int64) error
	Bulk(ctx context.Context, ids []int64, action model.BulkAction) error
}

// Resyncer requests an immediate out-of-cycle fetch.
type Resyncer interface {
	Resync()
}

// Selection is cleared after a successful bulk action.
type Selection interface {
	Clear()
}

// Deferrer runs a function once after a delay. *schedule.Scheduler satisfies it.
type Deferrer interface {
	After(name string, delay time.Duration, fn func()) (*schedule.Job, error)
}

// Config controls the dispatcher.
type Config struct {
	// AutoStartDelay is how long after a successful add the new job is started.
	AutoStartDelay time.Duration
	// ActionTimeout bounds the detached auto-start call.
	ActionTimeout time.Duration
}

// Dispatcher runs add, start, stop, and bulk actions. Actions do not
// serialize with each other or with polling.
type Dispatcher struct {
	backend   Backend
	resync    Resyncer
	selection Selection
	deferrer  Deferrer
	emitter   events.Emitter
	logger    *zap.Logger
	cfg       Config

	pending sync.WaitGroup
}

// New builds a Dispatcher. emitter and logger may be nil.
func New(
	cfg Config,
	backend Backend,
	resync Resyncer,
	selection Selection,
	deferrer Deferrer,
	emitter events.Emitter,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if backend == nil || resync == nil || selection == nil || deferrer == nil {
		return nil, errors.New("dispatcher: backend, resyncer, selection, and deferrer are required")
	}
	if cfg.AutoStartDelay < 0 {
		cfg.AutoStartDelay = 0
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		backend:   backend,
		resync:    resync,
		selection: selection,
		deferrer:  deferrer,
		emitter:   emitter,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// AddJob submits rawURL. On success it resyncs at once and schedules an
// automatic start of the new job; that deferred start is followed by another
// resync whatever its outcome. Blank input fails validation without a
// network call.
func (d *Dispatcher) AddJob(ctx context.Context, rawURL string) (model.ViewRecord, error) {
	const action = "add_job"
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		err := errs.Validation(action, "url is required")
		metrics.ObserveAction(action, err)
		return model.ViewRecord{}, err
	}
	rec, err := d.backend.AddJob(ctx, trimmed)
	d.record(action, err, rec.ID)
	if err != nil {
		return model.ViewRecord{}, err
	}
	d.resync.Resync()
	if rec.ID != 0 {
		d.scheduleAutoStart(ctx, rec.ID)
	}
	return model.Normalize(rec), nil
}

func (d *Dispatcher) scheduleAutoStart(ctx context.Context, id int64) {
	detached := context.WithoutCancel(ctx)
	d.pending.Add(1)
	_, err := d.deferrer.After("autostart-"+strconv.FormatInt(id, 10), d.cfg.AutoStartDelay, func() {
		defer d.pending.Done()
		startCtx, cancel := context.WithTimeout(detached, d.cfg.ActionTimeout)
		defer cancel()
		err := d.backend.StartJob(startCtx, id)
		d.record("auto_start", err, id)
		d.resync.Resync()
	})
	if err != nil {
		d.pending.Done()
		d.logger.Warn("failed to schedule auto-start", zap.Int64("job_id", id), zap.Error(err))
	}
}

// Start asks the backend to process id and resyncs on success.
func (d *Dispatcher) Start(ctx context.Context, id int64) error {
	err := d.backend.StartJob(ctx, id)
	d.record("start_job", err, id)
	if err != nil {
		return err
	}
	d.resync.Resync()
	return nil
}

// Stop asks the backend to halt id and resyncs on success.
func (d *Dispatcher) Stop(ctx context.Context, id int64) error {
	err := d.backend.StopJob(ctx, id)
	d.record("stop_job", err, id)
	if err != nil {
		return err
	}
	d.resync.Resync()
	return nil
}

// Bulk applies action to ids. An empty id set does nothing. Success clears
// the selection and resyncs; failure leaves the selection as it was.
func (d *Dispatcher) Bulk(ctx context.Context, ids []int64, action model.BulkAction) error {
	name := "bulk_" + string(action)
	if !action.Valid() {
		return errs.Validation("bulk", fmt.Sprintf("unknown bulk action %q", action))
	}
	if len(ids) == 0 {
		return nil
	}
	err := d.backend.Bulk(ctx, ids, action)
	d.record(name, err, ids...)
	if err != nil {
		return err
	}
	d.selection.Clear()
	d.resync.Resync()
	return nil
}

// Wait blocks until every scheduled auto-start has run or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for pending actions: %w", ctx.Err())
	}
}

func (d *Dispatcher) record(action string, err error, ids ...int64) {
	metrics.ObserveAction(action, err)
	d.emitter.Emit(events.Action(action, err, ids...))
	if err != nil {
		d.logger.Warn("action failed",
			zap.String("action", action),
			zap.Int64s("job_ids", ids),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("action succeeded", zap.String("action", action), zap.Int64s("job_ids", ids))
}
