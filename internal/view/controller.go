// Package view composes the dashboard engine into a two-screen state machine
// (dashboard and detail) with a single observable state snapshot.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/detail"
	"github.com/JakeFAU/crawldash/internal/errs"
	"github.com/JakeFAU/crawldash/internal/events"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/poller"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/selection"
	"github.com/JakeFAU/crawldash/internal/session"
)

// Authenticator exchanges a username and password for a credential.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (session.Credential, error)
}

// Session is the credential holder. *session.Session satisfies it.
type Session interface {
	Authenticated() bool
	Username() string
	SignIn(cred session.Credential) error
	Invalidate() bool
	Subscribe(fn session.Listener) func()
}

// Synchronizer keeps rows fresh. *poller.Synchronizer satisfies it.
type Synchronizer interface {
	OnApply(fn poller.ApplyFunc)
	Start() error
	Resync()
	Refresh(ctx context.Context) error
	Snapshot() poller.Snapshot
}

// Actions performs mutations. *dispatcher.Dispatcher satisfies it.
type Actions interface {
	AddJob(ctx context.Context, rawURL string) (model.ViewRecord, error)
	Start(ctx context.Context, id int64) error
	Stop(ctx context.Context, id int64) error
	Bulk(ctx context.Context, ids []int64, action model.BulkAction) error
}

// Details loads the detail record. *detail.Loader satisfies it.
type Details interface {
	Load(ctx context.Context, summary model.ViewRecord) (detail.Detail, error)
	Current() (detail.Detail, bool)
	Clear()
}

// Deps are the controller's collaborators. Emitter and Logger may be nil.
type Deps struct {
	Auth      Authenticator
	Session   Session
	Sync      Synchronizer
	Query     *query.State
	Selection *selection.Tracker
	Actions   Actions
	Details   Details
	Emitter   events.Emitter
	Logger    *zap.Logger
}

// Observer is called with a snapshot after every state change.
type Observer func(State)

// Controller is the dashboard state machine. It is safe for concurrent use.
type Controller struct {
	deps   Deps
	logger *zap.Logger

	mu            sync.Mutex
	screen        Screen
	rows          []model.ViewRecord
	envelope      model.Envelope
	lastSeq       uint64
	detailSeq     uint64
	loadingDetail bool
	lastErr       string
	revision      uint64
	observers     map[uint64]Observer
	nextObserver  uint64

	unsubscribe func()
}

// New wires a Controller to its collaborators.
func New(deps Deps) (*Controller, error) {
	if deps.Auth == nil || deps.Session == nil || deps.Sync == nil || deps.Query == nil ||
		deps.Selection == nil || deps.Actions == nil || deps.Details == nil {
		return nil, errors.New("view: missing dependency")
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	c := &Controller{
		deps:      deps,
		logger:    deps.Logger,
		screen:    ScreenDashboard,
		observers: make(map[uint64]Observer),
	}
	deps.Sync.OnApply(c.apply)
	c.unsubscribe = deps.Session.Subscribe(c.onAuthChange)
	return c, nil
}

// Close detaches the controller from the session.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Login signs in with username and password. Polling starts when the session
// becomes authenticated.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	cred, err := c.deps.Auth.Login(ctx, username, password)
	if err != nil {
		c.fail(err)
		return fmt.Errorf("login: %w", err)
	}
	if err := c.deps.Session.SignIn(cred); err != nil {
		c.logger.Warn("signed in without persisting credential", zap.Error(err))
	}
	c.succeed()
	return nil
}

// Resume starts polling for a session restored from storage. It reports
// whether the session is authenticated.
func (c *Controller) Resume() (bool, error) {
	if !c.deps.Session.Authenticated() {
		return false, nil
	}
	if err := c.deps.Sync.Start(); err != nil {
		return true, fmt.Errorf("resume polling: %w", err)
	}
	c.publish()
	return true, nil
}

// Refresh fetches the current page synchronously.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.deps.Sync.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Logout ends the session and resets the view to an empty dashboard.
func (c *Controller) Logout() {
	if !c.deps.Session.Invalidate() {
		c.reset()
	}
}

// SetSearch changes the search term.
func (c *Controller) SetSearch(term string) {
	c.afterQuery(c.deps.Query.SetSearch(term))
}

// SetStatusFilter changes the status filter.
func (c *Controller) SetStatusFilter(f query.StatusFilter) {
	c.afterQuery(c.deps.Query.SetStatusFilter(f))
}

// SetSort sorts by key, toggling direction when key is already the sort key.
func (c *Controller) SetSort(key query.SortKey) error {
	if !key.Valid() {
		return errs.Validation("sort", fmt.Sprintf("unknown sort key %q", key))
	}
	c.afterQuery(c.deps.Query.SetSort(key))
	return nil
}

// SetPage moves to page n, clamped to the server's page count.
func (c *Controller) SetPage(n int) {
	c.mu.Lock()
	total := c.envelope.TotalPages
	c.mu.Unlock()
	c.afterQuery(c.deps.Query.SetPage(n, total))
}

// Query returns the current query parameters.
func (c *Controller) Query() query.Params {
	return c.deps.Query.Snapshot()
}

// NextPage advances one page.
func (c *Controller) NextPage() {
	c.SetPage(c.deps.Query.Snapshot().Page + 1)
}

// PrevPage goes back one page.
func (c *Controller) PrevPage() {
	c.SetPage(c.deps.Query.Snapshot().Page - 1)
}

func (c *Controller) afterQuery(changed bool) {
	if !changed {
		return
	}
	c.deps.Sync.Resync()
	c.publish()
}

// Toggle includes or excludes id from the selection.
func (c *Controller) Toggle(id int64, included bool) {
	c.deps.Selection.Toggle(id, included)
	c.publish()
}

// SelectAllVisible replaces the selection with the displayed rows when
// selected is true and clears it otherwise.
func (c *Controller) SelectAllVisible(selected bool) {
	if !selected {
		c.ClearSelection()
		return
	}
	c.mu.Lock()
	ids := visibleIDs(c.rows)
	c.mu.Unlock()
	c.deps.Selection.SelectAllVisible(ids)
	c.publish()
}

// ClearSelection empties the selection.
func (c *Controller) ClearSelection() {
	c.deps.Selection.Clear()
	c.publish()
}

// AddJob submits a URL for analysis.
func (c *Controller) AddJob(ctx context.Context, rawURL string) (model.ViewRecord, error) {
	rec, err := c.deps.Actions.AddJob(ctx, rawURL)
	if err != nil {
		c.fail(err)
		return model.ViewRecord{}, err
	}
	c.succeed()
	return rec, nil
}

// StartJob starts one job.
func (c *Controller) StartJob(ctx context.Context, id int64) error {
	return c.mutate(c.deps.Actions.Start(ctx, id))
}

// StopJob stops one job.
func (c *Controller) StopJob(ctx context.Context, id int64) error {
	return c.mutate(c.deps.Actions.Stop(ctx, id))
}

// Bulk applies action to the selected jobs.
func (c *Controller) Bulk(ctx context.Context, action model.BulkAction) error {
	return c.mutate(c.deps.Actions.Bulk(ctx, c.deps.Selection.IDs(), action))
}

func (c *Controller) mutate(err error) error {
	if err != nil {
		c.fail(err)
		return err
	}
	c.succeed()
	return nil
}

// ViewDetails opens the detail screen for a displayed, completed job. The
// screen opens even when the load fails, showing the summary row, unless the
// failure ended the session or the user navigated back meanwhile.
func (c *Controller) ViewDetails(ctx context.Context, id int64) error {
	c.mu.Lock()
	summary, ok := findRow(c.rows, id)
	if !ok {
		c.mu.Unlock()
		return errs.Validation("view_details", fmt.Sprintf("job %d is not displayed", id))
	}
	if summary.Status != model.StatusCompleted {
		c.mu.Unlock()
		return errs.Validation("view_details", fmt.Sprintf("job %d is %s, details need a completed job", id, summary.Status))
	}
	c.detailSeq++
	seq := c.detailSeq
	c.loadingDetail = true
	c.mu.Unlock()
	c.publish()

	_, err := c.deps.Details.Load(ctx, summary)

	c.mu.Lock()
	if seq != c.detailSeq {
		c.mu.Unlock()
		return err
	}
	c.loadingDetail = false
	if err != nil {
		c.lastErr = err.Error()
	}
	if !errs.Is(err, errs.KindAuthentication) {
		c.screen = ScreenDetail
	}
	c.mu.Unlock()
	c.publish()
	return err
}

// Back returns to the dashboard and drops the held detail.
func (c *Controller) Back() {
	c.deps.Details.Clear()
	c.mu.Lock()
	c.detailSeq++
	c.loadingDetail = false
	c.screen = ScreenDashboard
	c.mu.Unlock()
	c.publish()
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers fn and returns a function that removes it.
func (c *Controller) Subscribe(fn Observer) func() {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) stateLocked() State {
	syncSnap := c.deps.Sync.Snapshot()
	st := State{
		Revision:      c.revision,
		Screen:        c.screen,
		Authenticated: c.deps.Session.Authenticated(),
		Username:      c.deps.Session.Username(),
		Rows:          append([]model.ViewRecord(nil), c.rows...),
		Envelope:      c.envelope,
		Query:         c.deps.Query.Snapshot(),
		Selected:      c.deps.Selection.IDs(),
		Loading:       syncSnap.Loading,
		LoadingDetail: c.loadingDetail,
		Polling:       syncSnap.Running,
		Stats:         computeStats(c.rows, c.envelope),
		LastSync:      syncSnap.LastSync,
		LastError:     c.lastErr,
	}
	if syncSnap.LastErr != nil {
		st.SyncError = syncSnap.LastErr.Error()
	}
	if c.screen == ScreenDetail {
		if d, ok := c.deps.Details.Current(); ok {
			st.Detail = &d
		}
	}
	return st
}

// apply receives pages from the synchronizer.
func (c *Controller) apply(a poller.Applied) {
	c.mu.Lock()
	if a.Seq <= c.lastSeq {
		c.mu.Unlock()
		return
	}
	c.lastSeq = a.Seq
	c.rows = a.Page.Rows
	c.envelope = a.Page.Envelope
	if a.QueryChanged && c.deps.Selection.RetainAny(visibleIDs(a.Page.Rows)) {
		c.logger.Debug("selection cleared; no selected job is visible")
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) onAuthChange(authenticated bool) {
	if authenticated {
		c.deps.Emitter.Emit(events.Event{Kind: events.KindSessionStarted})
		c.publish()
		return
	}
	c.deps.Emitter.Emit(events.Event{Kind: events.KindSessionEnded})
	c.reset()
}

func (c *Controller) reset() {
	c.deps.Details.Clear()
	c.deps.Selection.Clear()
	c.deps.Query.Reset()
	// Pages accepted before the reset belong to the ended session.
	fence := c.deps.Sync.Snapshot().Seq
	c.mu.Lock()
	c.lastSeq = max(c.lastSeq, fence)
	c.screen = ScreenDashboard
	c.rows = nil
	c.envelope = model.Envelope{}
	c.detailSeq++
	c.loadingDetail = false
	c.lastErr = ""
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) succeed() {
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	c.mu.Lock()
	c.revision++
	st := c.stateLocked()
	observers := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()
	for _, fn := range observers {
		fn(st)
	}
}

func visibleIDs(rows []model.ViewRecord) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func findRow(rows []model.ViewRecord, id int64) (model.ViewRecord, bool) {
	for _, r := range rows {
		if r.ID == id {
			return r, true
		}
	}
	return model.ViewRecord{}, false
}
