// Package app builds and holds the long-lived dashboard services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/api"
	"github.com/JakeFAU/crawldash/internal/client"
	"github.com/JakeFAU/crawldash/internal/clock/system"
	"github.com/JakeFAU/crawldash/internal/config"
	"github.com/JakeFAU/crawldash/internal/detail"
	"github.com/JakeFAU/crawldash/internal/dispatcher"
	"github.com/JakeFAU/crawldash/internal/events"
	"github.com/JakeFAU/crawldash/internal/events/sinks"
	"github.com/JakeFAU/crawldash/internal/logging"
	"github.com/JakeFAU/crawldash/internal/metrics"
	"github.com/JakeFAU/crawldash/internal/poller"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/schedule"
	"github.com/JakeFAU/crawldash/internal/selection"
	"github.com/JakeFAU/crawldash/internal/session"
	"github.com/JakeFAU/crawldash/internal/view"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	ownsLogger bool
	registerer prometheus.Registerer

	session    *session.Session
	client     *client.Client
	scheduler  *schedule.Scheduler
	hub        *events.Hub
	natsConn   *nats.Conn
	query      *query.State
	selection  *selection.Tracker
	sync       *poller.Synchronizer
	dispatch   *dispatcher.Dispatcher
	details    *detail.Loader
	controller *view.Controller
}

// Option customizes Build.
type Option func(*App)

// WithLogger uses logger instead of building one from the config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer registers event collectors against reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Build creates the application's dependencies. The session is restored
// from the token file but polling does not start until Resume or Login.
func Build(_ context.Context, cfg config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
			Output:      cfg.Logging.Output,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		app.ownsLogger = true
	}
	metrics.Init()

	app.logger.Debug("building application dependencies",
		zap.String("base_url", cfg.Server.BaseURL),
		zap.Duration("poll_interval", cfg.Poll.Interval),
		zap.Int("page_size", cfg.Dashboard.PageSize),
	)

	if err := app.setupSession(); err != nil {
		return nil, err
	}
	if err := app.setupClient(); err != nil {
		return nil, err
	}
	if err := app.setupEvents(); err != nil {
		app.closeInfrastructure(context.Background())
		return nil, err
	}
	if err := app.setupEngine(); err != nil {
		app.closeInfrastructure(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) setupSession() error {
	store, err := session.NewFileStore(a.cfg.Session.TokenFile)
	if err != nil {
		return fmt.Errorf("token store init failed: %w", err)
	}
	a.session = session.New(store, a.logger.Named("session"))
	if a.session.Restore() {
		a.logger.Debug("restored session", zap.String("username", a.session.Username()))
	}
	return nil
}

func (a *App) setupClient() error {
	var err error
	a.client, err = client.New(client.Config{
		BaseURL:        a.cfg.Server.BaseURL,
		Timeout:        a.cfg.HTTP.Timeout,
		RateLimitRPS:   a.cfg.HTTP.RateLimitRPS,
		RateLimitBurst: a.cfg.HTTP.RateLimitBurst,
		UserAgent:      a.cfg.HTTP.UserAgent,
	}, a.session, a.logger.Named("client"))
	if err != nil {
		return fmt.Errorf("client init failed: %w", err)
	}
	return nil
}

func (a *App) setupEvents() error {
	sinkList := []events.Sink{sinks.NewLogSink(a.logger.Named("events"))}

	promSink, err := sinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if a.cfg.Events.NATSURL != "" {
		a.natsConn, err = sinks.Connect(a.cfg.Events.NATSURL, "crawldash")
		if err != nil {
			return fmt.Errorf("nats connect failed: %w", err)
		}
		natsSink, err := sinks.NewNATSSink(a.natsConn, a.cfg.Events.NATSSubject)
		if err != nil {
			return fmt.Errorf("nats sink init failed: %w", err)
		}
		sinkList = append(sinkList, natsSink)
		a.logger.Info("publishing events to NATS", zap.String("subject", a.cfg.Events.NATSSubject))
	}

	a.hub = events.NewHub(events.Config{
		BufferSize: a.cfg.Events.BufferSize,
		Logger:     a.logger.Named("event_hub"),
	}, sinkList...)
	return nil
}

func (a *App) setupEngine() error {
	var err error
	a.scheduler, err = schedule.New(a.logger.Named("schedule"))
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	a.query = query.New(a.cfg.Dashboard.PageSize)
	a.selection = selection.New()

	a.sync, err = poller.New(
		poller.Config{Interval: a.cfg.Poll.Interval},
		a.client,
		a.query,
		a.scheduler,
		a.session,
		a.hub,
		system.New(),
		a.logger.Named("poller"),
	)
	if err != nil {
		return fmt.Errorf("poller init failed: %w", err)
	}

	a.dispatch, err = dispatcher.New(
		dispatcher.Config{
			AutoStartDelay: a.cfg.Dispatcher.AutoStartDelay,
			ActionTimeout:  a.cfg.Dispatcher.ActionTimeout,
		},
		a.client,
		a.sync,
		a.selection,
		a.scheduler,
		a.hub,
		a.logger.Named("dispatcher"),
	)
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	a.details, err = detail.New(a.client, a.hub, a.logger.Named("detail"))
	if err != nil {
		return fmt.Errorf("detail loader init failed: %w", err)
	}

	a.controller, err = view.New(view.Deps{
		Auth:      a.client,
		Session:   a.session,
		Sync:      a.sync,
		Query:     a.query,
		Selection: a.selection,
		Actions:   a.dispatch,
		Details:   a.details,
		Emitter:   a.hub,
		Logger:    a.logger.Named("view"),
	})
	if err != nil {
		return fmt.Errorf("view init failed: %w", err)
	}
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// View returns the dashboard controller.
func (a *App) View() *view.Controller {
	return a.controller
}

// Client returns the backend client.
func (a *App) Client() *client.Client {
	return a.client
}

// Details returns the detail loader.
func (a *App) Details() *detail.Loader {
	return a.details
}

// Session returns the credential holder.
func (a *App) Session() *session.Session {
	return a.session
}

// Serve runs the local control server until ctx is canceled. It returns
// immediately when status.listen_addr is empty.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Status.ListenAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              a.cfg.Status.ListenAddr,
		Handler:           api.NewServer(a.controller, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("status server started", zap.String("addr", a.cfg.Status.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("status server shutdown error", zap.Error(err))
	}
	return nil
}

// Close stops polling, waits for deferred work, and flushes the event sinks.
func (a *App) Close(ctx context.Context) error {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.sync != nil {
		a.sync.Close()
	}
	if a.dispatch != nil {
		if err := a.dispatch.Wait(ctx); err != nil {
			a.logger.Warn("deferred actions still pending", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	if a.ownsLogger {
		// Sync fails on terminals; nothing useful to do with the error.
		_ = a.logger.Sync()
	}
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(); err != nil {
			a.logger.Warn("scheduler shutdown failed", zap.Error(err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.natsConn != nil {
		a.natsConn.Close()
	}
}
