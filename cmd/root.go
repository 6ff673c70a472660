// Package cmd defines and implements the CLI commands for the crawldash executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/app"
	"github.com/JakeFAU/crawldash/internal/config"
	"github.com/JakeFAU/crawldash/internal/detail"
	"github.com/JakeFAU/crawldash/internal/session"
	"github.com/JakeFAU/crawldash/internal/view"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 10 * time.Second

// App defines the application interface that commands use.
type App interface {
	Close(ctx context.Context) error
	Logger() *zap.Logger
	View() *view.Controller
	Details() *detail.Loader
	Session() *session.Session
	Serve(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can
// point the commands at a fake backend.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

// errNotSignedIn is returned by commands that need a stored credential.
var errNotSignedIn = errors.New("not signed in; run `crawldash login` first")

// lifecycle owns the App built for one command invocation. Cobra skips
// post-run hooks when a command fails, so Close runs from Execute instead.
type lifecycle struct {
	app App
}

func (l *lifecycle) close(ctx context.Context) error {
	if l.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	err := l.app.Close(ctx)
	l.app = nil
	return err
}

// newRootCmd creates and configures the root command.
func newRootCmd() (*cobra.Command, *lifecycle) {
	var cfgFile string
	life := &lifecycle{}
	cmd := &cobra.Command{
		Use:   "crawldash",
		Short: "Dashboard client for the URL analysis crawler.",
		Long: `crawldash signs in to a crawl backend, lists and filters analysis jobs,
submits new URLs, starts, stops, reruns, or deletes jobs, and shows the
broken links found for a completed job. The watch command keeps the
dashboard live and exposes it on a local control server.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			life.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML, or JSON)")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newListCmd(),
		newShowCmd(),
		newAddCmd(),
		newStartCmd(),
		newStopCmd(),
		newBulkCmd(),
		newWatchCmd(),
	)
	return cmd, life
}

// execute runs the command tree and always closes the App it built.
func execute(ctx context.Context, cmd *cobra.Command, life *lifecycle) error {
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, life.close(ctx))
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// resolveSignedIn returns the App only when a credential is held.
func resolveSignedIn(ctx context.Context) (App, error) {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return nil, err
	}
	if !appInstance.Session().Authenticated() {
		return nil, errNotSignedIn
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmd, life := newRootCmd()
	err := execute(ctx, cmd, life)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
