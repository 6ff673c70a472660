package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawldash/internal/render"
	"github.com/JakeFAU/crawldash/internal/view"
)

const clearScreen = "\033[H\033[2J"

func newWatchCmd() *cobra.Command {
	var (
		output  string
		noClear bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the dashboard live and serve it on the local control server",
		Long: `watch polls the backend for the current page, redraws the dashboard on
every change, and serves the local control server (status.listen_addr)
so other tools can drive the dashboard or stream its state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := render.ParseFormat(output)
			if err != nil {
				return err
			}
			appInstance, err := resolveSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			ctrl := appInstance.View()

			updates := make(chan view.State, 1)
			unsubscribe := ctrl.Subscribe(func(st view.State) {
				// Keep only the newest snapshot.
				select {
				case updates <- st:
				default:
					select {
					case <-updates:
					default:
					}
					select {
					case updates <- st:
					default:
					}
				}
			})
			defer unsubscribe()

			if _, err := ctrl.Resume(); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return appInstance.Serve(ctx) })
			g.Go(func() error {
				out := cmd.OutOrStdout()
				r := render.New(out, format)
				var last uint64
				draw := func(st view.State) error {
					if st.Revision != 0 && st.Revision <= last {
						return nil
					}
					last = st.Revision
					if format == render.FormatTable && !noClear {
						if _, err := io.WriteString(out, clearScreen); err != nil {
							return fmt.Errorf("clear screen: %w", err)
						}
					}
					return r.State(st)
				}
				if err := draw(ctrl.State()); err != nil {
					return err
				}
				for {
					select {
					case <-ctx.Done():
						return nil
					case st := <-updates:
						if err := draw(st); err != nil {
							return err
						}
						if !st.Authenticated {
							return errNotSignedIn
						}
					}
				}
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml")
	cmd.Flags().BoolVar(&noClear, "no-clear", false, "append frames instead of redrawing the screen")
	return cmd
}
