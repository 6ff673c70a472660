package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawldash/internal/errs"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/query"
	"github.com/JakeFAU/crawldash/internal/render"
)

type listOptions struct {
	search string
	status string
	sort   string
	order  string
	page   int
	output string
}

func newListCmd() *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := render.ParseFormat(opts.output)
			if err != nil {
				return err
			}
			appInstance, err := resolveSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			ctrl := appInstance.View()
			if err := applyListOptions(ctrl, opts); err != nil {
				return err
			}
			if err := ctrl.Refresh(cmd.Context()); err != nil {
				return err
			}
			if opts.page > 1 {
				ctrl.SetPage(opts.page)
				if err := ctrl.Refresh(cmd.Context()); err != nil {
					return err
				}
			}
			st := ctrl.State()
			return render.New(cmd.OutOrStdout(), format).Page(model.Page{Rows: st.Rows, Envelope: st.Envelope})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.search, "search", "s", "", "filter by URL or title substring")
	f.StringVar(&opts.status, "status", "all", "filter by status: all, queued, running, completed, error")
	f.StringVar(&opts.sort, "sort", string(query.SortCreatedAt), "sort key, e.g. title, status, brokenLinks")
	f.StringVar(&opts.order, "order", "", "sort order: asc or desc")
	f.IntVar(&opts.page, "page", 1, "page number")
	f.StringVarP(&opts.output, "output", "o", "table", "output format: table, json, yaml")
	return cmd
}

type queryController interface {
	SetSearch(term string)
	SetStatusFilter(f query.StatusFilter)
	SetSort(key query.SortKey) error
	Query() query.Params
}

func applyListOptions(ctrl queryController, opts listOptions) error {
	filter, err := query.ParseStatusFilter(opts.status)
	if err != nil {
		return err
	}
	key, err := query.ParseSortKey(opts.sort)
	if err != nil {
		return err
	}
	var want query.Direction
	switch opts.order {
	case "":
	case string(query.Ascending), string(query.Descending):
		want = query.Direction(opts.order)
	default:
		return fmt.Errorf("unknown sort order %q (want asc or desc)", opts.order)
	}

	ctrl.SetSearch(opts.search)
	ctrl.SetStatusFilter(filter)
	if ctrl.Query().Sort != key {
		if err := ctrl.SetSort(key); err != nil {
			return err
		}
	}
	if want != "" && ctrl.Query().Direction != want {
		return ctrl.SetSort(key)
	}
	return nil
}

func newShowCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job with its broken links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := render.ParseFormat(output)
			if err != nil {
				return err
			}
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			appInstance, err := resolveSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			// A summary from the first page is the fallback when the detail
			// fetch fails.
			summary := model.ViewRecord{ID: id}
			ctrl := appInstance.View()
			if err := ctrl.Refresh(cmd.Context()); err == nil {
				for _, row := range ctrl.State().Rows {
					if row.ID == id {
						summary = row
						break
					}
				}
			}
			d, err := appInstance.Details().Load(cmd.Context(), summary)
			if err != nil && !errs.Is(err, errs.KindTransientFetch) {
				return err
			}
			return render.New(cmd.OutOrStdout(), format).Detail(d)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml")
	return cmd
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>",
		Short: "Submit a URL for analysis and start it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := appInstance.View().AddJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added job %d for %s\n", rec.ID, rec.URL)
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start analysis of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			appInstance, err := resolveSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.View().StartJob(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started job %d\n", id)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			appInstance, err := resolveSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.View().StopJob(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped job %d\n", id)
			return nil
		},
	}
}

func newBulkCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "bulk <delete|rerun> <id>...",
		Short:     "Delete or rerun several jobs at once",
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: []string{string(model.BulkDelete), string(model.BulkRerun)},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := model.BulkAction(args[0])
			if !action.Valid() {
				return fmt.Errorf("unknown bulk action %q (want delete or rerun)", args[0])
			}
			ids := make([]int64, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := parseJobID(raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			appInstance, err := resolveSignedIn(cmd.Context())
			if err != nil {
				return err
			}
			ctrl := appInstance.View()
			for _, id := range ids {
				ctrl.Toggle(id, true)
			}
			if err := ctrl.Bulk(cmd.Context(), action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %s to %d jobs\n", action, len(ids))
			return nil
		},
	}
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}
