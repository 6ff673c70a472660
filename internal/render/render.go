// Package render writes dashboard data for the terminal as an aligned
// table, JSON, or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/crawldash/internal/detail"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/view"
)

// Format selects the output encoding.
type Format string

// Supported formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name. The empty string means table.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", raw)
	}
}

const (
	timeLayout = "2006-01-02 15:04"
	maxURL     = 48
	maxTitle   = 32
)

var titleCaser = cases.Title(language.English)

// StatusLabel returns the display label for s, e.g. "Completed".
func StatusLabel(s model.Status) string {
	return titleCaser.String(string(s))
}

// Renderer writes values to w in a fixed format.
type Renderer struct {
	w      io.Writer
	format Format
}

// New returns a Renderer. An empty format means table.
func New(w io.Writer, format Format) *Renderer {
	if format == "" {
		format = FormatTable
	}
	return &Renderer{w: w, format: format}
}

// Page writes one page of rows with its envelope.
func (r *Renderer) Page(p model.Page) error {
	switch r.format {
	case FormatJSON:
		return r.encodeJSON(p)
	case FormatYAML:
		return r.encodeYAML(p)
	}
	if err := r.rows(p.Rows, nil); err != nil {
		return err
	}
	return r.footer(p.Envelope)
}

// Job writes a single row.
func (r *Renderer) Job(rec model.ViewRecord) error {
	switch r.format {
	case FormatJSON:
		return r.encodeJSON(rec)
	case FormatYAML:
		return r.encodeYAML(rec)
	}
	return r.rows([]model.ViewRecord{rec}, nil)
}

// Detail writes the expanded view of one job.
func (r *Renderer) Detail(d detail.Detail) error {
	switch r.format {
	case FormatJSON:
		return r.encodeJSON(d)
	case FormatYAML:
		return r.encodeYAML(d)
	}
	return r.detailTable(d)
}

// State writes a dashboard snapshot: the detail screen when one is open,
// otherwise the header, rows, and footer.
func (r *Renderer) State(st view.State) error {
	switch r.format {
	case FormatJSON:
		return r.encodeJSON(st)
	case FormatYAML:
		return r.encodeYAML(st)
	}
	if !st.Authenticated {
		_, err := fmt.Fprintln(r.w, "Not signed in.")
		return err
	}
	if st.Screen == view.ScreenDetail && st.Detail != nil {
		return r.detailTable(*st.Detail)
	}
	if err := r.header(st); err != nil {
		return err
	}
	selected := make(map[int64]bool, len(st.Selected))
	for _, id := range st.Selected {
		selected[id] = true
	}
	if err := r.rows(st.Rows, selected); err != nil {
		return err
	}
	return r.footer(st.Envelope)
}

func (r *Renderer) header(st view.State) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Signed in as %s", orDash(st.Username))
	if !st.LastSync.IsZero() {
		fmt.Fprintf(&b, " | synced %s", st.LastSync.Local().Format(time.TimeOnly))
	}
	if st.Loading {
		b.WriteString(" | loading")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total %d | Completed %d | Running %d | Errors %d\n",
		st.Stats.Total, st.Stats.Completed, st.Stats.Running, st.Stats.Errors)
	if st.SyncError != "" {
		fmt.Fprintf(&b, "Sync failed: %s\n", st.SyncError)
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "Error: %s\n", st.LastError)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) rows(rows []model.ViewRecord, selected map[int64]bool) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(r.w, "No jobs.")
		return err
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tURL\tTITLE\tSTATUS\tHTML\tINTERNAL\tEXTERNAL\tBROKEN\tCREATED")
	for _, row := range rows {
		mark := " "
		if selected[row.ID] {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			mark,
			row.ID,
			truncate(row.URL, maxURL),
			truncate(row.Title, maxTitle),
			StatusLabel(row.Status),
			orDash(row.HTMLVersion),
			row.InternalLinks,
			row.ExternalLinks,
			row.BrokenLinks,
			formatTime(row.CreatedAt),
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}
	return nil
}

func (r *Renderer) footer(env model.Envelope) error {
	pages := max(env.TotalPages, 1)
	_, err := fmt.Fprintf(r.w, "Page %d of %d (%d jobs)\n", max(env.Page, 1), pages, env.Total)
	return err
}

func (r *Renderer) detailTable(d detail.Detail) error {
	rec := d.Record
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	if d.Degraded {
		fmt.Fprintln(tw, "Details unavailable; showing last known summary.")
	}
	loginForm := "Not Found"
	if rec.HasLoginForm {
		loginForm = "Present"
	}
	fmt.Fprintf(tw, "ID\t%d\n", rec.ID)
	fmt.Fprintf(tw, "URL\t%s\n", rec.URL)
	fmt.Fprintf(tw, "Title\t%s\n", rec.Title)
	fmt.Fprintf(tw, "Status\t%s\n", StatusLabel(rec.Status))
	if rec.ErrorMessage != "" {
		fmt.Fprintf(tw, "Error\t%s\n", rec.ErrorMessage)
	}
	fmt.Fprintf(tw, "HTML Version\t%s\n", orNA(rec.HTMLVersion))
	fmt.Fprintf(tw, "Total Links\t%d (%d internal, %d external)\n",
		rec.InternalLinks+rec.ExternalLinks, rec.InternalLinks, rec.ExternalLinks)
	fmt.Fprintf(tw, "Broken Links\t%d\n", brokenCount(d))
	fmt.Fprintf(tw, "Login Form\t%s\n", loginForm)
	h := rec.Headings
	fmt.Fprintf(tw, "Headings\tH1 %d  H2 %d  H3 %d  H4 %d  H5 %d  H6 %d\n", h.H1, h.H2, h.H3, h.H4, h.H5, h.H6)
	fmt.Fprintf(tw, "Created\t%s\n", formatTime(rec.CreatedAt))
	fmt.Fprintf(tw, "Updated\t%s\n", formatTime(rec.UpdatedAt))
	if len(d.BrokenLinks) > 0 {
		fmt.Fprintf(tw, "\nBroken Links (%d)\n", len(d.BrokenLinks))
		fmt.Fprintln(tw, "STATUS\tURL")
		for _, l := range d.BrokenLinks {
			fmt.Fprintf(tw, "%d\t%s\n", l.StatusCode, l.LinkURL)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush detail: %w", err)
	}
	return nil
}

// brokenCount prefers the loaded list and falls back to the summary count.
func brokenCount(d detail.Detail) int {
	if d.Degraded {
		return d.Record.BrokenLinks
	}
	return len(d.BrokenLinks)
}

func (r *Renderer) encodeJSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func (r *Renderer) encodeYAML(v any) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close yaml encoder: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
