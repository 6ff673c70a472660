package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/crawldash/internal/detail"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/view"
)

func sampleRows() []model.ViewRecord {
	return []model.ViewRecord{
		{ID: 1, URL: "https://example.com", Title: "Example", Status: model.StatusCompleted, HTMLVersion: "HTML5", InternalLinks: 4, ExternalLinks: 2, BrokenLinks: 1},
		{ID: 2, URL: "https://example.org/" + strings.Repeat("a", 80), Title: model.UntitledPlaceholder, Status: model.StatusQueued},
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, " yaml ": FormatYAML, "table": FormatTable} {
		got, err := ParseFormat(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	require.Error(t, err)
}

func TestStatusLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Completed", StatusLabel(model.StatusCompleted))
	require.Equal(t, "Queued", StatusLabel(model.StatusQueued))
}

func TestPageTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := New(&buf, FormatTable).Page(model.Page{
		Rows:     sampleRows(),
		Envelope: model.Envelope{Total: 12, TotalPages: 2, Page: 1, PageSize: 10},
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "STATUS")
	require.Contains(t, out, "Completed")
	require.Contains(t, out, "Untitled")
	require.Contains(t, out, "…")
	require.Contains(t, out, "Page 1 of 2 (12 jobs)")
}

func TestPageTableEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, New(&buf, "").Page(model.Page{}))
	require.Contains(t, buf.String(), "No jobs.")
	require.Contains(t, buf.String(), "Page 1 of 1 (0 jobs)")
}

func TestPageJSONAndYAML(t *testing.T) {
	t.Parallel()

	page := model.Page{Rows: sampleRows()[:1], Envelope: model.Envelope{Total: 1, TotalPages: 1, Page: 1, PageSize: 10}}

	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatJSON).Page(page))
	var decoded model.Page
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, int64(1), decoded.Rows[0].ID)
	require.Equal(t, model.StatusCompleted, decoded.Rows[0].Status)

	buf.Reset()
	require.NoError(t, New(&buf, FormatYAML).Page(page))
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &generic))
	require.Contains(t, generic, "rows")
	require.Contains(t, buf.String(), "html_version: HTML5")
}

func TestDetailTable(t *testing.T) {
	t.Parallel()

	d := detail.Detail{
		Record: model.ViewRecord{ID: 9, URL: "https://example.com", Title: "Example", Status: model.StatusCompleted,
			InternalLinks: 3, ExternalLinks: 2, HasLoginForm: true},
		BrokenLinks: []model.BrokenLink{{ID: 1, LinkURL: "https://example.com/missing", StatusCode: 404}},
	}
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).Detail(d))

	out := buf.String()
	require.Contains(t, out, "5 (3 internal, 2 external)")
	require.Contains(t, out, "Present")
	require.Contains(t, out, "N/A")
	require.Contains(t, out, "Broken Links (1)")
	require.Contains(t, out, "https://example.com/missing")
	require.NotContains(t, out, "unavailable")
}

func TestDetailTableDegraded(t *testing.T) {
	t.Parallel()

	d := detail.Detail{
		Record:      model.ViewRecord{ID: 9, Status: model.StatusCompleted, BrokenLinks: 4},
		BrokenLinks: []model.BrokenLink{},
		Degraded:    true,
	}
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).Detail(d))
	out := buf.String()
	require.Contains(t, out, "Details unavailable")
	require.Contains(t, out, "Not Found")
	require.NotContains(t, out, "Broken Links (")
}

func TestStateTable(t *testing.T) {
	t.Parallel()

	st := view.State{
		Authenticated: true,
		Username:      "admin",
		Screen:        view.ScreenDashboard,
		Rows:          sampleRows(),
		Selected:      []int64{1},
		Envelope:      model.Envelope{Total: 2, TotalPages: 1, Page: 1, PageSize: 10},
		Stats:         view.Stats{Total: 2, Completed: 1},
		SyncError:     "HTTP 500",
	}
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).State(st))
	out := buf.String()
	require.Contains(t, out, "Signed in as admin")
	require.Contains(t, out, "Total 2 | Completed 1 | Running 0 | Errors 0")
	require.Contains(t, out, "Sync failed: HTTP 500")
	require.Contains(t, out, "*  1")

	buf.Reset()
	require.NoError(t, New(&buf, FormatTable).State(view.State{}))
	require.Equal(t, "Not signed in.\n", buf.String())
}

func TestStateDetailScreen(t *testing.T) {
	t.Parallel()

	st := view.State{
		Authenticated: true,
		Screen:        view.ScreenDetail,
		Detail:        &detail.Detail{Record: model.ViewRecord{ID: 9, Title: "Nine", Status: model.StatusCompleted}},
	}
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).State(st))
	require.Contains(t, buf.String(), "Nine")
	require.NotContains(t, buf.String(), "Signed in as")
}
