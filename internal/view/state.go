package view

import (
	"time"

	"github.com/JakeFAU/crawldash/internal/detail"
	"github.com/JakeFAU/crawldash/internal/model"
	"github.com/JakeFAU/crawldash/internal/query"
)

// Screen is the view currently rendered.
type Screen string

// Screens.
const (
	ScreenDashboard Screen = "dashboard"
	ScreenDetail    Screen = "detail"
)

// Stats summarizes the dashboard header. Total comes from the server
// envelope; the other counts cover only the displayed rows.
type Stats struct {
	Total     int64 `json:"total" yaml:"total"`
	Completed int   `json:"completed" yaml:"completed"`
	Running   int   `json:"running" yaml:"running"`
	Errors    int   `json:"errors" yaml:"errors"`
}

// State is an immutable snapshot of the controller.
type State struct {
	// Revision increases with every change; observers may drop older snapshots.
	Revision      uint64             `json:"revision" yaml:"revision"`
	Screen        Screen             `json:"screen" yaml:"screen"`
	Authenticated bool               `json:"authenticated" yaml:"authenticated"`
	Username      string             `json:"username,omitempty" yaml:"username,omitempty"`
	Rows          []model.ViewRecord `json:"rows" yaml:"rows"`
	Envelope      model.Envelope     `json:"envelope" yaml:"envelope"`
	Query         query.Params       `json:"query" yaml:"query"`
	Selected      []int64            `json:"selected" yaml:"selected"`
	Detail        *detail.Detail     `json:"detail,omitempty" yaml:"detail,omitempty"`
	Loading       bool               `json:"loading" yaml:"loading"`
	LoadingDetail bool               `json:"loadingDetail" yaml:"loading_detail"`
	Polling       bool               `json:"polling" yaml:"polling"`
	Stats         Stats              `json:"stats" yaml:"stats"`
	LastSync      time.Time          `json:"lastSync,omitzero" yaml:"last_sync,omitempty"`
	SyncError     string             `json:"syncError,omitempty" yaml:"sync_error,omitempty"`
	LastError     string             `json:"lastError,omitempty" yaml:"last_error,omitempty"`
}

func computeStats(rows []model.ViewRecord, env model.Envelope) Stats {
	s := Stats{Total: env.Total}
	for _, r := range rows {
		switch r.Status {
		case model.StatusCompleted:
			s.Completed++
		case model.StatusRunning:
			s.Running++
		case model.StatusError:
			s.Errors++
		}
	}
	return s
}
