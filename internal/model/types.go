// Package model defines the wire and view forms of analysis jobs and the
// normalizer that maps one to the other.
package model

import "time"

// WireStatus is the job status as reported by the backend.
type WireStatus string

// Backend status values.
const (
	WireQueued  WireStatus = "queued"
	WireRunning WireStatus = "running"
	WireDone    WireStatus = "done"
	WireError   WireStatus = "error"
)

// Status is the client-side job status.
type Status string

// View status values. Exactly these four are ever produced by Normalize.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Statuses lists the view statuses in display order.
var Statuses = []Status{StatusQueued, StatusRunning, StatusCompleted, StatusError}

// Valid reports whether s is one of the four view statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// Wire returns the backend spelling of s.
func (s Status) Wire() WireStatus {
	if s == StatusCompleted {
		return WireDone
	}
	return WireStatus(s)
}

// JobRecord is a job exactly as the backend returns it.
type JobRecord struct {
	ID                int64      `json:"id"`
	URL               string     `json:"url"`
	Title             string     `json:"title"`
	Status            WireStatus `json:"status"`
	HTMLVersion       string     `json:"html_version"`
	H1Count           int        `json:"h1_count"`
	H2Count           int        `json:"h2_count"`
	H3Count           int        `json:"h3_count"`
	H4Count           int        `json:"h4_count"`
	H5Count           int        `json:"h5_count"`
	H6Count           int        `json:"h6_count"`
	InternalLinks     int        `json:"internal_links"`
	ExternalLinks     int        `json:"external_links"`
	InaccessibleLinks int        `json:"inaccessible_links"`
	HasLoginForm      bool       `json:"has_login_form"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

// HeadingCounts holds per-level heading totals.
type HeadingCounts struct {
	H1 int `json:"h1" yaml:"h1"`
	H2 int `json:"h2" yaml:"h2"`
	H3 int `json:"h3" yaml:"h3"`
	H4 int `json:"h4" yaml:"h4"`
	H5 int `json:"h5" yaml:"h5"`
	H6 int `json:"h6" yaml:"h6"`
}

// ViewRecord is the normalized job used for display and sorting.
type ViewRecord struct {
	ID            int64         `json:"id" yaml:"id"`
	URL           string        `json:"url" yaml:"url"`
	Title         string        `json:"title" yaml:"title"`
	Status        Status        `json:"status" yaml:"status"`
	HTMLVersion   string        `json:"htmlVersion" yaml:"html_version"`
	Headings      HeadingCounts `json:"headingCounts" yaml:"headings"`
	InternalLinks int           `json:"internalLinks" yaml:"internal_links"`
	ExternalLinks int           `json:"externalLinks" yaml:"external_links"`
	BrokenLinks   int           `json:"brokenLinks" yaml:"broken_links"`
	HasLoginForm  bool          `json:"hasLoginForm" yaml:"has_login_form"`
	CreatedAt     time.Time     `json:"createdAt" yaml:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" yaml:"updated_at"`
	ErrorMessage  string        `json:"errorMessage,omitempty" yaml:"error_message,omitempty"`
}

// BrokenLink is a link found during analysis that answered with an error-class status.
type BrokenLink struct {
	ID         int64     `json:"id" yaml:"id"`
	LinkURL    string    `json:"link_url" yaml:"link_url"`
	StatusCode int       `json:"status_code" yaml:"status_code"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// ListResponse is the backend's paginated job collection.
type ListResponse struct {
	Data       []JobRecord `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// DetailResponse is the backend's expanded job record.
type DetailResponse struct {
	URL         JobRecord    `json:"url"`
	BrokenLinks []BrokenLink `json:"broken_links"`
}

// Envelope is the server-computed pagination data for one page of rows.
type Envelope struct {
	Total      int64 `json:"total" yaml:"total"`
	TotalPages int   `json:"totalPages" yaml:"total_pages"`
	Page       int   `json:"page" yaml:"page"`
	PageSize   int   `json:"pageSize" yaml:"page_size"`
}

// Page is one normalized row set plus its envelope.
type Page struct {
	Rows     []ViewRecord `json:"rows" yaml:"rows"`
	Envelope Envelope     `json:"envelope" yaml:"envelope"`
}

// BulkAction is the kind of bulk mutation applied to a set of jobs.
type BulkAction string

// Supported bulk actions.
const (
	BulkDelete BulkAction = "delete"
	BulkRerun  BulkAction = "rerun"
)

// Valid reports whether a is a supported bulk action.
func (a BulkAction) Valid() bool {
	return a == BulkDelete || a == BulkRerun
}
