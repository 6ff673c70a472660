package model

// UntitledPlaceholder replaces an empty job title.
const UntitledPlaceholder = "Untitled"

// Normalize maps a wire record to its view form. It never fails: unknown or
// missing values degrade to defaults.
func Normalize(wire JobRecord) ViewRecord {
	title := wire.Title
	if title == "" {
		title = UntitledPlaceholder
	}
	return ViewRecord{
		ID:          wire.ID,
		URL:         wire.URL,
		Title:       title,
		Status:      normalizeStatus(wire.Status),
		HTMLVersion: wire.HTMLVersion,
		Headings: HeadingCounts{
			H1: nonNegative(wire.H1Count),
			H2: nonNegative(wire.H2Count),
			H3: nonNegative(wire.H3Count),
			H4: nonNegative(wire.H4Count),
			H5: nonNegative(wire.H5Count),
			H6: nonNegative(wire.H6Count),
		},
		InternalLinks: nonNegative(wire.InternalLinks),
		ExternalLinks: nonNegative(wire.ExternalLinks),
		BrokenLinks:   nonNegative(wire.InaccessibleLinks),
		HasLoginForm:  wire.HasLoginForm,
		CreatedAt:     wire.CreatedAt,
		UpdatedAt:     wire.UpdatedAt,
		ErrorMessage:  wire.ErrorMessage,
	}
}

// NormalizeAll normalizes every record of a collection, preserving order.
func NormalizeAll(wire []JobRecord) []ViewRecord {
	out := make([]ViewRecord, 0, len(wire))
	for _, rec := range wire {
		out = append(out, Normalize(rec))
	}
	return out
}

// NormalizeList turns a list response into a Page.
func NormalizeList(resp ListResponse) Page {
	return Page{
		Rows: NormalizeAll(resp.Data),
		Envelope: Envelope{
			Total:      max(resp.Total, 0),
			TotalPages: nonNegative(resp.TotalPages),
			Page:       nonNegative(resp.Page),
			PageSize:   nonNegative(resp.PageSize),
		},
	}
}

// Wire maps a view record back to the backend form. Normalize(v.Wire()) == v.
func (v ViewRecord) Wire() JobRecord {
	return JobRecord{
		ID:                v.ID,
		URL:               v.URL,
		Title:             v.Title,
		Status:            v.Status.Wire(),
		HTMLVersion:       v.HTMLVersion,
		H1Count:           v.Headings.H1,
		H2Count:           v.Headings.H2,
		H3Count:           v.Headings.H3,
		H4Count:           v.Headings.H4,
		H5Count:           v.Headings.H5,
		H6Count:           v.Headings.H6,
		InternalLinks:     v.InternalLinks,
		ExternalLinks:     v.ExternalLinks,
		InaccessibleLinks: v.BrokenLinks,
		HasLoginForm:      v.HasLoginForm,
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
		ErrorMessage:      v.ErrorMessage,
	}
}

// normalizeStatus accepts "completed" as an alias of "done" so the mapping is
// stable over its own output. An empty status is the server default (queued).
func normalizeStatus(s WireStatus) Status {
	switch s {
	case WireQueued, "":
		return StatusQueued
	case WireRunning:
		return StatusRunning
	case WireDone, WireStatus(StatusCompleted):
		return StatusCompleted
	default:
		return StatusError
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
