// Package query holds the dashboard's filter, sort, and page parameters and the
// rule that a filter or sort change sends the view back to page one.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/crawldash/internal/model"
)

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 10

// SortKey names a ViewRecord field the backend can order by.
type SortKey string

// Sortable view fields.
const (
	SortURL           SortKey = "url"
	SortTitle         SortKey = "title"
	SortStatus        SortKey = "status"
	SortHTMLVersion   SortKey = "htmlVersion"
	SortInternalLinks SortKey = "internalLinks"
	SortExternalLinks SortKey = "externalLinks"
	SortBrokenLinks   SortKey = "brokenLinks"
	SortCreatedAt     SortKey = "createdAt"
)

var wireSortFields = map[SortKey]string{
	SortURL:           "url",
	SortTitle:         "title",
	SortStatus:        "status",
	SortHTMLVersion:   "html_version",
	SortInternalLinks: "internal_links",
	SortExternalLinks: "external_links",
	SortBrokenLinks:   "inaccessible_links",
	SortCreatedAt:     "created_at",
}

// Valid reports whether k is a sortable field.
func (k SortKey) Valid() bool {
	_, ok := wireSortFields[k]
	return ok
}

// Wire returns the backend column name for k.
func (k SortKey) Wire() string {
	return wireSortFields[k]
}

// Direction is the sort order.
type Direction string

// Sort directions.
const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// StatusFilter restricts rows to one status; FilterAll disables filtering.
type StatusFilter string

// FilterAll matches every status.
const FilterAll StatusFilter = "all"

// ParseStatusFilter accepts "all", a view status, or the backend's "done".
func ParseStatusFilter(raw string) (StatusFilter, error) {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "", string(FilterAll):
		return FilterAll, nil
	case string(model.WireDone):
		return StatusFilter(model.StatusCompleted), nil
	default:
		if model.Status(v).Valid() {
			return StatusFilter(v), nil
		}
		return "", fmt.Errorf("unknown status filter %q", raw)
	}
}

// ParseSortKey validates a sort key name.
func ParseSortKey(raw string) (SortKey, error) {
	k := SortKey(strings.TrimSpace(raw))
	if !k.Valid() {
		return "", fmt.Errorf("unknown sort key %q", raw)
	}
	return k, nil
}

// Params is an immutable snapshot of the query used for one fetch.
type Params struct {
	Page      int          `json:"page" yaml:"page"`
	PageSize  int          `json:"pageSize" yaml:"page_size"`
	Sort      SortKey      `json:"sort" yaml:"sort"`
	Direction Direction    `json:"order" yaml:"order"`
	Search    string       `json:"search" yaml:"search"`
	Filter    StatusFilter `json:"filter" yaml:"filter"`
	// Version identifies the State revision this snapshot was taken from.
	Version uint64 `json:"version" yaml:"version"`
}

// Values renders p as backend query parameters.
func (p Params) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort.Wire())
	}
	if p.Direction != "" {
		v.Set("order", string(p.Direction))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Filter != "" && p.Filter != FilterAll {
		v.Set("filter", string(model.Status(p.Filter).Wire()))
	}
	return v
}

// SameQuery reports whether p and o request the same rows, ignoring Version.
func (p Params) SameQuery(o Params) bool {
	p.Version, o.Version = 0, 0
	return p == o
}

// State is the single source of truth for the next fetch's parameters. It is
// safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	params Params
}

// New returns a State on page 1 sorted by creation time, newest first.
func New(pageSize int) *State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &State{params: Params{
		Page:      1,
		PageSize:  pageSize,
		Sort:      SortCreatedAt,
		Direction: Descending,
		Filter:    FilterAll,
		Version:   1,
	}}
}

// Snapshot returns the current parameters.
func (s *State) Snapshot() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Version returns the current revision.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Version
}

// SetSearch changes the free-text term and resets to page 1.
func (s *State) SetSearch(term string) bool {
	term = strings.TrimSpace(term)
	return s.update(func(p *Params) bool {
		if p.Search == term {
			return false
		}
		p.Search = term
		p.Page = 1
		return true
	})
}

// SetStatusFilter changes the status filter and resets to page 1.
func (s *State) SetStatusFilter(f StatusFilter) bool {
	if f == "" {
		f = FilterAll
	}
	return s.update(func(p *Params) bool {
		if p.Filter == f {
			return false
		}
		p.Filter = f
		p.Page = 1
		return true
	})
}

// SetSort toggles the direction when key is the current sort key, otherwise
// sorts ascending by key. Either way the page resets to 1.
func (s *State) SetSort(key SortKey) bool {
	if !key.Valid() {
		return false
	}
	return s.update(func(p *Params) bool {
		if p.Sort == key {
			if p.Direction == Ascending {
				p.Direction = Descending
			} else {
				p.Direction = Ascending
			}
		} else {
			p.Sort = key
			p.Direction = Ascending
		}
		p.Page = 1
		return true
	})
}

// SetPage moves to page n clamped into [1, totalPages]. A totalPages below 1
// is treated as 1.
func (s *State) SetPage(n, totalPages int) bool {
	if totalPages < 1 {
		totalPages = 1
	}
	n = min(max(n, 1), totalPages)
	return s.update(func(p *Params) bool {
		if p.Page == n {
			return false
		}
		p.Page = n
		return true
	})
}

// Reset restores the defaults, keeping the page size.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	version := s.params.Version + 1
	s.params = Params{
		Page:      1,
		PageSize:  s.params.PageSize,
		Sort:      SortCreatedAt,
		Direction: Descending,
		Filter:    FilterAll,
		Version:   version,
	}
}

func (s *State) update(fn func(p *Params) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.params
	if !fn(&next) {
		return false
	}
	next.Version = s.params.Version + 1
	s.params = next
	return true
}
