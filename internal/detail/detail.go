// Package detail loads the expanded record for one job. A failed load
// degrades to the summary row the user picked instead of blocking navigation.
package detail

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/events"
	"github.com/JakeFAU/crawldash/internal/model"
)

// Getter fetches one job with its broken links.
type Getter interface {
	GetJob(ctx context.Context, id int64) (model.DetailResponse, error)
}

// Detail is the held detail record.
type Detail struct {
	Record      model.ViewRecord   `json:"record" yaml:"record"`
	BrokenLinks []model.BrokenLink `json:"brokenLinks" yaml:"broken_links"`
	// Degraded is true when Record is the last known summary because the load failed.
	Degraded bool `json:"degraded" yaml:"degraded"`
}

// Loader fetches and holds at most one Detail.
type Loader struct {
	getter  Getter
	emitter events.Emitter
	logger  *zap.Logger

	mu      sync.RWMutex
	current *Detail
	seq     uint64
}

// New builds a Loader. emitter and logger may be nil.
func New(getter Getter, emitter events.Emitter, logger *zap.Logger) (*Loader, error) {
	if getter == nil {
		return nil, errors.New("detail: getter is required")
	}
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{getter: getter, emitter: emitter, logger: logger}, nil
}

// Load fetches summary.ID and holds the result. On failure it holds summary
// with no broken links and returns the error alongside the degraded Detail.
// When loads overlap, only the most recently started one is held.
func (l *Loader) Load(ctx context.Context, summary model.ViewRecord) (Detail, error) {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	resp, err := l.getter.GetJob(ctx, summary.ID)
	d := Detail{Record: model.Normalize(resp.URL), BrokenLinks: resp.BrokenLinks}
	if err != nil {
		d = Detail{Record: summary, Degraded: true}
		l.emitter.Emit(events.Event{Kind: events.KindDetailDegraded, JobIDs: []int64{summary.ID}, Note: err.Error()})
		l.logger.Warn("detail load failed; showing summary",
			zap.Int64("job_id", summary.ID),
			zap.Error(err),
		)
	} else {
		l.emitter.Emit(events.Event{Kind: events.KindDetailLoaded, JobIDs: []int64{summary.ID}, Rows: len(resp.BrokenLinks)})
	}
	if d.BrokenLinks == nil {
		d.BrokenLinks = []model.BrokenLink{}
	}

	l.mu.Lock()
	if seq == l.seq {
		held := d
		l.current = &held
	}
	l.mu.Unlock()
	return d, err
}

// Current returns the held Detail, if any.
func (l *Loader) Current() (Detail, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return Detail{}, false
	}
	return *l.current, true
}

// Clear drops the held Detail and abandons any load in progress.
func (l *Loader) Clear() {
	l.mu.Lock()
	l.seq++
	l.current = nil
	l.mu.Unlock()
}
