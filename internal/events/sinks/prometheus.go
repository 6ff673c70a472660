package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/crawldash/internal/events"
)

// PrometheusSink counts events by kind and action.
type PrometheusSink struct {
	eventsTotal  *prometheus.CounterVec
	pollRows     prometheus.Histogram
	pollDuration prometheus.Histogram
}

// NewPrometheusSink registers the collectors against reg (the default registry when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawldash_events_total",
			Help: "Engine events partitioned by kind and action.",
		}, []string{"kind", "action"}),
		pollRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawldash_poll_rows",
			Help:    "Rows applied per successful poll.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawldash_poll_duration_seconds",
			Help:    "Fetch-to-apply latency of list polls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		}),
	}
	for _, collector := range []prometheus.Collector{s.eventsTotal, s.pollRows, s.pollDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.eventsTotal.WithLabelValues(string(evt.Kind), evt.Action).Inc()
		switch evt.Kind {
		case events.KindPollApplied:
			s.pollRows.Observe(float64(evt.Rows))
			if evt.Dur > 0 {
				s.pollDuration.Observe(evt.Dur.Seconds())
			}
		case events.KindPollDiscarded, events.KindPollFailed:
			if evt.Dur > 0 {
				s.pollDuration.Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
