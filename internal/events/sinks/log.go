package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/events"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Failures log at warn, the rest at debug.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("kind", string(evt.Kind)),
			zap.Time("ts", evt.TS),
		}
		if evt.Action != "" {
			fields = append(fields, zap.String("action", evt.Action))
		}
		if len(evt.JobIDs) > 0 {
			fields = append(fields, zap.Int64s("job_ids", evt.JobIDs))
		}
		if evt.QueryVersion != 0 {
			fields = append(fields, zap.Uint64("query_version", evt.QueryVersion))
		}
		if evt.Rows != 0 {
			fields = append(fields, zap.Int("rows", evt.Rows))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Kind {
		case events.KindPollFailed, events.KindActionFailed, events.KindDetailDegraded:
			s.logger.Warn("dashboard event", fields...)
		default:
			s.logger.Debug("dashboard event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
