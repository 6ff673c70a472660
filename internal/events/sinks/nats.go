package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/JakeFAU/crawldash/internal/events"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "crawldash.events"

// FlushWithContext rejects contexts without a deadline.
const closeFlushTimeout = 5 * time.Second

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NATSSink publishes each event as JSON on a subject suffixed with the
// lowercased kind, e.g. crawldash.events.poll_failed.
type NATSSink struct {
	pub     Publisher
	subject string
}

// NewNATSSink builds a sink over an existing connection.
func NewNATSSink(pub Publisher, subject string) (*NATSSink, error) {
	if pub == nil {
		return nil, errors.New("nats sink: publisher is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject}, nil
}

// Connect dials a NATS server for the sink.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Subject returns the subject an event of kind k is published on.
func (s *NATSSink) Subject(k events.Kind) string {
	return s.subject + "." + strings.ToLower(string(k))
}

// Consume publishes every event in batch and then flushes.
func (s *NATSSink) Consume(ctx context.Context, batch []events.Event) error {
	var errs []error
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode event %s: %w", evt.ID, err))
			continue
		}
		msg := &nats.Msg{
			Subject: s.Subject(evt.Kind),
			Data:    data,
			Header:  make(nats.Header),
		}
		msg.Header.Set(nats.MsgIdHdr, evt.ID)
		if err := s.pub.PublishMsg(msg); err != nil {
			errs = append(errs, fmt.Errorf("publish event %s: %w", evt.ID, err))
		}
	}
	if err := s.pub.FlushWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush nats: %w", err))
	}
	return errors.Join(errs...)
}

// Close flushes pending publishes. The connection stays open for its owner.
func (s *NATSSink) Close(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, closeFlushTimeout)
		defer cancel()
	}
	if err := s.pub.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}
