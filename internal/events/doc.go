// Package events carries the dashboard engine's audit stream: poll outcomes,
// user actions, session transitions, and detail loads. A Hub batches events on
// a background goroutine and fans them out to sinks such as structured logs,
// Prometheus counters, or a NATS subject. Emit never blocks the caller.
package events
