package events

import (
	"errors"
	"fmt"
	"time"
)

// Kind names the engine milestone an Event records.
type Kind string

// Supported event kinds.
const (
	KindPollApplied    Kind = "POLL_APPLIED"
	KindPollDiscarded  Kind = "POLL_DISCARDED"
	KindPollFailed     Kind = "POLL_FAILED"
	KindActionOK       Kind = "ACTION_OK"
	KindActionFailed   Kind = "ACTION_FAILED"
	KindSessionStarted Kind = "SESSION_STARTED"
	KindSessionEnded   Kind = "SESSION_ENDED"
	KindDetailLoaded   Kind = "DETAIL_LOADED"
	KindDetailDegraded Kind = "DETAIL_DEGRADED"
)

// Event is one engine milestone.
type Event struct {
	// ID is a UUID assigned by the Hub when left empty.
	ID string `json:"id"`
	// TS is the UTC timestamp; the Hub stamps it when zero.
	TS   time.Time `json:"ts"`
	Kind Kind      `json:"kind"`
	// Action names the mutation for action events (add_job, start_job, bulk_delete, ...).
	Action string `json:"action,omitempty"`
	// JobIDs lists the jobs the event concerns.
	JobIDs []int64 `json:"job_ids,omitempty"`
	// QueryVersion is the query revision a poll event was fetched for.
	QueryVersion uint64 `json:"query_version,omitempty"`
	// Rows counts the rows applied by a poll.
	Rows int           `json:"rows,omitempty"`
	Dur  time.Duration `json:"dur_ns,omitempty"`
	// Note carries low-volume context such as error text. It never holds credentials.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindPollApplied, KindPollDiscarded, KindPollFailed,
		KindSessionStarted, KindSessionEnded,
		KindDetailLoaded, KindDetailDegraded:
	case KindActionOK, KindActionFailed:
		if e.Action == "" {
			return errors.New("action events require an action")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Action builds an action event from the outcome of a mutation.
func Action(action string, err error, ids ...int64) Event {
	evt := Event{Kind: KindActionOK, Action: action, JobIDs: ids}
	if err != nil {
		evt.Kind = KindActionFailed
		evt.Note = err.Error()
	}
	return evt
}
