package search

import "time"

// EventKind identifies a lifecycle step of a search job.
type EventKind string

const (
	EventJobStarted      EventKind = "job_started"
	EventPoll            EventKind = "poll"
	EventPlateau         EventKind = "plateau"
	EventFetch           EventKind = "fetch"
	EventTimedOut        EventKind = "timed_out"
	EventJobFailed       EventKind = "job_failed"
	EventJobCancelled    EventKind = "job_cancelled"
	EventStopIssued      EventKind = "stop_issued"
	EventStopFailed      EventKind = "stop_failed"
	EventReauthenticated EventKind = "reauthenticated"
)

// Event is emitted to the Observer at every lifecycle step.
type Event struct {
	Kind    EventKind
	JobID   string
	Query   string
	Status  JobStatus
	Total   int
	Stable  int
	Records int
	Err     error
	At      time.Time
}

// Observer receives lifecycle events. Observe is called synchronously from
// the search goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) {
	f(e)
}
