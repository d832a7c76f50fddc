package search

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means no valid session could be obtained.
	ErrAuth = errors.New("authentication error")
	// ErrTransport covers connectivity and HTTP-level failures.
	ErrTransport = errors.New("transport error")
	// ErrProtocol means a response did not have the expected shape.
	ErrProtocol = errors.New("protocol error")
	// ErrJobStartFailed means the daemon did not hand out a job id.
	ErrJobStartFailed = errors.New("search job start failed")
	// ErrJobTimedOut means the poll budget ran out. The error carries
	// whatever records could still be fetched.
	ErrJobTimedOut = errors.New("search job timed out")
	// ErrInvalidQuery is returned for an empty query.
	ErrInvalidQuery = errors.New("search query is empty")
	// ErrSuperseded is returned to a search that was replaced by a newer one.
	ErrSuperseded = errors.New("search superseded by a newer search")
)

// Error wraps a search failure with the step that failed.
type Error struct {
	Op      string // auth, start, poll, fetch, plugins
	JobID   string
	Kind    error // one of the Err* sentinels above
	Err     error // underlying cause, may be nil
	Records []Record
}

func (e *Error) Error() string {
	prefix := "search " + e.Op
	if e.JobID != "" {
		prefix = fmt.Sprintf("search %s (job %s)", e.Op, e.JobID)
	}
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", prefix, e.Kind)
	case e.Kind == nil || errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", prefix, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// PartialRecords returns the records attached to a timed-out search.
func PartialRecords(err error) ([]Record, bool) {
	var serr *Error
	if !errors.As(err, &serr) || !errors.Is(serr.Kind, ErrJobTimedOut) {
		return nil, false
	}
	return serr.Records, true
}

// IsTimeout reports whether err is a soft timeout whose partial records are usable.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrJobTimedOut)
}

// classify maps a transport or session failure onto the error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrAuth):
		return ErrAuth
	case errors.Is(err, ErrProtocol):
		return ErrProtocol
	default:
		return ErrTransport
	}
}
