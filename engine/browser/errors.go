package browser

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by operations on a page or session that has been closed.
	ErrClosed = errors.New("browser: page or session closed")

	// ErrNotFound is returned when an action targets a selector that matches nothing.
	ErrNotFound = errors.New("browser: no element matches selector")
)

// TimeoutError reports a bounded wait that expired before its condition held.
type TimeoutError struct {
	Condition string // e.g. "url", "visible", "load state"
	Expected  string
	Observed  string
	Timeout   time.Duration
	Err       error // engine error, if any
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s %q", e.Timeout, e.Condition, e.Expected)
	if e.Observed != "" {
		msg += fmt.Sprintf(" (observed %q)", e.Observed)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
