package browser

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// pollInterval is how often PollUntil re-checks its condition.
const pollInterval = 50 * time.Millisecond

// PollUntil calls cond until it returns true, the timeout expires, or ctx is done.
// It returns context.DeadlineExceeded when the timeout expires and ctx.Err() when ctx ends first.
func PollUntil(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitCondition polls cond and converts an expired timeout into a TimeoutError.
// Cancellation of ctx itself is returned as-is.
func waitCondition(ctx context.Context, timeout time.Duration, condition, expected string, observe func() string, cond func() (bool, error)) error {
	err := PollUntil(ctx, timeout, cond)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		te := &TimeoutError{Condition: condition, Expected: expected, Timeout: timeout}
		if observe != nil {
			te.Observed = observe()
		}
		return te
	}
	return err
}

// URLMatches compares two absolute URLs, ignoring a trailing slash on the path.
// The query string only participates when expected has one.
func URLMatches(actual, expected string) bool {
	a, err := url.Parse(actual)
	if err != nil {
		return false
	}
	e, err := url.Parse(expected)
	if err != nil {
		return false
	}
	if !strings.EqualFold(a.Scheme, e.Scheme) || !strings.EqualFold(a.Host, e.Host) {
		return false
	}
	if strings.TrimSuffix(a.Path, "/") != strings.TrimSuffix(e.Path, "/") {
		return false
	}
	return e.RawQuery == "" || a.Query().Encode() == e.Query().Encode()
}

// boundedTimeout shrinks d to the time left before ctx's deadline.
func boundedTimeout(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			if left < time.Millisecond {
				return time.Millisecond
			}
			return left
		}
	}
	return d
}
