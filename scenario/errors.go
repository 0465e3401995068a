package scenario

import "fmt"

// FixtureError means a fixture file is missing or malformed. It is raised before any browser opens.
type FixtureError struct {
	Path string
	Err  error
}

func (e *FixtureError) Error() string { return fmt.Sprintf("fixture %s: %s", e.Path, e.Err) }

func (e *FixtureError) Unwrap() error { return e.Err }

// AssertionFailure is a scenario's expectation that did not hold. Its message is the result's message.
type AssertionFailure struct {
	Check   string
	Message string
}

func (e *AssertionFailure) Error() string { return e.Message }

// Failf builds an AssertionFailure for the named check.
func Failf(check, format string, args ...any) *AssertionFailure {
	return &AssertionFailure{Check: check, Message: fmt.Sprintf(format, args...)}
}
