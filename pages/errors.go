package pages

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRoomIndex is returned when a room position is not 1-based.
var ErrInvalidRoomIndex = errors.New("room index must be 1 or greater")

// AuthenticationError means a login was submitted but the admin area never appeared.
type AuthenticationError struct {
	Expected string // admin area URL
	Actual   string // URL when the wait gave up
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: expected to reach %s but stayed on %s", e.Expected, e.Actual)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// FormMappingError lists payload keys that have no input in the selector contract.
type FormMappingError struct {
	Fields []string
}

func (e *FormMappingError) Error() string {
	return "payload fields have no form input: " + strings.Join(e.Fields, ", ")
}
