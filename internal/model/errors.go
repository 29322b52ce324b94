package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrJobNotFound is returned when a job id is unknown or its result expired.
var ErrJobNotFound = errors.New("job not found")

// ErrNotTerminal is returned when a result is requested for a job that has
// not yet succeeded or failed.
var ErrNotTerminal = errors.New("job not in a terminal state")

// ErrBrokerUnavailable is returned when the broker cannot be reached.
// Submissions are rejected explicitly rather than silently queued.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// ValidationError rejects a structurally invalid submission or request.
// Field names the offending entity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BackendUnavailableError names the untrained backend(s) that a prediction
// or ensemble request required.
type BackendUnavailableError struct {
	Missing []string
}

func (e *BackendUnavailableError) Error() string {
	if len(e.Missing) == 1 {
		return fmt.Sprintf("backend %q is not trained", e.Missing[0])
	}
	return fmt.Sprintf("backends not trained: %s", strings.Join(e.Missing, ", "))
}
