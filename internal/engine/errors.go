package engine

import (
	"errors"
	"fmt"
)

// ErrDuplicateFingerprint signals that a live proposal already holds the
// trigger's dedupe key for the requesting generation.
var ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

// ErrInvalidTransition signals a status change the lifecycle does not allow,
// including the case where a concurrent writer won the row first.
var ErrInvalidTransition = errors.New("invalid transition")

// InsufficientCreditsError reports an acceptance blocked by the credit gate.
// The proposal stays in its current status.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}
