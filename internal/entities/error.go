package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by the storage gateway when no active row
	// exists for the requested locality.
	ErrNotFound = errors.New("entity not found")

	// ErrMalformedPayload marks an upstream body that cannot be parsed
	// into the expected numeric fields.
	ErrMalformedPayload = errors.New("malformed upstream payload")

	// ErrInvalidSnapshot marks a snapshot that failed validation.
	ErrInvalidSnapshot = errors.New("invalid rate snapshot")

	// ErrNoData is returned when both the live fetch and the persisted
	// fallback are unavailable.
	ErrNoData = errors.New("no rates available")
)

// BadStatusError reports a non-success HTTP status from the upstream provider.
type BadStatusError struct {
	Code int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.Code)
}
