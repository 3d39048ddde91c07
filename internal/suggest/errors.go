package suggest

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeafMist/keyword-radar/internal/models"
)

var (
	// ErrTransientNetwork covers timeouts and connection failures.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrEndpointProtocol covers non-2xx statuses and bodies that do not parse.
	// Both are retried because the endpoint uses them to signal soft blocks.
	ErrEndpointProtocol = errors.New("endpoint protocol error")
)

// AttemptError describes why one request attempt failed.
type AttemptError struct {
	Kind       models.FailureKind
	StatusCode int
	Err        error
}

func (e *AttemptError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *AttemptError) Unwrap() []error {
	switch e.Kind {
	case models.FailureTimeout, models.FailureConnection:
		return []error{ErrTransientNetwork, e.Err}
	case models.FailureStatus, models.FailureMalformed:
		return []error{ErrEndpointProtocol, e.Err}
	default:
		return []error{e.Err}
	}
}

// Retryable reports whether another attempt may succeed.
func (e *AttemptError) Retryable() bool {
	return e.Kind != models.FailureCanceled
}

// blockSignal reports statuses the endpoint uses for throttling.
func (e *AttemptError) blockSignal() bool {
	return e.StatusCode == 429 || e.StatusCode == 503
}

func canceled(err error) *AttemptError {
	if err == nil {
		err = context.Canceled
	}
	return &AttemptError{Kind: models.FailureCanceled, Err: err}
}
