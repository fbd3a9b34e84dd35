// Package failure defines the error taxonomy shared across the purchase
// pipeline. Handlers map these kinds onto HTTP statuses; services wrap the
// underlying cause with %w so callers can use errors.Is.
package failure

import (
	"errors"
	"net/http"
)

var (
	// ErrConfiguration marks a missing secret or endpoint. Fatal for the
	// request, never retried by us.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks bad caller input; the client must fix and resend.
	ErrValidation = errors.New("validation error")

	// ErrInvalidEmail is surfaced distinctly so the UI can re-prompt for the
	// address instead of showing a generic failure.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrProviderUnavailable marks a network or 5xx failure from an external
	// dependency before anything was persisted; safe for the caller to retry.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrAlreadyProcessed signals an idempotent no-op, not a fault.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrForwardingFailed marks a failed attribution send after the purchase
	// was durably recorded. Logged and journaled, never fails the webhook.
	ErrForwardingFailed = errors.New("forwarding failed")
)

// HTTPStatus maps an error kind onto the response status the pipeline's
// propagation policy prescribes.
func HTTPStatus(err error) int {
	switch {
	case err == nil, errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrForwardingFailed):
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidEmail):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
