package domain

import "errors"

// Engine error taxonomy. Callers match these with errors.Is; the HTTP layer
// maps them to status codes. Authorization and input errors are never
// retried; ErrTransientStore is safe for the caller to retry a bounded
// number of times.
var (
	// ErrUnauthorized means an ownership or presence check failed.
	// Always fails closed and is logged as a critical security event.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientExploration means the player has no visit record for
	// a location the operation requires.
	ErrInsufficientExploration = errors.New("insufficient exploration")

	// ErrInsufficientData means the observation series is below the
	// minimum sample threshold for forecasting.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoProfitableRoute means cascade search exhausted every path
	// without meeting the profit target.
	ErrNoProfitableRoute = errors.New("no profitable routes")

	// ErrTransientStore means the backing persistence was unavailable.
	ErrTransientStore = errors.New("transient store failure")

	// ErrInvalidInput means a malformed commodity, quantity or action.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited means the player exceeded the per-minute query budget.
	ErrRateLimited = errors.New("rate limited")
)
