package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")
	ErrConfigInvalid   = errors.New("invalid or missing configuration")

	// Evaluation Errors
	// ErrDataUnavailable marks insufficient history or a missing feed. It is
	// a normal per-module outcome: the module degrades to unavailable for the
	// cycle and reduces coverage.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrFetchFailed marks a network or timeout failure talking to a feed.
	// For scoring purposes it is treated as ErrDataUnavailable, but logged.
	ErrFetchFailed = errors.New("market data fetch failed")

	// Position Errors
	// ErrConcurrencyConflict marks a stale write against a position: the
	// loser must reload and retry against fresh state, never overwrite.
	ErrConcurrencyConflict = errors.New("position was modified concurrently")
	// ErrExecutionFailed marks an exchange order placement or cancel failure.
	ErrExecutionFailed = errors.New("exchange order execution failed")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
