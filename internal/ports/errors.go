package ports

import (
	"context"
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderNotFilled       = errors.New("order was not filled")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)

// FailureKind classifies an execution failure for callers and retry policy.
type FailureKind string

const (
	FailureInsufficientFunds FailureKind = "INSUFFICIENT_FUNDS"
	FailureTimeout           FailureKind = "TIMEOUT"
	FailureRateLimited       FailureKind = "RATE_LIMITED"
	FailureRejected          FailureKind = "EXCHANGE_REJECTED"
	FailureUnavailable       FailureKind = "UNAVAILABLE"
	FailureNotFilled         FailureKind = "NOT_FILLED"
	FailureCancelled         FailureKind = "CANCELLED"
	FailureAuthentication    FailureKind = "AUTHENTICATION"
	FailureUnknown           FailureKind = "UNKNOWN"
)

// ExecutionFailure is returned when an approved order did not execute.
// No ledger mutation happens for a failed execution.
type ExecutionFailure struct {
	Kind     FailureKind
	Venue    string
	Attempts int
	Err      error
}

func (f *ExecutionFailure) Error() string {
	msg := fmt.Sprintf("execution failed (%s)", f.Kind)
	if f.Venue != "" {
		msg = fmt.Sprintf("%s execution failed (%s)", f.Venue, f.Kind)
	}
	if f.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, f.Attempts)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *ExecutionFailure) Unwrap() error {
	return f.Err
}

// Transient reports whether retrying the same order may succeed.
func (f *ExecutionFailure) Transient() bool {
	switch f.Kind {
	case FailureTimeout, FailureRateLimited, FailureUnavailable:
		return true
	}
	return false
}

// ClassifyExecutionError maps an adapter error onto an ExecutionFailure.
// An error that already is an ExecutionFailure is returned unchanged.
func ClassifyExecutionError(venue string, err error) *ExecutionFailure {
	if err == nil {
		return nil
	}
	var existing *ExecutionFailure
	if errors.As(err, &existing) {
		return existing
	}

	kind := FailureUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		kind = FailureTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrContextCanceled):
		kind = FailureCancelled
	case errors.Is(err, ErrRateLimited):
		kind = FailureRateLimited
	case errors.Is(err, ErrInsufficientFunds):
		kind = FailureInsufficientFunds
	case errors.Is(err, ErrExchangeUnavailable), errors.Is(err, ErrConnectionFailed):
		kind = FailureUnavailable
	case errors.Is(err, ErrAuthenticationFailed):
		kind = FailureAuthentication
	case errors.Is(err, ErrOrderNotFilled):
		kind = FailureNotFilled
	case errors.Is(err, ErrOrderPlacementFailed), errors.Is(err, ErrInvalidRequest):
		kind = FailureRejected
	}
	return &ExecutionFailure{Kind: kind, Venue: venue, Attempts: 1, Err: err}
}
