package domain

import (
	"errors"
	"fmt"
)

// ValidationError is returned for malformed order requests or configuration.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError for one field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// RiskRejection describes why the risk evaluator refused an order.
// It is a normal outcome rather than a fault; callers receive it inside an OrderResult.
type RiskRejection struct {
	Reason RejectionReason
	Detail string
}

func (r *RiskRejection) Error() string {
	if r.Detail == "" {
		return "risk rejected: " + string(r.Reason)
	}
	return fmt.Sprintf("risk rejected: %s: %s", r.Reason, r.Detail)
}

// ErrLedgerConsistency marks violations of ledger invariants.
var ErrLedgerConsistency = errors.New("ledger consistency violation")

// LedgerConsistencyError carries the invariant that failed.
type LedgerConsistencyError struct {
	Invariant string
	Detail    string
}

func (e *LedgerConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrLedgerConsistency, e.Invariant, e.Detail)
}

func (e *LedgerConsistencyError) Unwrap() error {
	return ErrLedgerConsistency
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
