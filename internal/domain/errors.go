package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these so
// callers can branch with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrState         = errors.New("invalid state")
	ErrLimitExceeded = errors.New("limit exceeded")
	ErrDomain        = errors.New("business rule violated")
)

var (
	ErrConnectionNotFound      = fmt.Errorf("bank connection %w", ErrNotFound)
	ErrLinkedAccountNotFound   = fmt.Errorf("linked account %w", ErrNotFound)
	ErrVerificationNotFound    = fmt.Errorf("verification %w", ErrNotFound)
	ErrTransactionNotFound     = fmt.Errorf("transaction %w", ErrNotFound)
	ErrBusinessAccountNotFound = fmt.Errorf("business account %w", ErrNotFound)
	ErrRouteNotFound           = fmt.Errorf("payment route %w", ErrNotFound)

	ErrConnectionInUse        = fmt.Errorf("connection has in-flight transactions: %w", ErrState)
	ErrVerificationNotPending = fmt.Errorf("verification is not pending: %w", ErrState)
	ErrVerificationExpired    = fmt.Errorf("verification has expired: %w", ErrState)
	ErrWrongVerificationType  = fmt.Errorf("verification method does not accept this action: %w", ErrState)
	ErrTransactionNotPending  = fmt.Errorf("transaction is no longer pending: %w", ErrState)
	ErrTransactionNotSettled  = fmt.Errorf("transaction is not completed: %w", ErrState)

	ErrConnectionNotVerified = fmt.Errorf("not verified: %w", ErrDomain)
	ErrPermissionDenied      = fmt.Errorf("connection lacks an active permission: %w", ErrDomain)
	ErrAccountCannotReceive  = fmt.Errorf("business account cannot receive payments: %w", ErrDomain)

	ErrDailyLimitExceeded   = fmt.Errorf("daily %w", ErrLimitExceeded)
	ErrMonthlyLimitExceeded = fmt.Errorf("monthly %w", ErrLimitExceeded)
	ErrReceiveLimitExceeded = fmt.Errorf("receive %w", ErrLimitExceeded)
	ErrConnectionLimit      = fmt.Errorf("tenant connection %w", ErrLimitExceeded)
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
