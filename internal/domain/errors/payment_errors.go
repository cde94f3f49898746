package errors

import (
	"errors"
	"fmt"
)

// ErrPaymentNotFound is returned when no payment matches the identifier
var ErrPaymentNotFound = errors.New("payment not found")

// ErrPaymentExpired is returned when an operation targets a payment past its TTL
var ErrPaymentExpired = errors.New("payment expired")

// InconsistentLinkError is returned when a second activation linkage is
// attempted with a different value. Linkage is set exactly once; a repeat
// call with the same value is a no-op, not an error.
type InconsistentLinkError struct {
	PaymentID string
	Existing  string
	Attempted string
}

func (e *InconsistentLinkError) Error() string {
	return fmt.Sprintf("payment %s already linked to %s, refusing relink to %s",
		e.PaymentID, e.Existing, e.Attempted)
}

// NewInconsistentLinkError creates a new InconsistentLinkError
func NewInconsistentLinkError(paymentID, existing, attempted string) *InconsistentLinkError {
	return &InconsistentLinkError{PaymentID: paymentID, Existing: existing, Attempted: attempted}
}

// ActivationError wraps a failure from an external activation collaborator.
// The payment stays at confirmed and activation is retried on the next
// scheduler tick; it is never treated as a payment failure.
type ActivationError struct {
	PaymentID string
	Cause     error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activation failed for payment %s: %v", e.PaymentID, e.Cause)
}

func (e *ActivationError) Unwrap() error {
	return e.Cause
}

// NewActivationError creates a new ActivationError
func NewActivationError(paymentID string, cause error) *ActivationError {
	return &ActivationError{PaymentID: paymentID, Cause: cause}
}
