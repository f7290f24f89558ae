package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrPriceChanged       = errors.New("price changed")
	ErrTotalsMismatch     = errors.New("totals mismatch")
	ErrNotPayable         = errors.New("order cannot be paid")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrPaymentUnavailable = errors.New("payment processor unavailable")
)

// RejectionError explains to the shopper why an order was refused.
// Message is safe to show as is.
type RejectionError struct {
	Kind    error
	Field   string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

func reject(kind error, field, format string, args ...any) *RejectionError {
	return &RejectionError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}
