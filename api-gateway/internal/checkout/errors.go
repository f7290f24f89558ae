package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrSubmissionInFlight = errors.New("order submission already in progress")
	ErrUnknownField       = errors.New("unknown checkout field")
	ErrInvalidStep        = errors.New("action not allowed at current checkout step")
	// ErrMalformedResponse is wrapped by OrderPlacer implementations when the
	// collaborator answered with something that could not be understood.
	ErrMalformedResponse = errors.New("malformed order service response")
)

// GenericFailureMessage is shown when the collaborator's answer could not be read.
const GenericFailureMessage = "Something went wrong while placing your order. Please try again."

// ValidationError names the first field that blocked a transition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// CollaboratorError is a rejection or failure reported by the order service.
// Message is meant for the customer as is.
type CollaboratorError struct {
	// Status is the upstream HTTP status when there was one.
	Status  int
	Message string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return e.Message
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
