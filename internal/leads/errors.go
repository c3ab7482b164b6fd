package leads

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a request is missing or has malformed fields.
	ErrValidation = errors.New("validation failed")

	// ErrMissingFields is returned when a purchase is missing lead, contractor or payment method.
	ErrMissingFields = errors.New("missing required fields")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	ErrContractorNotFound = errors.New("contractor not found")
	ErrPaymentNotFound    = errors.New("payment not found")

	// ErrInvalidStatus is returned for a status outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition is returned when the lifecycle does not allow the move.
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrLeadUnavailable   = errors.New("lead not available for purchase")
	ErrLeadExpired       = errors.New("lead has expired")
	ErrPaymentIncomplete = errors.New("payment not completed")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrRateLimited       = errors.New("too many purchase attempts")

	// ErrConflict is returned when concurrent writers kept winning the race.
	ErrConflict = errors.New("lead was modified concurrently")

	// ErrVersionConflict is returned by repositories when the expected version is stale.
	ErrVersionConflict = errors.New("lead version conflict")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError names both lifecycle states of a rejected move.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Cannot transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
