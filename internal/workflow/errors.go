package workflow

import (
	"errors"
	"fmt"
)

// Declined transition outcomes. These are expected results, not faults: the
// document is unchanged whenever one of them is returned.
var (
	// ErrNotFound indicates the document, product or user id did not resolve.
	ErrNotFound = errors.New("workflow: not found")
	// ErrInvalidTransition indicates the document is not in the source state
	// the transition requires.
	ErrInvalidTransition = errors.New("workflow: invalid state transition")
	// ErrForbidden indicates the actor's role or identity does not satisfy
	// the transition policy. Distinct from ErrInvalidTransition so callers can
	// tell wrong state from wrong actor.
	ErrForbidden = errors.New("workflow: forbidden")
	// ErrInvalidToken indicates an unknown, consumed or stale supplier
	// confirmation token.
	ErrInvalidToken = errors.New("workflow: invalid confirmation token")
	// ErrValidation indicates invalid operator input.
	ErrValidation = errors.New("workflow: invalid input")
)

// ValidationError wraps a concrete validation failure in ErrValidation so it
// maps to the VALIDATION reason code.
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, err.Error())
}

// InsufficientStockError is returned when a ledger decrement would drive a
// product's quantity negative. Carries enough detail to act on.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("workflow: insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Short returns the missing quantity.
func (e *InsufficientStockError) Short() int64 {
	return e.Requested - e.Available
}

// ReasonCode maps a declined-transition error to its stable reason code.
// Unknown errors map to "INTERNAL".
func ReasonCode(err error) string {
	var stock *InsufficientStockError
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.As(err, &stock):
		return "INSUFFICIENT_STOCK"
	default:
		return "INTERNAL"
	}
}
