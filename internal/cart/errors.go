package cart

import (
	"errors"
	"fmt"

	"github.com/danmuck/storefront/internal/commerce"
)

// Stage names the step a cart error came from, so the presentation layer can
// send the user back to the right place.
type Stage string

const (
	StageCartFetch    Stage = "cart-fetch"
	StageCartMutation Stage = "cart-mutation"
)

var (
	ErrNoCart          = errors.New("cart: no cart for this session")
	ErrItemNotInCart   = errors.New("cart: item not in cart")
	ErrProductRequired = errors.New("cart: product id required")
	ErrItemRequired    = errors.New("cart: item id required")
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	ErrBusy            = errors.New("cart: another cart operation is in progress")
)

// ValidationError rejects an intent before any remote call is made.
type ValidationError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) ErrorStage() string { return string(e.Stage) }

// StateConflict is returned when a cart operation overlaps one still outstanding.
type StateConflict struct {
	CartID commerce.CartID
	Op     string
}

func (e *StateConflict) Error() string {
	if e.CartID == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrBusy)
	}
	return fmt.Sprintf("%s cart=%s: %v", e.Op, e.CartID, ErrBusy)
}

func (e *StateConflict) Unwrap() error { return ErrBusy }

func (e *StateConflict) ErrorStage() string { return string(StageCartMutation) }

// StageError wraps a failed remote call or storage access with its stage.
type StageError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) ErrorStage() string { return string(e.Stage) }
