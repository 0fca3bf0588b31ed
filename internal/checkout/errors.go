package checkout

import (
	"errors"
	"fmt"
)

// Stage names where in the flow an error belongs.
type Stage string

const (
	StageCheckout Stage = "checkout"
	StagePayment  Stage = "payment"
)

var (
	ErrCartEmpty          = errors.New("checkout: cart is empty")
	ErrCartNotReady       = errors.New("checkout: cart is not ready")
	ErrCustomerIncomplete = errors.New("checkout: customer needs an id or a name and email")
	ErrBillingIncomplete  = errors.New("checkout: billing address incomplete")
	ErrShippingIncomplete = errors.New("checkout: shipping address incomplete")
	ErrOrderExists        = errors.New("checkout: order already created, reset to start over")
	ErrNotCheckedOut      = errors.New("checkout: no order awaiting payment")
	ErrAlreadyPaid        = errors.New("checkout: order already paid")
	ErrNoTokenSource      = errors.New("checkout: payment token source required")
	ErrAmountMismatch     = errors.New("checkout: order total does not match cart total")
	ErrCartChanged        = errors.New("checkout: cart changed since the order was created, reset to start over")
	ErrPaymentDeclined    = errors.New("checkout: payment declined")
	ErrPaymentIncomplete  = errors.New("checkout: payment not confirmed")
	ErrBusy               = errors.New("checkout: another checkout operation is in progress")
)

// ValidationError rejects a transition before any remote call is made.
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

type StateConflict struct {
	OrderID string
	Op      string
}

func (e *StateConflict) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrBusy)
	}
	return fmt.Sprintf("%s order=%s: %v", e.Op, e.OrderID, ErrBusy)
}

func (e *StateConflict) Unwrap() error { return ErrBusy }

func (e *StateConflict) ErrorStage() string { return string(StageCheckout) }

// StageError is the error behind a Failed state.
type StageError struct {
	Stage   Stage
	Op      string
	OrderID string
	Err     error
}

func (e *StageError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (%s) order=%s: %v", e.Op, e.Stage, e.OrderID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) ErrorStage() string { return string(e.Stage) }
