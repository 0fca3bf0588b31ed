// Package checkout runs cart → order → payment as three separate remote
// steps so a failed payment can be retried against the order that already
// exists.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/danmuck/storefront/internal/payment"
	"github.com/rs/zerolog"
)

// API is the slice of the commerce adapter the orchestrator needs.
type API interface {
	BeginCheckout(ctx context.Context, cartID commerce.CartID, customer commerce.CheckoutCustomer, billing, shipping commerce.Address) (commerce.Order, error)
	SubmitPayment(ctx context.Context, orderID string, token commerce.PaymentToken, receiptEmail string) (commerce.Payment, error)
}

// CartSource exposes the cart view checkout starts from. Exclusive holds
// the cart's operation slot for the duration of fn, so the cart cannot change
// underneath a checkout or payment round trip.
type CartSource interface {
	Snapshot() cart.Snapshot
	Exclusive(ctx context.Context, op string, fn func(cart.Snapshot) error) error
}

type State string

const (
	StateCartReady         State = "cart-ready"
	StateCheckoutInitiated State = "checkout-initiated"
	StatePaymentSubmitted  State = "payment-submitted"
	StatePaid              State = "paid"
	StateFailed            State = "failed"
)

// Request is the customer and address payload for StartCheckout. A zero
// Shipping address means ship to the billing address.
type Request struct {
	Customer commerce.CheckoutCustomer `json:"customer"`
	Billing  commerce.Address          `json:"billing_address"`
	Shipping commerce.Address          `json:"shipping_address"`
}

type Snapshot struct {
	State    State
	Stage    Stage
	Err      error
	CartID   commerce.CartID
	OrderID  string
	Amount   commerce.Money
	Customer commerce.CheckoutCustomer
	Billing  commerce.Address
	Payment  *commerce.Payment
}

type Option func(*Orchestrator)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

type Orchestrator struct {
	api    API
	cart   CartSource
	logger zerolog.Logger

	slot chan struct{}

	mu    sync.RWMutex
	state Snapshot
}

func New(api API, source CartSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:    api,
		cart:   source,
		logger: observability.Component("checkout"),
		slot:   make(chan struct{}, 1),
		state:  Snapshot{State: StateCartReady},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := o.state
	if o.state.Payment != nil {
		p := *o.state.Payment
		out.Payment = &p
	}
	return out
}

// StartCheckout converts the current cart into an order. The payable amount
// returned by the service must match the cart total.
func (o *Orchestrator) StartCheckout(ctx context.Context, req Request) error {
	const op = "start_checkout"
	release, err := o.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	current := o.Snapshot()
	if current.State == StatePaid {
		return invalid(StageCheckout, op, ErrAlreadyPaid)
	}
	if current.OrderID != "" {
		return invalid(StageCheckout, op, ErrOrderExists)
	}

	customer := commerce.CheckoutCustomer{
		ID:    strings.TrimSpace(req.Customer.ID),
		Name:  strings.TrimSpace(req.Customer.Name),
		Email: strings.TrimSpace(req.Customer.Email),
	}
	if !customer.Complete() {
		return invalid(StageCheckout, op, ErrCustomerIncomplete)
	}
	if missing := req.Billing.Missing(); len(missing) > 0 {
		return invalid(StageCheckout, op, fmt.Errorf("%w: %s", ErrBillingIncomplete, strings.Join(missing, ", ")))
	}
	shipping := req.Shipping
	if shipping.IsZero() {
		shipping = req.Billing
	} else if missing := shipping.Missing(); len(missing) > 0 {
		return invalid(StageCheckout, op, fmt.Errorf("%w: %s", ErrShippingIncomplete, strings.Join(missing, ", ")))
	}

	return o.cart.Exclusive(ctx, op, func(cartView cart.Snapshot) error {
		if !cartView.HasItems() {
			return invalid(StageCheckout, op, ErrCartEmpty)
		}
		if cartView.Status != cart.StatusReady || cartView.Summary == nil || cartView.CartID == "" {
			return invalid(StageCheckout, op, fmt.Errorf("%w: status %s", ErrCartNotReady, cartView.Status))
		}

		o.mu.Lock()
		o.state.CartID = cartView.CartID
		o.state.Customer = customer
		o.state.Billing = req.Billing
		o.mu.Unlock()

		order, err := o.api.BeginCheckout(ctx, cartView.CartID, customer, req.Billing, shipping)
		if err != nil {
			return o.fail(StageCheckout, op, err)
		}
		if strings.TrimSpace(order.ID) == "" {
			return o.fail(StageCheckout, op, commerce.ErrMissingOrderID)
		}

		o.mu.Lock()
		o.state.OrderID = order.ID
		o.state.Amount = order.Total
		o.mu.Unlock()

		if !order.Total.Equal(cartView.Summary.Total) {
			return o.fail(StageCheckout, op, fmt.Errorf("%w: order %s, cart %s", ErrAmountMismatch, order.Total, cartView.Summary.Total))
		}
		o.transition(StateCheckoutInitiated)
		o.logger.Info().Str("cart_id", cartView.CartID.String()).Str("order_id", order.ID).Str("amount", order.Total.String()).Msg("checkout initiated")
		return nil
	})
}

// SubmitPayment obtains a token from tokens and pays the existing order.
// It may be retried after a payment failure; the order is never re-created.
// A blank receiptEmail falls back to the checkout customer's email. The cart
// must still total what the order does, otherwise the flow has to be reset.
func (o *Orchestrator) SubmitPayment(ctx context.Context, tokens payment.TokenSource, receiptEmail string) error {
	const op = "submit_payment"
	if tokens == nil {
		return invalid(StagePayment, op, ErrNoTokenSource)
	}
	release, err := o.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	current := o.Snapshot()
	switch {
	case current.State == StatePaid:
		return invalid(StagePayment, op, ErrAlreadyPaid)
	case current.State == StateCheckoutInitiated:
	case current.State == StateFailed && current.Stage == StagePayment && current.OrderID != "":
	default:
		return invalid(StagePayment, op, ErrNotCheckedOut)
	}

	email := strings.TrimSpace(receiptEmail)
	if email == "" {
		email = current.Customer.Email
	}

	return o.cart.Exclusive(ctx, op, func(cartView cart.Snapshot) error {
		if cartView.Summary == nil || !cartView.Summary.Total.Equal(current.Amount) {
			cartTotal := "none"
			if cartView.Summary != nil {
				cartTotal = cartView.Summary.Total.String()
			}
			return invalid(StagePayment, op, fmt.Errorf("%w: order %s, cart %s", ErrCartChanged, current.Amount, cartTotal))
		}

		token, err := tokens.Token(ctx, payment.TokenRequest{Amount: current.Amount, Billing: current.Billing, Email: email})
		if errors.Is(err, payment.ErrEmptyToken) {
			return invalid(StagePayment, op, err)
		}
		if err != nil {
			return o.fail(StagePayment, op, err)
		}

		o.transition(StatePaymentSubmitted)
		result, err := o.api.SubmitPayment(ctx, current.OrderID, token, email)
		if err != nil {
			return o.fail(StagePayment, op, err)
		}

		o.mu.Lock()
		o.state.Payment = &result
		o.mu.Unlock()

		switch {
		case result.Succeeded():
			o.transition(StatePaid)
			o.logger.Info().Str("order_id", current.OrderID).Str("transaction_id", result.ID).Msg("order paid")
			return nil
		case result.Status == commerce.TransactionFailed:
			return o.fail(StagePayment, op, ErrPaymentDeclined)
		default:
			return o.fail(StagePayment, op, fmt.Errorf("%w: transaction status %q", ErrPaymentIncomplete, result.Status))
		}
	})
}

// Reset discards the flow so a new checkout can start, for example after
// the cart changed.
func (o *Orchestrator) Reset() error {
	release, err := o.acquire("reset")
	if err != nil {
		return err
	}
	defer release()

	o.mu.Lock()
	previous := o.state.OrderID
	o.state = Snapshot{State: StateCartReady}
	o.mu.Unlock()
	observability.RecordCheckoutTransition(string(StateCartReady))
	o.logger.Debug().Str("previous_order_id", previous).Msg("checkout reset")
	return nil
}

func (o *Orchestrator) acquire(op string) (func(), error) {
	select {
	case o.slot <- struct{}{}:
		return func() { <-o.slot }, nil
	default:
		o.mu.RLock()
		orderID := o.state.OrderID
		o.mu.RUnlock()
		return nil, &StateConflict{OrderID: orderID, Op: op}
	}
}

func (o *Orchestrator) transition(state State) {
	o.mu.Lock()
	o.state.State = state
	o.state.Stage = ""
	o.state.Err = nil
	o.mu.Unlock()
	observability.RecordCheckoutTransition(string(state))
}

// fail moves to Failed(stage) and keeps the order id if one was issued.
func (o *Orchestrator) fail(stage Stage, op string, err error) error {
	o.mu.Lock()
	wrapped := &StageError{Stage: stage, Op: op, OrderID: o.state.OrderID, Err: err}
	o.state.State = StateFailed
	o.state.Stage = stage
	o.state.Err = wrapped
	o.mu.Unlock()
	observability.RecordCheckoutTransition(string(StateFailed) + ":" + string(stage))
	o.logger.Warn().Str("op", op).Str("stage", string(stage)).Str("order_id", wrapped.OrderID).Err(err).Msg("checkout step failed")
	return wrapped
}

func invalid(stage Stage, op string, err error) error {
	return &ValidationError{Stage: stage, Op: op, Err: err}
}
