package checkout

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/commerce/commercetest"
	"github.com/danmuck/storefront/internal/payment"
	"github.com/danmuck/storefront/internal/store"
	"github.com/danmuck/storefront/internal/testutil/testlog"
)

func billing() commerce.Address {
	return commerce.Address{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Line1:     "12 Analytical Row",
		City:      "London",
		Postcode:  "NW1 6XE",
		Country:   "GB",
	}
}

func validRequest() Request {
	return Request{
		Customer: commerce.CheckoutCustomer{Name: "Ada Lovelace", Email: "ada@example.com"},
		Billing:  billing(),
	}
}

type fixture struct {
	fake *commercetest.Fake
	cart *cart.Controller
	flow *Orchestrator
}

func newFixture(t *testing.T, fill bool) fixture {
	t.Helper()
	fake := commercetest.NewFake(commercetest.Product("P1", 450), commercetest.Product("P2", 2200))
	c := cart.New(fake, store.NewMemory())
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if fill {
		if err := c.AddItem(ctx, "P1", 2); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}
	return fixture{fake: fake, cart: c, flow: New(fake, c)}
}

func TestHappyPathReachesPaid(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	if got := f.flow.Snapshot().State; got != StateCartReady {
		t.Fatalf("initial state = %q", got)
	}
	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	snap := f.flow.Snapshot()
	if snap.State != StateCheckoutInitiated || snap.OrderID == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Amount.MinorUnits() != 900 || snap.CartID != f.cart.CartID() {
		t.Fatalf("amount %s cart %s", snap.Amount, snap.CartID)
	}

	if err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), ""); err != nil {
		t.Fatalf("SubmitPayment: %v", err)
	}
	snap = f.flow.Snapshot()
	if snap.State != StatePaid || snap.Payment == nil || !snap.Payment.Succeeded() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	tok, email := f.fake.LastPayment()
	if tok != "tok_visa" || email != "ada@example.com" {
		t.Fatalf("payment call token=%q email=%q", tok, email)
	}
	order, _ := f.fake.Order(snap.OrderID)
	if order.PaymentStatus != commerce.PaymentPaid {
		t.Fatalf("remote order payment = %q", order.PaymentStatus)
	}
	if order.Shipping != billing() {
		t.Fatalf("shipping did not default to billing: %+v", order.Shipping)
	}
}

func TestEmptyCartCannotCheckout(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, false)

	err := f.flow.StartCheckout(context.Background(), validRequest())
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("err = %v", err)
	}
	if verr.ErrorStage() != string(StageCheckout) {
		t.Fatalf("stage = %q", verr.ErrorStage())
	}
	if n := f.fake.Calls(commercetest.OpBeginCheckout); n != 0 {
		t.Fatalf("begin calls = %d, want 0", n)
	}
	if got := f.flow.Snapshot().State; got != StateCartReady {
		t.Fatalf("state = %q", got)
	}
}

func TestIncompletePayloadIsRejected(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	noEmail := validRequest()
	noEmail.Customer.Email = ""
	badBilling := validRequest()
	badBilling.Billing.Postcode = " "
	badShipping := validRequest()
	badShipping.Shipping = commerce.Address{FirstName: "Ada"}
	byID := validRequest()
	byID.Customer = commerce.CheckoutCustomer{ID: "customer-1"}

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"customer", noEmail, ErrCustomerIncomplete},
		{"billing", badBilling, ErrBillingIncomplete},
		{"shipping", badShipping, ErrShippingIncomplete},
	}
	for _, tc := range cases {
		if err := f.flow.StartCheckout(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if n := f.fake.Calls(commercetest.OpBeginCheckout); n != 0 {
		t.Fatalf("begin calls = %d, want 0", n)
	}
	if err := f.flow.StartCheckout(ctx, byID); err != nil {
		t.Fatalf("customer by id: %v", err)
	}
}

func TestCartNotReadyIsRejected(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	f.fake.FailNextStatus(commercetest.OpListCartItems, http.StatusBadGateway)
	if err := f.cart.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh failure")
	}

	err := f.flow.StartCheckout(context.Background(), validRequest())
	if !errors.Is(err, ErrCartNotReady) {
		t.Fatalf("err = %v", err)
	}
}

func TestPaymentFailureRetriesSameOrder(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	orderID := f.flow.Snapshot().OrderID

	f.fake.FailNextStatus(commercetest.OpSubmitPayment, http.StatusServiceUnavailable)
	err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), "")
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StagePayment || serr.OrderID != orderID {
		t.Fatalf("err = %v", err)
	}
	if _, ok := commerce.AsUpstream(err); !ok {
		t.Fatalf("upstream error lost: %v", err)
	}
	snap := f.flow.Snapshot()
	if snap.State != StateFailed || snap.Stage != StagePayment || snap.OrderID != orderID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if err := f.flow.StartCheckout(ctx, validRequest()); !errors.Is(err, ErrOrderExists) {
		t.Fatalf("re-checkout err = %v", err)
	}

	if err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), "receipts@example.com"); err != nil {
		t.Fatalf("retry SubmitPayment: %v", err)
	}
	snap = f.flow.Snapshot()
	if snap.State != StatePaid || snap.OrderID != orderID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if n := f.fake.Calls(commercetest.OpBeginCheckout); n != 1 {
		t.Fatalf("begin calls = %d, want 1", n)
	}
	if _, email := f.fake.LastPayment(); email != "receipts@example.com" {
		t.Fatalf("receipt email = %q", email)
	}

	if err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), ""); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("pay twice err = %v", err)
	}
}

func TestDeclinedPaymentCanBeRetried(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	err := f.flow.SubmitPayment(ctx, payment.StaticToken(commercetest.DeclinedToken), "")
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("err = %v", err)
	}
	snap := f.flow.Snapshot()
	if snap.Payment == nil || snap.Payment.Status != commerce.TransactionFailed {
		t.Fatalf("payment = %+v", snap.Payment)
	}
	if err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := f.flow.Snapshot().State; got != StatePaid {
		t.Fatalf("state = %q", got)
	}
}

func TestTokenFailureFailsPaymentStage(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	var seen payment.TokenRequest
	tokens := payment.TokenFunc(func(_ context.Context, req payment.TokenRequest) (commerce.PaymentToken, error) {
		seen = req
		return "", errors.New("processor unavailable")
	})
	err := f.flow.SubmitPayment(ctx, tokens, "")
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StagePayment {
		t.Fatalf("err = %v", err)
	}
	if seen.Amount.MinorUnits() != 900 || seen.Email != "ada@example.com" || seen.Billing.City != "London" {
		t.Fatalf("token request = %+v", seen)
	}
	if n := f.fake.Calls(commercetest.OpSubmitPayment); n != 0 {
		t.Fatalf("payment calls = %d, want 0", n)
	}
}

func TestAmountMismatchFailsCheckoutStage(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	f.fake.SkewOrderTotal(f.cart.CartID(), 1)
	ctx := context.Background()

	err := f.flow.StartCheckout(ctx, validRequest())
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("err = %v", err)
	}
	snap := f.flow.Snapshot()
	if snap.State != StateFailed || snap.Stage != StageCheckout || snap.OrderID == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), ""); !errors.Is(err, ErrNotCheckedOut) {
		t.Fatalf("pay after mismatch err = %v", err)
	}
	if err := f.flow.StartCheckout(ctx, validRequest()); !errors.Is(err, ErrOrderExists) {
		t.Fatalf("re-checkout err = %v", err)
	}

	if err := f.flow.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if snap := f.flow.Snapshot(); snap.State != StateCartReady || snap.OrderID != "" {
		t.Fatalf("reset snapshot %+v", snap)
	}
}

func TestBeginCheckoutFailureAllowsRetry(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()
	f.fake.FailNextStatus(commercetest.OpBeginCheckout, http.StatusBadGateway)

	err := f.flow.StartCheckout(ctx, validRequest())
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageCheckout || serr.OrderID != "" {
		t.Fatalf("err = %v", err)
	}
	if err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), ""); !errors.Is(err, ErrNotCheckedOut) {
		t.Fatalf("pay without order err = %v", err)
	}
	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("retry StartCheckout: %v", err)
	}
	if got := f.flow.Snapshot().State; got != StateCheckoutInitiated {
		t.Fatalf("state = %q", got)
	}
}

func TestOverlappingCallsConflict(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	entered, release := f.fake.Hold(commercetest.OpBeginCheckout)
	done := make(chan error, 1)
	go func() { done <- f.flow.StartCheckout(ctx, validRequest()) }()
	<-entered

	var conflict *StateConflict
	if err := f.flow.StartCheckout(ctx, validRequest()); !errors.As(err, &conflict) || !errors.Is(err, ErrBusy) {
		t.Fatalf("overlap err = %v", err)
	}
	if err := f.flow.Reset(); !errors.As(err, &conflict) {
		t.Fatalf("reset during call err = %v", err)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if n := f.fake.Calls(commercetest.OpBeginCheckout); n != 1 {
		t.Fatalf("begin calls = %d", n)
	}
}

func TestNilTokenSource(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	if err := f.flow.SubmitPayment(context.Background(), nil, ""); !errors.Is(err, ErrNoTokenSource) {
		t.Fatalf("err = %v", err)
	}
}

func TestCartMutationBlockedDuringBeginCheckout(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	entered, release := f.fake.Hold(commercetest.OpBeginCheckout)
	done := make(chan error, 1)
	go func() { done <- f.flow.StartCheckout(ctx, validRequest()) }()
	<-entered

	var conflict *cart.StateConflict
	if err := f.cart.AddItem(ctx, "P2", 1); !errors.As(err, &conflict) {
		t.Fatalf("add during checkout err = %v", err)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if n := f.fake.Calls(commercetest.OpAddItem); n != 1 {
		t.Fatalf("add calls = %d, want 1", n)
	}
	snap := f.flow.Snapshot()
	if snap.State != StateCheckoutInitiated || snap.Amount.MinorUnits() != 900 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestQueuedCartMutationWaitsForCheckout(t *testing.T) {
	testlog.Start(t)
	fake := commercetest.NewFake(commercetest.Product("P1", 450), commercetest.Product("P2", 2200))
	c := cart.New(fake, store.NewMemory(), cart.WithMutationPolicy(cart.PolicyQueue))
	ctx := context.Background()
	if err := c.AddItem(ctx, "P1", 2); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	flow := New(fake, c)

	entered, release := fake.Hold(commercetest.OpBeginCheckout)
	checkoutDone := make(chan error, 1)
	go func() { checkoutDone <- flow.StartCheckout(ctx, validRequest()) }()
	<-entered

	addDone := make(chan error, 1)
	go func() { addDone <- c.AddItem(ctx, "P2", 1) }()
	release()

	if err := <-checkoutDone; err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if err := <-addDone; err != nil {
		t.Fatalf("queued AddItem: %v", err)
	}
	if got := flow.Snapshot().Amount.MinorUnits(); got != 900 {
		t.Fatalf("order amount = %d, want 900", got)
	}
	if got := c.Snapshot().Summary.Total.MinorUnits(); got != 3100 {
		t.Fatalf("cart total = %d, want 3100", got)
	}
}

func TestCartChangeAfterCheckoutBlocksPayment(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	staleOrder := f.flow.Snapshot().OrderID
	if err := f.cart.AddItem(ctx, "P2", 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), "")
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrCartChanged) || verr.Stage != StagePayment {
		t.Fatalf("err = %v", err)
	}
	if n := f.fake.Calls(commercetest.OpSubmitPayment); n != 0 {
		t.Fatalf("payment calls = %d, want 0", n)
	}
	if snap := f.flow.Snapshot(); snap.State != StateCheckoutInitiated || snap.OrderID != staleOrder {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if err := f.flow.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("StartCheckout after reset: %v", err)
	}
	if err := f.flow.SubmitPayment(ctx, payment.StaticToken("tok_visa"), ""); err != nil {
		t.Fatalf("SubmitPayment: %v", err)
	}
	snap := f.flow.Snapshot()
	if snap.State != StatePaid || snap.OrderID == staleOrder || snap.Amount.MinorUnits() != 3100 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestBlankStaticTokenIsValidationError(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.flow.StartCheckout(ctx, validRequest()); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	err := f.flow.SubmitPayment(ctx, payment.StaticToken("  "), "")
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, payment.ErrEmptyToken) || verr.Stage != StagePayment {
		t.Fatalf("err = %v", err)
	}
	if got := f.flow.Snapshot().State; got != StateCheckoutInitiated {
		t.Fatalf("state = %q", got)
	}
	if n := f.fake.Calls(commercetest.OpSubmitPayment); n != 0 {
		t.Fatalf("payment calls = %d, want 0", n)
	}
}
