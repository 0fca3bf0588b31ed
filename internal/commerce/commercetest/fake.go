// Package commercetest provides an in-process commerce.Adapter for tests.
package commercetest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/danmuck/storefront/internal/commerce"
	"github.com/shopspring/decimal"
)

const (
	OpListProducts     = "list_products"
	OpGetProduct       = "get_product"
	OpCreateCart       = "create_cart"
	OpAddItem          = "add_item"
	OpListCartItems    = "list_cart_items"
	OpRemoveItem       = "remove_item"
	OpBeginCheckout    = "begin_checkout"
	OpSubmitPayment    = "submit_payment"
	OpRegisterCustomer = "register_customer"
	OpAuthenticate     = "authenticate"
)

// DeclinedToken is answered with a failed transaction.
const DeclinedToken commerce.PaymentToken = "tok_chargeDeclined"

type hold struct {
	entered chan struct{}
	release chan struct{}
}

// Fake keeps carts and orders in memory and computes totals like the remote
// service would. Failures and blocking can be scripted per operation.
type Fake struct {
	Currency string

	mu        sync.Mutex
	products  map[string]commerce.Product
	carts     map[commerce.CartID][]commerce.CartItem
	orders    map[string]commerce.Order
	customers map[string]commerce.Customer
	passwords map[string]string
	calls     map[string]int
	errs      map[string][]error
	holds     map[string]*hold
	skew      map[string]int64
	separate  bool
	seq       int
	lastEmail string
	lastToken commerce.PaymentToken
}

func NewFake(products ...commerce.Product) *Fake {
	f := &Fake{
		Currency:  "USD",
		products:  make(map[string]commerce.Product),
		carts:     make(map[commerce.CartID][]commerce.CartItem),
		orders:    make(map[string]commerce.Order),
		customers: make(map[string]commerce.Customer),
		passwords: make(map[string]string),
		calls:     make(map[string]int),
		errs:      make(map[string][]error),
		holds:     make(map[string]*hold),
		skew:      make(map[string]int64),
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

// Product builds a catalog entry priced in USD cents.
func Product(id string, cents int64) commerce.Product {
	return commerce.Product{
		ID:    id,
		Name:  "Product " + id,
		SKU:   "SKU-" + id,
		Price: commerce.FromMinorUnits(cents, "USD", ""),
	}
}

// SeparateLines makes repeated adds of one product create distinct lines.
func (f *Fake) SeparateLines() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.separate = true
}

// FailNext queues err for the next call to op.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = append(f.errs[op], err)
}

// FailNextStatus queues an *commerce.UpstreamError with status for op.
func (f *Fake) FailNextStatus(op string, status int) {
	f.FailNext(op, &commerce.UpstreamError{Op: op, Status: status, Code: http.StatusText(status)})
}

// Hold makes the next call to op block until release is called. entered is
// closed once the call is inside the adapter.
func (f *Fake) Hold(op string) (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.holds[op] = h
	f.mu.Unlock()
	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

// SkewOrderTotal adds cents to the total of orders created from cartID.
func (f *Fake) SkewOrderTotal(cartID commerce.CartID, cents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skew[string(cartID)] = cents
}

func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// LastPayment reports the token and receipt email of the most recent payment call.
func (f *Fake) LastPayment() (commerce.PaymentToken, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken, f.lastEmail
}

func (f *Fake) Order(id string) (commerce.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	return o, ok
}

// enter records the call, waits on any hold and pops a scripted error.
func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	h := f.holds[op]
	delete(f.holds, op)
	f.mu.Unlock()

	if h != nil {
		close(h.entered)
		select {
		case <-h.release:
		case <-ctx.Done():
			return &commerce.UpstreamError{Op: op, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.errs[op]; len(queue) > 0 {
		err := queue[0]
		f.errs[op] = queue[1:]
		return err
	}
	return nil
}

func (f *Fake) ListProducts(ctx context.Context) ([]commerce.Product, error) {
	if err := f.enter(ctx, OpListProducts); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]commerce.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *Fake) GetProduct(ctx context.Context, id string) (commerce.Product, error) {
	if err := f.enter(ctx, OpGetProduct); err != nil {
		return commerce.Product{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return commerce.Product{}, notFound(OpGetProduct)
	}
	return p, nil
}

func (f *Fake) CreateCart(ctx context.Context) (commerce.CartID, error) {
	if err := f.enter(ctx, OpCreateCart); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := commerce.CartID(fmt.Sprintf("cart-%d", f.seq))
	f.carts[id] = nil
	return id, nil
}

func (f *Fake) AddItem(ctx context.Context, cartID commerce.CartID, productID string, quantity int) (commerce.CartContents, error) {
	if err := f.enter(ctx, OpAddItem); err != nil {
		return commerce.CartContents{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.carts[cartID]
	if !ok {
		return commerce.CartContents{}, notFound(OpAddItem)
	}
	p, ok := f.products[productID]
	if !ok {
		return commerce.CartContents{}, notFound(OpAddItem)
	}
	merged := false
	if !f.separate {
		for i := range items {
			if items[i].ProductID == productID {
				items[i] = f.line(p, items[i].ID, items[i].Quantity+quantity)
				merged = true
				break
			}
		}
	}
	if !merged {
		f.seq++
		items = append(items, f.line(p, fmt.Sprintf("item-%d", f.seq), quantity))
	}
	f.carts[cartID] = items
	return f.contentsLocked(cartID), nil
}

func (f *Fake) ListCartItems(ctx context.Context, cartID commerce.CartID) (commerce.CartContents, error) {
	if err := f.enter(ctx, OpListCartItems); err != nil {
		return commerce.CartContents{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.carts[cartID]; !ok {
		return commerce.CartContents{}, notFound(OpListCartItems)
	}
	return f.contentsLocked(cartID), nil
}

func (f *Fake) RemoveItem(ctx context.Context, cartID commerce.CartID, itemID string) (commerce.CartContents, error) {
	if err := f.enter(ctx, OpRemoveItem); err != nil {
		return commerce.CartContents{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.carts[cartID]
	if !ok {
		return commerce.CartContents{}, notFound(OpRemoveItem)
	}
	kept := make([]commerce.CartItem, 0, len(items))
	for _, it := range items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return commerce.CartContents{}, notFound(OpRemoveItem)
	}
	f.carts[cartID] = kept
	return f.contentsLocked(cartID), nil
}

func (f *Fake) BeginCheckout(ctx context.Context, cartID commerce.CartID, customer commerce.CheckoutCustomer, billing, shipping commerce.Address) (commerce.Order, error) {
	if err := f.enter(ctx, OpBeginCheckout); err != nil {
		return commerce.Order{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.carts[cartID]
	if !ok {
		return commerce.Order{}, notFound(OpBeginCheckout)
	}
	if len(items) == 0 {
		return commerce.Order{}, &commerce.UpstreamError{Op: OpBeginCheckout, Status: http.StatusBadRequest, Code: "Cart Empty"}
	}
	total := f.totalLocked(cartID) + f.skew[string(cartID)]
	f.seq++
	order := commerce.Order{
		ID:            fmt.Sprintf("order-%d", f.seq),
		Status:        "incomplete",
		PaymentStatus: commerce.PaymentUnpaid,
		Customer:      customer,
		Total:         commerce.FromMinorUnits(total, f.Currency, ""),
		Billing:       billing,
		Shipping:      shipping,
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *Fake) SubmitPayment(ctx context.Context, orderID string, token commerce.PaymentToken, receiptEmail string) (commerce.Payment, error) {
	if err := f.enter(ctx, OpSubmitPayment); err != nil {
		return commerce.Payment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken, f.lastEmail = token, receiptEmail
	order, ok := f.orders[orderID]
	if !ok {
		return commerce.Payment{}, notFound(OpSubmitPayment)
	}
	if order.PaymentStatus == commerce.PaymentPaid {
		return commerce.Payment{}, &commerce.UpstreamError{Op: OpSubmitPayment, Status: http.StatusConflict, Code: "Conflict"}
	}
	f.seq++
	payment := commerce.Payment{ID: fmt.Sprintf("txn-%d", f.seq), Gateway: "stripe", Status: commerce.TransactionComplete}
	if strings.HasPrefix(string(token), string(DeclinedToken)) {
		payment.Status = commerce.TransactionFailed
		return payment, nil
	}
	order.PaymentStatus = commerce.PaymentPaid
	order.Status = "complete"
	f.orders[orderID] = order
	return payment, nil
}

func (f *Fake) RegisterCustomer(ctx context.Context, profile commerce.CustomerProfile) (commerce.Customer, error) {
	if err := f.enter(ctx, OpRegisterCustomer); err != nil {
		return commerce.Customer{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.customers[profile.Email]; exists {
		return commerce.Customer{}, &commerce.UpstreamError{Op: OpRegisterCustomer, Status: http.StatusConflict, Code: "Duplicate"}
	}
	f.seq++
	cust := commerce.Customer{
		ID:    fmt.Sprintf("customer-%d", f.seq),
		Name:  profile.Name,
		Email: profile.Email,
		Token: fmt.Sprintf("token-%d", f.seq),
	}
	f.customers[profile.Email] = cust
	f.passwords[profile.Email] = profile.Password
	return cust, nil
}

func (f *Fake) Authenticate(ctx context.Context, creds commerce.Credentials) (commerce.Customer, error) {
	if err := f.enter(ctx, OpAuthenticate); err != nil {
		return commerce.Customer{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cust, ok := f.customers[creds.Email]
	if !ok || f.passwords[creds.Email] != creds.Password {
		return commerce.Customer{}, &commerce.UpstreamError{Op: OpAuthenticate, Status: http.StatusUnauthorized, Code: "Unauthorized"}
	}
	f.seq++
	cust.Token = fmt.Sprintf("token-%d", f.seq)
	return cust, nil
}

func (f *Fake) line(p commerce.Product, id string, quantity int) commerce.CartItem {
	unit := p.Price.MinorUnits()
	return commerce.CartItem{
		ID:        id,
		ProductID: p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		Quantity:  quantity,
		UnitPrice: commerce.FromMinorUnits(unit, f.Currency, ""),
		LinePrice: commerce.FromMinorUnits(decimal.NewFromInt(unit).Mul(decimal.NewFromInt(int64(quantity))).IntPart(), f.Currency, ""),
	}
}

func (f *Fake) totalLocked(cartID commerce.CartID) int64 {
	var total int64
	for _, it := range f.carts[cartID] {
		total += it.LinePrice.MinorUnits()
	}
	return total
}

func (f *Fake) contentsLocked(cartID commerce.CartID) commerce.CartContents {
	items := append([]commerce.CartItem(nil), f.carts[cartID]...)
	return commerce.CartContents{
		Items:   items,
		Summary: &commerce.CartSummary{Total: commerce.FromMinorUnits(f.totalLocked(cartID), f.Currency, "")},
	}
}

func notFound(op string) *commerce.UpstreamError {
	return &commerce.UpstreamError{Op: op, Status: http.StatusNotFound, Code: "Not Found"}
}

var _ commerce.Adapter = (*Fake)(nil)
