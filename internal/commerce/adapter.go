package commerce

import "context"

// Adapter is one operation per remote capability. Implementations are plain
// passthroughs: no retries, no caching, failures surface as *UpstreamError.
type Adapter interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)

	CreateCart(ctx context.Context) (CartID, error)
	AddItem(ctx context.Context, cartID CartID, productID string, quantity int) (CartContents, error)
	ListCartItems(ctx context.Context, cartID CartID) (CartContents, error)
	RemoveItem(ctx context.Context, cartID CartID, itemID string) (CartContents, error)

	BeginCheckout(ctx context.Context, cartID CartID, customer CheckoutCustomer, billing, shipping Address) (Order, error)
	SubmitPayment(ctx context.Context, orderID string, token PaymentToken, receiptEmail string) (Payment, error)

	RegisterCustomer(ctx context.Context, profile CustomerProfile) (Customer, error)
	Authenticate(ctx context.Context, creds Credentials) (Customer, error)
}

var _ Adapter = (*Client)(nil)
