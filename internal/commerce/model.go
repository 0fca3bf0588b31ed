package commerce

import "strings"

// CartID is the opaque token the remote service issues for a guest cart.
type CartID string

func (id CartID) String() string {
	return string(id)
}

// PaymentToken is the opaque token produced by the external payment processor.
type PaymentToken string

// DuplicatePolicy is the hint sent with add-item calls for a product already in the cart.
type DuplicatePolicy string

const (
	DuplicateMerge    DuplicatePolicy = "merge"
	DuplicateSeparate DuplicatePolicy = "separate"
)

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SKU         string `json:"sku"`
	Image       string `json:"image,omitempty"`
	Price       Money  `json:"price"`
}

// CartItem is one line of a cart with its tax-inclusive price snapshot.
type CartItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
	LinePrice Money  `json:"line_price"`
}

type CartSummary struct {
	Total Money `json:"total"`
}

// CartContents is one server view of a cart: the items and the server-computed total.
type CartContents struct {
	Items   []CartItem
	Summary *CartSummary
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token,omitempty"`
}

type CustomerProfile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CheckoutCustomer identifies the buyer either by customer ID or by name and email.
type CheckoutCustomer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c CheckoutCustomer) Complete() bool {
	if strings.TrimSpace(c.ID) != "" {
		return true
	}
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Email) != ""
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company_name,omitempty"`
	Line1     string `json:"line_1"`
	Line2     string `json:"line_2,omitempty"`
	City      string `json:"city"`
	County    string `json:"county,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}

// Missing lists the required address fields that are blank.
func (a Address) Missing() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("first_name", a.FirstName)
	check("last_name", a.LastName)
	check("line_1", a.Line1)
	check("city", a.City)
	check("postcode", a.Postcode)
	check("country", a.Country)
	return missing
}

func (a Address) IsZero() bool {
	return a == Address{}
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

type Order struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	PaymentStatus PaymentStatus    `json:"payment"`
	Customer      CheckoutCustomer `json:"customer"`
	Total         Money            `json:"total"`
	Billing       Address          `json:"billing_address"`
	Shipping      Address          `json:"shipping_address"`
}

type TransactionStatus string

const (
	TransactionComplete TransactionStatus = "complete"
	TransactionPending  TransactionStatus = "pending"
	TransactionFailed   TransactionStatus = "failed"
)

// Payment is the remote transaction record produced by an order payment.
type Payment struct {
	ID      string            `json:"id"`
	Gateway string            `json:"gateway"`
	Status  TransactionStatus `json:"status"`
}

func (p Payment) Succeeded() bool {
	return p.Status == TransactionComplete
}
