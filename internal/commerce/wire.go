package commerce

// Remote wire shapes. The hosted API wraps every payload in {"data": ...}
// and reports prices in integer minor units under meta.display_price.

type wirePrice struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

func (p wirePrice) money() Money {
	return FromMinorUnits(p.Amount, p.Currency, p.Formatted)
}

type wireDisplayPrice struct {
	WithTax wirePrice `json:"with_tax"`
}

type wireRelation struct {
	Data *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

type wireProduct struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	SKU           string `json:"sku"`
	Relationships struct {
		MainImage wireRelation `json:"main_image"`
	} `json:"relationships"`
	Meta struct {
		DisplayPrice wireDisplayPrice `json:"display_price"`
	} `json:"meta"`
}

type wireFile struct {
	ID   string `json:"id"`
	Link struct {
		Href string `json:"href"`
	} `json:"link"`
}

type wireIncluded struct {
	MainImages []wireFile `json:"main_images"`
}

func (inc wireIncluded) imageFor(p wireProduct) string {
	rel := p.Relationships.MainImage.Data
	if rel == nil {
		return ""
	}
	for _, f := range inc.MainImages {
		if f.ID == rel.ID {
			return f.Link.Href
		}
	}
	return ""
}

func (p wireProduct) product(inc wireIncluded) Product {
	return Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		SKU:         p.SKU,
		Image:       inc.imageFor(p),
		Price:       p.Meta.DisplayPrice.WithTax.money(),
	}
}

type productListEnvelope struct {
	Data     []wireProduct `json:"data"`
	Included wireIncluded  `json:"included"`
}

type productEnvelope struct {
	Data     *wireProduct `json:"data"`
	Included wireIncluded `json:"included"`
}

type wireCart struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type cartEnvelope struct {
	Data *wireCart `json:"data"`
}

type wireCartItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Meta      struct {
		DisplayPrice struct {
			WithTax struct {
				Unit  wirePrice `json:"unit"`
				Value wirePrice `json:"value"`
			} `json:"with_tax"`
		} `json:"display_price"`
	} `json:"meta"`
}

func (it wireCartItem) item() CartItem {
	return CartItem{
		ID:        it.ID,
		ProductID: it.ProductID,
		Name:      it.Name,
		SKU:       it.SKU,
		Quantity:  it.Quantity,
		UnitPrice: it.Meta.DisplayPrice.WithTax.Unit.money(),
		LinePrice: it.Meta.DisplayPrice.WithTax.Value.money(),
	}
}

type cartItemsEnvelope struct {
	Data []wireCartItem `json:"data"`
	Meta *struct {
		DisplayPrice *wireDisplayPrice `json:"display_price"`
	} `json:"meta"`
}

func (env cartItemsEnvelope) contents() CartContents {
	out := CartContents{Items: make([]CartItem, 0, len(env.Data))}
	for _, it := range env.Data {
		out.Items = append(out.Items, it.item())
	}
	if env.Meta != nil && env.Meta.DisplayPrice != nil {
		out.Summary = &CartSummary{Total: env.Meta.DisplayPrice.WithTax.money()}
	}
	return out
}

type addItemRequest struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Merge    *bool  `json:"merge,omitempty"`
}

type checkoutRequest struct {
	Customer        CheckoutCustomer `json:"customer"`
	BillingAddress  Address          `json:"billing_address"`
	ShippingAddress Address          `json:"shipping_address"`
}

type wireOrder struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Status          string           `json:"status"`
	Payment         string           `json:"payment"`
	Customer        CheckoutCustomer `json:"customer"`
	BillingAddress  Address          `json:"billing_address"`
	ShippingAddress Address          `json:"shipping_address"`
	Meta            struct {
		DisplayPrice wireDisplayPrice `json:"display_price"`
	} `json:"meta"`
}

func (o wireOrder) order() Order {
	return Order{
		ID:            o.ID,
		Status:        o.Status,
		PaymentStatus: PaymentStatus(o.Payment),
		Customer:      o.Customer,
		Total:         o.Meta.DisplayPrice.WithTax.money(),
		Billing:       o.BillingAddress,
		Shipping:      o.ShippingAddress,
	}
}

type orderEnvelope struct {
	Data *wireOrder `json:"data"`
}

type paymentOptions struct {
	ReceiptEmail string `json:"receipt_email,omitempty"`
}

type paymentRequest struct {
	Gateway string         `json:"gateway"`
	Method  string         `json:"method"`
	Payment string         `json:"payment"`
	Options paymentOptions `json:"options"`
}

type wireTransaction struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Gateway         string `json:"gateway"`
	Status          string `json:"status"`
	TransactionType string `json:"transaction-type"`
}

type transactionEnvelope struct {
	Data *wireTransaction `json:"data"`
}

type customerRequest struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type wireCustomer struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type customerEnvelope struct {
	Data *wireCustomer `json:"data"`
}

type tokenRequest struct {
	Type     string `json:"type"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type wireCustomerToken struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id"`
	Token      string `json:"token"`
	Expires    int64  `json:"expires"`
}

type customerTokenEnvelope struct {
	Data *wireCustomerToken `json:"data"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type wireError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type errorEnvelope struct {
	Errors []wireError `json:"errors"`
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Expires     int64  `json:"expires"`
	ExpiresIn   int64  `json:"expires_in"`
}
