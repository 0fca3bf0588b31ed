package mockapi

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is one catalog entry held by the mock remote. Prices are
// tax-inclusive minor units.
type Product struct {
	ID          string
	Name        string
	Description string
	SKU         string
	PriceCents  int64
	Currency    string
	ImageURL    string
}

// DemoCatalog is the small catalog served by cmd/mockcommerce.
func DemoCatalog() []Product {
	return []Product{
		{
			ID:          "P1",
			Name:        "Hex Sticker",
			Description: "Die-cut vinyl sticker.",
			SKU:         "STICKER-HEX",
			PriceCents:  450,
			Currency:    "USD",
			ImageURL:    "https://cdn.example.com/images/sticker-hex.png",
		},
		{
			ID:          "P2",
			Name:        "Store Tee",
			Description: "Black cotton t-shirt with the store logo.",
			SKU:         "TEE-BLK-M",
			PriceCents:  2200,
			Currency:    "USD",
			ImageURL:    "https://cdn.example.com/images/tee-black.png",
		},
		{
			ID:          "P3",
			Name:        "Enamel Mug",
			Description: "12oz enamel camping mug.",
			SKU:         "MUG-ENAMEL",
			PriceCents:  1500,
			Currency:    "USD",
		},
	}
}

func formatCents(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	switch currency {
	case "USD":
		return "$" + amount
	case "EUR":
		return "€" + amount
	case "GBP":
		return "£" + amount
	default:
		return fmt.Sprintf("%s %s", amount, currency)
	}
}

type price struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

func newPrice(cents int64, currency string) price {
	return price{Amount: cents, Currency: currency, Formatted: formatCents(cents, currency)}
}
