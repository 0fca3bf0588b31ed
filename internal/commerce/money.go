package commerce

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// defaultMinorExponent applies to codes that are not ISO 4217.
const defaultMinorExponent = 2

// Money is a tax-inclusive amount as reported by the remote service.
type Money struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Formatted string          `json:"formatted"`
}

// MinorExponent returns the number of decimal places in one major unit of
// code: 2 for USD, 0 for JPY, 3 for KWD.
func MinorExponent(code string) int32 {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return defaultMinorExponent
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// FromMinorUnits converts the remote integer amount, expressed in the
// currency's minor unit, into Money.
func FromMinorUnits(amount int64, code, formatted string) Money {
	m := Money{
		Currency:  strings.ToUpper(strings.TrimSpace(code)),
		Formatted: formatted,
	}
	m.Amount = decimal.New(amount, -MinorExponent(m.Currency))
	if m.Formatted == "" {
		m.Formatted = m.String()
	}
	return m
}

// MinorUnits returns the amount in the currency's minor unit, as the payment
// processor expects.
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(MinorExponent(m.Currency)).Round(0).IntPart()
}

// Equal compares amount and currency; the formatted string is display only.
func (m Money) Equal(other Money) bool {
	return strings.EqualFold(m.Currency, other.Currency) && m.Amount.Equal(other.Amount)
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(MinorExponent(m.Currency)), m.Currency)
}
