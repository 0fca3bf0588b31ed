// Package payment obtains opaque payment tokens from the external card
// processor. The checkout flow only ever sees the resulting token.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/danmuck/storefront/internal/commerce"
)

var (
	ErrEmptyToken = errors.New("payment: empty token")
	ErrNoCard     = errors.New("payment: card details required")
	ErrNoKey      = errors.New("payment: processor secret key required")
)

// TokenRequest carries what the processor needs to authorize a charge.
type TokenRequest struct {
	Amount  commerce.Money
	Billing commerce.Address
	Email   string
}

type TokenSource interface {
	Token(ctx context.Context, req TokenRequest) (commerce.PaymentToken, error)
}

// StaticToken is a token the presentation layer already obtained, for
// example from a hosted card form in the browser.
type StaticToken commerce.PaymentToken

func (s StaticToken) Token(ctx context.Context, _ TokenRequest) (commerce.PaymentToken, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrEmptyToken
	}
	return commerce.PaymentToken(tok), nil
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context, req TokenRequest) (commerce.PaymentToken, error)

func (f TokenFunc) Token(ctx context.Context, req TokenRequest) (commerce.PaymentToken, error) {
	return f(ctx, req)
}
