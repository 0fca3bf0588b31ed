package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

// Card is raw card input. Only test-mode keys should ever see real values
// here; browsers tokenize on their own.
type Card struct {
	Number   string
	ExpMonth string
	ExpYear  string
	CVC      string
}

func (c Card) valid() bool {
	return strings.TrimSpace(c.Number) != "" &&
		strings.TrimSpace(c.ExpMonth) != "" &&
		strings.TrimSpace(c.ExpYear) != ""
}

type tokenCreator interface {
	New(params *stripe.TokenParams) (*stripe.Token, error)
}

// StripeTokens tokenizes a card server side through the Stripe API.
type StripeTokens struct {
	card   Card
	tokens tokenCreator
	logger zerolog.Logger
}

func NewStripeTokens(secretKey string, card Card) (*StripeTokens, error) {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return nil, ErrNoKey
	}
	if !card.valid() {
		return nil, ErrNoCard
	}
	sc := client.New(key, nil)
	return &StripeTokens{card: card, tokens: sc.Tokens, logger: observability.Component("payment")}, nil
}

func (s *StripeTokens) Token(ctx context.Context, req TokenRequest) (commerce.PaymentToken, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := cardParams(s.card, req)
	params.Context = ctx
	tok, err := s.tokens.New(params)
	if err != nil {
		return "", fmt.Errorf("payment: stripe token: %w", err)
	}
	if tok == nil || strings.TrimSpace(tok.ID) == "" {
		return "", ErrEmptyToken
	}
	s.logger.Debug().Str("token_id", tok.ID).Str("amount", req.Amount.String()).Msg("card tokenized")
	return commerce.PaymentToken(tok.ID), nil
}

func cardParams(card Card, req TokenRequest) *stripe.TokenParams {
	b := req.Billing
	cp := &stripe.CardParams{
		Number:   stripe.String(strings.TrimSpace(card.Number)),
		ExpMonth: stripe.String(strings.TrimSpace(card.ExpMonth)),
		ExpYear:  stripe.String(strings.TrimSpace(card.ExpYear)),
	}
	if cvc := strings.TrimSpace(card.CVC); cvc != "" {
		cp.CVC = stripe.String(cvc)
	}
	if name := strings.TrimSpace(b.FirstName + " " + b.LastName); name != "" {
		cp.Name = stripe.String(name)
	}
	if b.Line1 != "" {
		cp.AddressLine1 = stripe.String(b.Line1)
	}
	if b.Line2 != "" {
		cp.AddressLine2 = stripe.String(b.Line2)
	}
	if b.City != "" {
		cp.AddressCity = stripe.String(b.City)
	}
	if b.County != "" {
		cp.AddressState = stripe.String(b.County)
	}
	if b.Postcode != "" {
		cp.AddressZip = stripe.String(b.Postcode)
	}
	if b.Country != "" {
		cp.AddressCountry = stripe.String(b.Country)
	}
	if cur := strings.ToLower(strings.TrimSpace(req.Amount.Currency)); cur != "" {
		cp.Currency = stripe.String(cur)
	}
	return &stripe.TokenParams{Card: cp}
}
