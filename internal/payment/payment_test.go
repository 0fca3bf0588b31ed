package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v80"
)

type recordingTokens struct {
	params *stripe.TokenParams
	id     string
	err    error
}

func (r *recordingTokens) New(params *stripe.TokenParams) (*stripe.Token, error) {
	r.params = params
	if r.err != nil {
		return nil, r.err
	}
	return &stripe.Token{ID: r.id}, nil
}

func TestStaticToken(t *testing.T) {
	testlog.Start(t)
	tok, err := StaticToken(" tok_visa ").Token(context.Background(), TokenRequest{})
	if err != nil || tok != "tok_visa" {
		t.Fatalf("Token = %q, %v", tok, err)
	}
	if _, err := StaticToken("").Token(context.Background(), TokenRequest{}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("empty token err = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := StaticToken("tok_visa").Token(ctx, TokenRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled err = %v", err)
	}
}

func TestNewStripeTokensValidation(t *testing.T) {
	testlog.Start(t)
	card := Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVC: "123"}
	if _, err := NewStripeTokens("", card); !errors.Is(err, ErrNoKey) {
		t.Fatalf("missing key err = %v", err)
	}
	if _, err := NewStripeTokens("sk_test_x", Card{Number: "4242"}); !errors.Is(err, ErrNoCard) {
		t.Fatalf("missing card err = %v", err)
	}
	if _, err := NewStripeTokens("sk_test_x", card); err != nil {
		t.Fatalf("NewStripeTokens: %v", err)
	}
}

func TestStripeTokensSendsCardAndBilling(t *testing.T) {
	testlog.Start(t)
	rec := &recordingTokens{id: "tok_123"}
	src := &StripeTokens{
		card:   Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVC: "123"},
		tokens: rec,
		logger: zerolog.Nop(),
	}
	req := TokenRequest{
		Amount: commerce.FromMinorUnits(900, "USD", ""),
		Billing: commerce.Address{
			FirstName: "Ada", LastName: "Lovelace", Line1: "1 Loop", City: "London",
			Postcode: "N1", Country: "GB",
		},
		Email: "ada@example.com",
	}
	tok, err := src.Token(context.Background(), req)
	if err != nil || tok != "tok_123" {
		t.Fatalf("Token = %q, %v", tok, err)
	}
	cp := rec.params.Card
	if *cp.Number != "4242424242424242" || *cp.CVC != "123" {
		t.Fatalf("card params = %+v", cp)
	}
	if *cp.Name != "Ada Lovelace" || *cp.AddressZip != "N1" || *cp.Currency != "usd" {
		t.Fatalf("billing params name=%s zip=%s currency=%s", *cp.Name, *cp.AddressZip, *cp.Currency)
	}
	if cp.AddressLine2 != nil {
		t.Fatalf("blank line 2 should be omitted")
	}
	if rec.params.Context == nil {
		t.Fatalf("context not forwarded")
	}

	rec.err = errors.New("card_declined")
	if _, err := src.Token(context.Background(), req); err == nil {
		t.Fatalf("expected stripe error")
	}
}
