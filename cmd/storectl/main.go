package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/checkout"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/config"
	"github.com/danmuck/storefront/internal/logging"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/danmuck/storefront/internal/payment"
	"github.com/danmuck/storefront/internal/store"
)

const defaultStatePath = ".storectl.toml"

const usage = `usage: storectl [-config path] [-state path] <command> [args]

commands:
  products                     list the catalog
  cart                         show the stored cart
  add <product-id> [quantity]  add a product
  remove <item-id>             remove one cart line
  checkout [flags]             create the order and pay it
  walk [flags]                 add the first product twice, then checkout
`

var errUsage = errors.New("storectl: bad usage")

type app struct {
	out  io.Writer
	cfg  config.Config
	api  commerce.Adapter
	cart *cart.Controller
	flow *checkout.Orchestrator
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "storectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("storectl", flag.ContinueOnError)
	configFlag := global.String("config", "", "storefront config.toml")
	statePath := global.String("state", defaultStatePath, "file holding the local cart id")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errUsage
	}

	logging.ConfigureRuntime()
	observability.InitLogger("storectl")

	a, err := newApp(*configFlag, *statePath, out)
	if err != nil {
		return err
	}
	return a.dispatch(ctx, rest[0], rest[1:])
}

func newApp(configFlag, statePath string, out io.Writer) (*app, error) {
	cfg, err := config.Load(config.ResolvePath(configFlag))
	if err != nil {
		return nil, err
	}
	client, err := commerce.NewClient(commerce.Config{
		BaseURL:        cfg.Commerce.BaseURL,
		ClientID:       cfg.Commerce.ClientID,
		CallTimeout:    cfg.Commerce.CallTimeout,
		DuplicateLines: cfg.Commerce.DuplicateLines,
	})
	if err != nil {
		return nil, err
	}
	kv, err := store.OpenFile(statePath)
	if err != nil {
		return nil, err
	}
	c := cart.New(client, kv,
		cart.WithStorageKey(cfg.Cart.StorageKey),
		cart.WithMutationPolicy(cfg.Cart.MutationPolicy),
	)
	return &app{
		out:  out,
		cfg:  cfg,
		api:  client,
		cart: c,
		flow: checkout.New(client, c),
	}, nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "products":
		return a.products(ctx)
	case "cart":
		if err := a.cart.Initialize(ctx); err != nil {
			return err
		}
		a.printCart()
		return nil
	case "add":
		return a.add(ctx, args)
	case "remove":
		if len(args) != 1 {
			return errUsage
		}
		if err := a.cart.Initialize(ctx); err != nil {
			return err
		}
		if err := a.cart.RemoveItem(ctx, args[0]); err != nil {
			return err
		}
		a.printCart()
		return nil
	case "checkout":
		if err := a.cart.Initialize(ctx); err != nil {
			return err
		}
		return a.checkout(ctx, args)
	case "walk":
		return a.walk(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) products(ctx context.Context) error {
	products, err := a.api.ListProducts(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSKU\tPRICE")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.SKU, p.Price.Formatted)
	}
	return w.Flush()
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: quantity %q", errUsage, args[1])
		}
		qty = n
	}
	if err := a.cart.Initialize(ctx); err != nil {
		return err
	}
	if err := a.cart.AddItem(ctx, args[0], qty); err != nil {
		return err
	}
	a.printCart()
	return nil
}

func (a *app) printCart() {
	snap := a.cart.Snapshot()
	fmt.Fprintf(a.out, "cart %s (%s)\n", orDash(snap.CartID.String()), snap.Status)
	if !snap.HasItems() {
		return
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tPRODUCT\tQTY\tUNIT\tLINE")
	for _, it := range snap.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", it.ID, it.Name, it.Quantity, it.UnitPrice.Formatted, it.LinePrice.Formatted)
	}
	_ = w.Flush()
	if snap.Summary != nil {
		fmt.Fprintf(a.out, "total %s\n", snap.Summary.Total.Formatted)
	}
}

type paymentFlags struct {
	token     string
	stripeKey string
	card      payment.Card
	email     string
	retries   int
}

func (a *app) checkoutFlags(name string, args []string) (checkout.Request, paymentFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var req checkout.Request
	var pay paymentFlags
	fs.StringVar(&req.Customer.Name, "name", "Ada Lovelace", "customer name")
	fs.StringVar(&req.Customer.Email, "email", "ada@example.com", "customer email")
	fs.StringVar(&req.Customer.ID, "customer-id", "", "registered customer id")
	fs.StringVar(&req.Billing.FirstName, "first-name", "Ada", "billing first name")
	fs.StringVar(&req.Billing.LastName, "last-name", "Lovelace", "billing last name")
	fs.StringVar(&req.Billing.Line1, "line1", "12 Analytical Row", "billing address line 1")
	fs.StringVar(&req.Billing.City, "city", "London", "billing city")
	fs.StringVar(&req.Billing.Postcode, "postcode", "NW1 6XE", "billing postcode")
	fs.StringVar(&req.Billing.Country, "country", "GB", "billing country")
	fs.StringVar(&pay.token, "token", "tok_visa", "payment token obtained from the processor")
	fs.StringVar(&pay.stripeKey, "stripe-key", a.cfg.Payment.StripeSecretKey, "stripe test secret key; tokenizes -card server side")
	fs.StringVar(&pay.card.Number, "card", "4242424242424242", "card number used with -stripe-key")
	fs.StringVar(&pay.card.ExpMonth, "exp-month", "12", "card expiry month")
	fs.StringVar(&pay.card.ExpYear, "exp-year", "2030", "card expiry year")
	fs.StringVar(&pay.card.CVC, "cvc", "123", "card cvc")
	fs.StringVar(&pay.email, "receipt", "", "receipt email (defaults to -email)")
	fs.IntVar(&pay.retries, "retries", 1, "payment retries against the same order")
	if err := fs.Parse(args); err != nil {
		return checkout.Request{}, paymentFlags{}, errUsage
	}
	return req, pay, nil
}

func (a *app) tokenSource(pay paymentFlags) (payment.TokenSource, error) {
	if strings.TrimSpace(pay.stripeKey) != "" {
		return payment.NewStripeTokens(pay.stripeKey, pay.card)
	}
	return payment.StaticToken(pay.token), nil
}

func (a *app) checkout(ctx context.Context, args []string) error {
	req, pay, err := a.checkoutFlags("checkout", args)
	if err != nil {
		return err
	}
	tokens, err := a.tokenSource(pay)
	if err != nil {
		return err
	}
	if err := a.flow.StartCheckout(ctx, req); err != nil {
		return err
	}
	snap := a.flow.Snapshot()
	fmt.Fprintf(a.out, "order %s awaiting %s\n", snap.OrderID, snap.Amount.Formatted)

	for attempt := 0; ; attempt++ {
		err = a.flow.SubmitPayment(ctx, tokens, pay.email)
		if err == nil {
			break
		}
		var stageErr *checkout.StageError
		if attempt >= pay.retries || !errors.As(err, &stageErr) || stageErr.Stage != checkout.StagePayment {
			return err
		}
		fmt.Fprintf(a.out, "payment failed (%v), retrying order %s\n", err, snap.OrderID)
	}
	snap = a.flow.Snapshot()
	fmt.Fprintf(a.out, "order %s %s", snap.OrderID, snap.State)
	if snap.Payment != nil {
		fmt.Fprintf(a.out, " transaction %s", snap.Payment.ID)
	}
	fmt.Fprintln(a.out)
	return nil
}

// walk repeats the original demo: two of the first product, a look at the
// cart, then checkout and payment.
func (a *app) walk(ctx context.Context, args []string) error {
	products, err := a.api.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return errors.New("storectl: catalog is empty")
	}
	if err := a.cart.Initialize(ctx); err != nil {
		return err
	}
	if err := a.cart.AddItem(ctx, products[0].ID, 2); err != nil {
		return err
	}
	a.printCart()
	return a.checkout(ctx, args)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
