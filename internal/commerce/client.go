package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/storefront/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultCallTimeout = 10 * time.Second

	paymentGateway = "stripe"
	paymentMethod  = "purchase"

	maxResponseBytes = 4 << 20
	tokenSkew        = 30 * time.Second
)

// Config configures the HTTP adapter.
type Config struct {
	BaseURL        string
	ClientID       string
	CallTimeout    time.Duration
	DuplicateLines DuplicatePolicy
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
}

// Client is the HTTP implementation of Adapter. It is safe for concurrent use.
type Client struct {
	baseURL        string
	clientID       string
	callTimeout    time.Duration
	duplicateLines DuplicatePolicy
	httpClient     *http.Client
	logger         zerolog.Logger
	now            func() time.Time

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient validates cfg and returns an adapter bound to one remote store.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("commerce: base url required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("commerce: invalid base url: %w", err)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("commerce: client id required")
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	policy := cfg.DuplicateLines
	switch policy {
	case "":
		policy = DuplicateMerge
	case DuplicateMerge, DuplicateSeparate:
	default:
		return nil, fmt.Errorf("commerce: unknown duplicate line policy %q", policy)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := observability.Component("commerce")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		baseURL:        base,
		clientID:       strings.TrimSpace(cfg.ClientID),
		callTimeout:    timeout,
		duplicateLines: policy,
		httpClient:     httpClient,
		logger:         logger,
		now:            time.Now,
	}, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var env productListEnvelope
	if err := c.call(ctx, "list_products", http.MethodGet, "/v2/products?include=main_image", nil, &env); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(env.Data))
	for _, p := range env.Data {
		out = append(out, p.product(env.Included))
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	const op = "get_product"
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, &UpstreamError{Op: op, Err: fmt.Errorf("commerce: product id required")}
	}
	var env productEnvelope
	path := "/v2/products/" + url.PathEscape(id) + "?include=main_image"
	if err := c.call(ctx, op, http.MethodGet, path, nil, &env); err != nil {
		return Product{}, err
	}
	if env.Data == nil {
		return Product{}, &UpstreamError{Op: op, Err: ErrMalformedResponse}
	}
	return env.Data.product(env.Included), nil
}

func (c *Client) CreateCart(ctx context.Context) (CartID, error) {
	const op = "create_cart"
	var env cartEnvelope
	if err := c.call(ctx, op, http.MethodPost, "/v2/carts", dataEnvelope{Data: map[string]string{"type": "cart"}}, &env); err != nil {
		return "", err
	}
	if env.Data == nil || strings.TrimSpace(env.Data.ID) == "" {
		return "", &UpstreamError{Op: op, Err: ErrMalformedResponse}
	}
	return CartID(env.Data.ID), nil
}

func (c *Client) AddItem(ctx context.Context, cartID CartID, productID string, quantity int) (CartContents, error) {
	const op = "add_item"
	if cartID == "" {
		return CartContents{}, &UpstreamError{Op: op, Err: ErrMissingCartID}
	}
	merge := c.duplicateLines == DuplicateMerge
	req := dataEnvelope{Data: addItemRequest{
		Type:     "cart_item",
		ID:       productID,
		Quantity: quantity,
		Merge:    &merge,
	}}
	return c.cartCall(ctx, op, http.MethodPost, cartPath(cartID, "items"), req)
}

func (c *Client) ListCartItems(ctx context.Context, cartID CartID) (CartContents, error) {
	const op = "list_cart_items"
	if cartID == "" {
		return CartContents{}, &UpstreamError{Op: op, Err: ErrMissingCartID}
	}
	return c.cartCall(ctx, op, http.MethodGet, cartPath(cartID, "items"), nil)
}

func (c *Client) RemoveItem(ctx context.Context, cartID CartID, itemID string) (CartContents, error) {
	const op = "remove_item"
	if cartID == "" {
		return CartContents{}, &UpstreamError{Op: op, Err: ErrMissingCartID}
	}
	return c.cartCall(ctx, op, http.MethodDelete, cartPath(cartID, "items", itemID), nil)
}

func (c *Client) BeginCheckout(ctx context.Context, cartID CartID, customer CheckoutCustomer, billing, shipping Address) (Order, error) {
	const op = "begin_checkout"
	if cartID == "" {
		return Order{}, &UpstreamError{Op: op, Err: ErrMissingCartID}
	}
	req := dataEnvelope{Data: checkoutRequest{
		Customer:        customer,
		BillingAddress:  billing,
		ShippingAddress: shipping,
	}}
	var env orderEnvelope
	if err := c.call(ctx, op, http.MethodPost, cartPath(cartID, "checkout"), req, &env); err != nil {
		return Order{}, err
	}
	if env.Data == nil || strings.TrimSpace(env.Data.ID) == "" {
		return Order{}, &UpstreamError{Op: op, Err: ErrMalformedResponse}
	}
	return env.Data.order(), nil
}

func (c *Client) SubmitPayment(ctx context.Context, orderID string, token PaymentToken, receiptEmail string) (Payment, error) {
	const op = "submit_payment"
	if strings.TrimSpace(orderID) == "" {
		return Payment{}, &UpstreamError{Op: op, Err: ErrMissingOrderID}
	}
	req := dataEnvelope{Data: paymentRequest{
		Gateway: paymentGateway,
		Method:  paymentMethod,
		Payment: string(token),
		Options: paymentOptions{ReceiptEmail: receiptEmail},
	}}
	var env transactionEnvelope
	path := "/v2/orders/" + url.PathEscape(orderID) + "/payments"
	if err := c.call(ctx, op, http.MethodPost, path, req, &env); err != nil {
		return Payment{}, err
	}
	if env.Data == nil {
		return Payment{}, &UpstreamError{Op: op, Err: ErrMalformedResponse}
	}
	return Payment{
		ID:      env.Data.ID,
		Gateway: env.Data.Gateway,
		Status:  TransactionStatus(env.Data.Status),
	}, nil
}

// RegisterCustomer creates the customer record and then logs in, so the
// returned Customer carries a usable token.
func (c *Client) RegisterCustomer(ctx context.Context, profile CustomerProfile) (Customer, error) {
	const op = "register_customer"
	req := dataEnvelope{Data: customerRequest{
		Type:     "customer",
		Name:     profile.Name,
		Email:    profile.Email,
		Password: profile.Password,
	}}
	var env customerEnvelope
	if err := c.call(ctx, op, http.MethodPost, "/v2/customers", req, &env); err != nil {
		return Customer{}, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return Customer{}, &UpstreamError{Op: op, Err: ErrMalformedResponse}
	}
	session, err := c.Authenticate(ctx, Credentials{Email: profile.Email, Password: profile.Password})
	if err != nil {
		return Customer{}, err
	}
	return Customer{
		ID:    env.Data.ID,
		Name:  env.Data.Name,
		Email: env.Data.Email,
		Token: session.Token,
	}, nil
}

func (c *Client) Authenticate(ctx context.Context, creds Credentials) (Customer, error) {
	const op = "authenticate"
	req := dataEnvelope{Data: tokenRequest{
		Type:     "token",
		Email:    creds.Email,
		Password: creds.Password,
	}}
	var env customerTokenEnvelope
	if err := c.call(ctx, op, http.MethodPost, "/v2/customers/tokens", req, &env); err != nil {
		return Customer{}, err
	}
	if env.Data == nil || env.Data.Token == "" {
		return Customer{}, &UpstreamError{Op: op, Err: ErrMalformedResponse}
	}
	return Customer{
		ID:    env.Data.CustomerID,
		Email: creds.Email,
		Token: env.Data.Token,
	}, nil
}

func (c *Client) cartCall(ctx context.Context, op, method, path string, body any) (CartContents, error) {
	var env cartItemsEnvelope
	if err := c.call(ctx, op, method, path, body, &env); err != nil {
		return CartContents{}, err
	}
	return env.contents(), nil
}

// call runs one remote round-trip under the per-call timeout.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	status, err := c.roundTrip(ctx, op, method, path, body, out)
	observability.RecordCommerceCall(op, status, time.Since(start), err == nil)
	if err != nil {
		c.logger.Warn().Str("op", op).Int("status", status).Err(err).Msg("commerce call failed")
		return err
	}
	c.logger.Debug().Str("op", op).Int("status", status).Dur("duration", time.Since(start)).Msg("commerce call")
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any) (int, error) {
	token, err := c.token(ctx)
	if err != nil {
		if upstream, ok := AsUpstream(err); ok {
			return upstream.Status, &UpstreamError{
				Op:      op,
				Status:  upstream.Status,
				Code:    upstream.Code,
				Detail:  upstream.Detail,
				Timeout: upstream.Timeout,
				Err:     err,
			}
		}
		return 0, transportError(op, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, &UpstreamError{Op: op, Err: fmt.Errorf("commerce: encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(observability.HeaderRequestID, uuid.NewString())

	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, transportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, &UpstreamError{
			Op:      op,
			Status:  resp.StatusCode,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, decodeFailure(op, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		if out != nil {
			return resp.StatusCode, &UpstreamError{Op: op, Status: resp.StatusCode, Err: ErrMalformedResponse}
		}
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &UpstreamError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	return resp.StatusCode, nil
}

func decodeFailure(op string, status int, raw []byte) *UpstreamError {
	out := &UpstreamError{Op: op, Status: status}
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Errors) > 0 {
		out.Code = env.Errors[0].Title
		out.Detail = env.Errors[0].Detail
		return out
	}
	out.Detail = strings.TrimSpace(string(raw))
	if len(out.Detail) > 256 {
		out.Detail = out.Detail[:256]
	}
	return out
}

// token returns the implicit-grant access token, fetching a new one when the
// current token is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && c.now().Add(tokenSkew).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	const op = "access_token"
	form := url.Values{}
	form.Set("grant_type", "implicit")
	form.Set("client_id", c.clientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var resp accessTokenResponse
	if _, err := c.send(req, op, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &UpstreamError{Op: op, Err: ErrMalformedResponse}
	}
	c.accessToken = resp.AccessToken
	switch {
	case resp.Expires > 0:
		c.tokenExpiry = time.Unix(resp.Expires, 0)
	case resp.ExpiresIn > 0:
		c.tokenExpiry = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		c.tokenExpiry = c.now().Add(time.Hour)
	}
	return c.accessToken, nil
}

func cartPath(cartID CartID, parts ...string) string {
	var b strings.Builder
	b.WriteString("/v2/carts/")
	b.WriteString(url.PathEscape(string(cartID)))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
