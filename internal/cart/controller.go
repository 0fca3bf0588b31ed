// Package cart holds the per-session cart view and mediates every cart
// mutation through the commerce adapter.
//
// Items and summary are only ever replaced wholesale by a server response;
// the controller never does price arithmetic of its own.
package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/danmuck/storefront/internal/store"
	"github.com/rs/zerolog"
)

const DefaultStorageKey = "mcart"

// API is the slice of the commerce adapter the controller needs.
type API interface {
	CreateCart(ctx context.Context) (commerce.CartID, error)
	AddItem(ctx context.Context, cartID commerce.CartID, productID string, quantity int) (commerce.CartContents, error)
	ListCartItems(ctx context.Context, cartID commerce.CartID) (commerce.CartContents, error)
	RemoveItem(ctx context.Context, cartID commerce.CartID, itemID string) (commerce.CartContents, error)
}

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
	StatusEmpty         Status = "empty"
	StatusError         Status = "error"
)

// MutationPolicy decides what happens to a cart operation issued while
// another one for the same cart is still outstanding.
type MutationPolicy string

const (
	PolicyReject MutationPolicy = "reject"
	PolicyQueue  MutationPolicy = "queue"
)

func ParseMutationPolicy(raw string) (MutationPolicy, error) {
	switch MutationPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyQueue:
		return PolicyQueue, nil
	default:
		return "", fmt.Errorf("cart: unknown mutation policy %q", raw)
	}
}

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	CartID  commerce.CartID
	Items   []commerce.CartItem
	Summary *commerce.CartSummary
	Status  Status
	Err     error
	Stage   Stage
}

func (s Snapshot) HasItems() bool {
	return len(s.Items) > 0
}

// Item finds a line by cart item id.
func (s Snapshot) Item(itemID string) (commerce.CartItem, bool) {
	for _, it := range s.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return commerce.CartItem{}, false
}

type Option func(*Controller)

func WithStorageKey(key string) Option {
	return func(c *Controller) {
		if k := strings.TrimSpace(key); k != "" {
			c.key = k
		}
	}
}

func WithMutationPolicy(policy MutationPolicy) Option {
	return func(c *Controller) {
		if policy != "" {
			c.policy = policy
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller is the cart state machine for one session.
type Controller struct {
	api    API
	kv     store.KV
	key    string
	policy MutationPolicy
	logger zerolog.Logger

	// slot admits one outstanding cart operation.
	slot chan struct{}

	mu        sync.RWMutex
	state     Snapshot
	loadedID  bool
	persisted bool
}

func New(api API, kv store.KV, opts ...Option) *Controller {
	c := &Controller{
		api:    api,
		kv:     kv,
		key:    DefaultStorageKey,
		policy: PolicyReject,
		logger: observability.Component("cart"),
		slot:   make(chan struct{}, 1),
		state:  Snapshot{Status: StatusUninitialized},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.state
	if c.state.Items != nil {
		out.Items = append([]commerce.CartItem(nil), c.state.Items...)
	}
	if c.state.Summary != nil {
		summary := *c.state.Summary
		out.Summary = &summary
	}
	return out
}

func (c *Controller) CartID() commerce.CartID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.CartID
}

// Initialize reads the stored cart id and loads the cart. Called once per
// view activation; a session without a stored id ends up Empty without any
// remote call.
func (c *Controller) Initialize(ctx context.Context) error {
	return c.load(ctx, "initialize")
}

// Refresh re-fetches the cart from the remote service.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.load(ctx, "refresh")
}

func (c *Controller) load(ctx context.Context, op string) error {
	release, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	c.setStatus(StatusLoading)
	cartID, err := c.storedCartID()
	if err != nil {
		return c.fail(StageCartFetch, op, err)
	}
	if cartID == "" {
		c.apply(commerce.CartContents{})
		c.logger.Debug().Str("op", op).Msg("no stored cart")
		return nil
	}
	contents, err := c.api.ListCartItems(ctx, cartID)
	if err != nil {
		return c.fail(StageCartFetch, op, err)
	}
	c.apply(contents)
	return nil
}

// AddItem adds quantity of productID, creating the cart first when the
// session has none yet.
func (c *Controller) AddItem(ctx context.Context, productID string, quantity int) error {
	const op = "add_item"
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return &ValidationError{Stage: StageCartMutation, Op: op, Err: ErrProductRequired}
	}
	if quantity < 1 {
		return &ValidationError{Stage: StageCartMutation, Op: op, Err: ErrInvalidQuantity}
	}

	release, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	c.setStatus(StatusLoading)
	cartID, err := c.ensureCart(ctx)
	if err != nil {
		return c.fail(StageCartMutation, op, err)
	}
	contents, err := c.api.AddItem(ctx, cartID, productID, quantity)
	if err != nil {
		return c.fail(StageCartMutation, op, err)
	}
	c.apply(contents)
	c.logger.Debug().Str("cart_id", cartID.String()).Str("product_id", productID).Int("quantity", quantity).Msg("item added")
	return nil
}

// RemoveItem removes one cart line entirely. itemID is the cart item id,
// not the product id.
func (c *Controller) RemoveItem(ctx context.Context, itemID string) error {
	const op = "remove_item"
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return &ValidationError{Stage: StageCartMutation, Op: op, Err: ErrItemRequired}
	}

	release, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	c.mu.RLock()
	cartID := c.state.CartID
	_, found := c.state.Item(itemID)
	c.mu.RUnlock()
	if cartID == "" {
		return &ValidationError{Stage: StageCartMutation, Op: op, Err: ErrNoCart}
	}
	if !found {
		return &ValidationError{Stage: StageCartMutation, Op: op, Err: fmt.Errorf("%w: %s", ErrItemNotInCart, itemID)}
	}

	c.setStatus(StatusLoading)
	contents, err := c.api.RemoveItem(ctx, cartID, itemID)
	if err != nil {
		return c.fail(StageCartMutation, op, err)
	}
	c.apply(contents)
	c.logger.Debug().Str("cart_id", cartID.String()).Str("item_id", itemID).Msg("item removed")
	return nil
}

// Exclusive runs fn while holding the cart's operation slot, so no other
// cart operation reaches the remote service until fn returns. fn receives
// the state as of acquisition. The mutation policy applies to the wait.
func (c *Controller) Exclusive(ctx context.Context, op string, fn func(Snapshot) error) error {
	release, err := c.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()
	return fn(c.Snapshot())
}

func (c *Controller) acquire(ctx context.Context, op string) (func(), error) {
	release := func() { <-c.slot }
	if c.policy == PolicyQueue {
		select {
		case c.slot <- struct{}{}:
			return release, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("cart: %s waiting for cart: %w", op, ctx.Err())
		}
	}
	select {
	case c.slot <- struct{}{}:
		return release, nil
	default:
		return nil, &StateConflict{CartID: c.CartID(), Op: op}
	}
}

// storedCartID returns the in-memory id, reading the KV store the first time.
func (c *Controller) storedCartID() (commerce.CartID, error) {
	c.mu.RLock()
	cartID, loaded := c.state.CartID, c.loadedID
	c.mu.RUnlock()
	if cartID != "" || loaded {
		return cartID, nil
	}

	raw, ok, err := c.kv.Get(c.key)
	if err != nil {
		return "", fmt.Errorf("cart: read stored cart id: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedID = true
	if ok && strings.TrimSpace(raw) != "" {
		c.state.CartID = commerce.CartID(strings.TrimSpace(raw))
		c.persisted = true
	}
	return c.state.CartID, nil
}

// ensureCart returns the session cart id, creating and persisting one when
// needed. The id is kept in memory as soon as the remote issues it, so a
// failed persist or add never leads to a second CreateCart.
func (c *Controller) ensureCart(ctx context.Context) (commerce.CartID, error) {
	cartID, err := c.storedCartID()
	if err != nil {
		return "", err
	}
	if cartID == "" {
		cartID, err = c.api.CreateCart(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.state.CartID = cartID
		c.persisted = false
		c.mu.Unlock()
		c.logger.Info().Str("cart_id", cartID.String()).Msg("cart created")
	}

	c.mu.RLock()
	persisted := c.persisted
	c.mu.RUnlock()
	if persisted {
		return cartID, nil
	}
	if err := c.kv.Set(c.key, cartID.String()); err != nil {
		return "", fmt.Errorf("cart: persist cart id: %w", err)
	}
	c.mu.Lock()
	c.persisted = true
	c.mu.Unlock()
	return cartID, nil
}

func (c *Controller) setStatus(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = status
}

// apply replaces items and summary with one server response.
func (c *Controller) apply(contents commerce.CartContents) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Err = nil
	c.state.Stage = ""
	if len(contents.Items) == 0 {
		c.state.Items = nil
		c.state.Summary = nil
		c.state.Status = StatusEmpty
		return
	}
	c.state.Items = append([]commerce.CartItem(nil), contents.Items...)
	c.state.Summary = nil
	if contents.Summary != nil {
		summary := *contents.Summary
		c.state.Summary = &summary
	}
	c.state.Status = StatusReady
}

// fail keeps the last good items and summary and records the error.
func (c *Controller) fail(stage Stage, op string, err error) error {
	wrapped := &StageError{Stage: stage, Op: op, Err: err}
	c.mu.Lock()
	c.state.Status = StatusError
	c.state.Err = wrapped
	c.state.Stage = stage
	cartID := c.state.CartID
	c.mu.Unlock()
	c.logger.Warn().Str("op", op).Str("stage", string(stage)).Str("cart_id", cartID.String()).Err(err).Msg("cart operation failed")
	return wrapped
}
