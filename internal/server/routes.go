package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/storefront/internal/auth"
	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/checkout"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/danmuck/storefront/internal/payment"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sessionContextKey = "storefront.session"

const (
	stageCatalog   = "catalog"
	stageCustomers = "customers"
)

func (s *Storefront) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
		})
	})
	s.router.GET("/ready", s.ready)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api", auth.Middleware(s.validator))
	api.GET("/products", s.listProducts)
	api.GET("/products/:id", s.getProduct)
	api.POST("/customers", s.registerCustomer)
	api.POST("/customers/tokens", s.authenticate)

	shop := api.Group("", s.session())
	shop.GET("/cart", s.getCart)
	shop.POST("/cart/refresh", s.refreshCart)
	shop.POST("/cart/items", s.addItem)
	shop.DELETE("/cart/items/:item_id", s.removeItem)
	shop.GET("/checkout", s.getCheckout)
	shop.POST("/checkout", s.startCheckout)
	shop.POST("/checkout/payment", s.submitPayment)
	shop.DELETE("/checkout", s.resetCheckout)
}

// session attaches the shopper session named by X-Session-ID, opening a new
// one when the header is missing, and echoes the id back.
func (s *Storefront) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := s.Sessions.Open(c.GetHeader(observability.HeaderSessionID))
		c.Header(observability.HeaderSessionID, sess.ID)
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *Session {
	return c.MustGet(sessionContextKey).(*Session)
}

func (s *Storefront) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyProbeTimeout)
	defer cancel()
	if _, err := s.api.ListProducts(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":    true,
		"uptime":   time.Since(s.Appeared).String(),
		"sessions": s.Sessions.Len(),
	})
}

func (s *Storefront) listProducts(c *gin.Context) {
	products, err := s.api.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err, gin.H{"stage": stageCatalog})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (s *Storefront) getProduct(c *gin.Context) {
	product, err := s.api.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, gin.H{"stage": stageCatalog})
		return
	}
	c.JSON(http.StatusOK, product)
}

type cartView struct {
	SessionID string                `json:"session_id"`
	CartID    string                `json:"cart_id,omitempty"`
	Status    cart.Status           `json:"status"`
	Items     []commerce.CartItem   `json:"items"`
	Summary   *commerce.CartSummary `json:"summary"`
	Error     string                `json:"error,omitempty"`
	Stage     string                `json:"stage,omitempty"`
}

func viewCart(sess *Session) cartView {
	snap := sess.Cart.Snapshot()
	v := cartView{
		SessionID: sess.ID,
		CartID:    snap.CartID.String(),
		Status:    snap.Status,
		Items:     snap.Items,
		Summary:   snap.Summary,
		Stage:     string(snap.Stage),
	}
	if v.Items == nil {
		v.Items = []commerce.CartItem{}
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	return v
}

// getCart initializes the session cart on first activation and returns it.
func (s *Storefront) getCart(c *gin.Context) {
	sess := currentSession(c)
	if sess.Cart.Snapshot().Status == cart.StatusUninitialized {
		if err := sess.Cart.Initialize(c.Request.Context()); err != nil {
			writeError(c, err, gin.H{"cart": viewCart(sess)})
			return
		}
	}
	c.JSON(http.StatusOK, viewCart(sess))
}

func (s *Storefront) refreshCart(c *gin.Context) {
	sess := currentSession(c)
	if err := sess.Cart.Refresh(c.Request.Context()); err != nil {
		writeError(c, err, gin.H{"cart": viewCart(sess)})
		return
	}
	c.JSON(http.StatusOK, viewCart(sess))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (s *Storefront) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess := currentSession(c)
	if err := sess.Cart.AddItem(c.Request.Context(), req.ProductID, req.Quantity); err != nil {
		writeError(c, err, gin.H{"cart": viewCart(sess)})
		return
	}
	c.JSON(http.StatusOK, viewCart(sess))
}

func (s *Storefront) removeItem(c *gin.Context) {
	sess := currentSession(c)
	if err := sess.Cart.RemoveItem(c.Request.Context(), c.Param("item_id")); err != nil {
		writeError(c, err, gin.H{"cart": viewCart(sess)})
		return
	}
	c.JSON(http.StatusOK, viewCart(sess))
}

type checkoutView struct {
	SessionID string                    `json:"session_id"`
	State     checkout.State            `json:"state"`
	Stage     string                    `json:"stage,omitempty"`
	Error     string                    `json:"error,omitempty"`
	CartID    string                    `json:"cart_id,omitempty"`
	OrderID   string                    `json:"order_id,omitempty"`
	Amount    *commerce.Money           `json:"amount,omitempty"`
	Customer  commerce.CheckoutCustomer `json:"customer"`
	Payment   *commerce.Payment         `json:"payment,omitempty"`
}

func viewCheckout(sess *Session) checkoutView {
	snap := sess.Checkout.Snapshot()
	v := checkoutView{
		SessionID: sess.ID,
		State:     snap.State,
		Stage:     string(snap.Stage),
		CartID:    snap.CartID.String(),
		OrderID:   snap.OrderID,
		Customer:  snap.Customer,
		Payment:   snap.Payment,
	}
	if snap.OrderID != "" {
		amount := snap.Amount
		v.Amount = &amount
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	return v
}

func (s *Storefront) getCheckout(c *gin.Context) {
	c.JSON(http.StatusOK, viewCheckout(currentSession(c)))
}

func (s *Storefront) startCheckout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess := currentSession(c)
	if err := sess.Checkout.StartCheckout(c.Request.Context(), req); err != nil {
		writeError(c, err, gin.H{"checkout": viewCheckout(sess)})
		return
	}
	c.JSON(http.StatusCreated, viewCheckout(sess))
}

type paymentRequest struct {
	Token        string `json:"token"`
	ReceiptEmail string `json:"receipt_email"`
}

func (s *Storefront) submitPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess := currentSession(c)
	if strings.TrimSpace(req.Token) == "" {
		err := &checkout.ValidationError{Stage: checkout.StagePayment, Op: "submit_payment", Err: payment.ErrEmptyToken}
		writeError(c, err, gin.H{"checkout": viewCheckout(sess)})
		return
	}
	err := sess.Checkout.SubmitPayment(c.Request.Context(), payment.StaticToken(req.Token), req.ReceiptEmail)
	if err != nil {
		writeError(c, err, gin.H{"checkout": viewCheckout(sess)})
		return
	}
	c.JSON(http.StatusOK, viewCheckout(sess))
}

func (s *Storefront) resetCheckout(c *gin.Context) {
	sess := currentSession(c)
	if err := sess.Checkout.Reset(); err != nil {
		writeError(c, err, gin.H{"checkout": viewCheckout(sess)})
		return
	}
	c.JSON(http.StatusOK, viewCheckout(sess))
}

var errCredentialsRequired = errors.New("server: email and password required")

func (s *Storefront) registerCustomer(c *gin.Context) {
	var req commerce.CustomerProfile
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		badRequest(c, errors.New("server: name, email and password required"))
		return
	}
	customer, err := s.api.RegisterCustomer(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, gin.H{"stage": stageCustomers})
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (s *Storefront) authenticate(c *gin.Context) {
	var req commerce.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		badRequest(c, errCredentialsRequired)
		return
	}
	customer, err := s.api.Authenticate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, gin.H{"stage": stageCustomers})
		return
	}
	c.JSON(http.StatusOK, customer)
}
