// Package mockapi is an in-memory stand-in for the hosted commerce API.
//
// It speaks the same v2 JSON wire shape the commerce adapter expects and
// computes cart totals server-side, so the storefront can be exercised end to
// end without the real service. Faults and latency can be injected per
// operation for tests.
package mockapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Operation names used by FailNext, Delay and Calls.
const (
	OpAccessToken    = "access_token"
	OpListProducts   = "list_products"
	OpGetProduct     = "get_product"
	OpCreateCart     = "create_cart"
	OpAddItem        = "add_item"
	OpListCartItems  = "list_cart_items"
	OpRemoveItem     = "remove_item"
	OpBeginCheckout  = "begin_checkout"
	OpSubmitPayment  = "submit_payment"
	OpCreateCustomer = "create_customer"
	OpCustomerToken  = "customer_token"
)

// DeclinedTokenPrefix marks payment tokens the mock gateway declines.
const DeclinedTokenPrefix = "tok_chargeDeclined"

type cartLine struct {
	ID        string
	ProductID string
	Quantity  int
}

type cart struct {
	ID    string
	Lines []*cartLine
}

type order struct {
	ID       string
	CartID   string
	Status   string
	Payment  string
	Customer map[string]string
	Billing  map[string]any
	Shipping map[string]any
	Total    int64
	Currency string
}

type customer struct {
	ID       string
	Name     string
	Email    string
	Password string
}

type fault struct {
	status int
	title  string
}

// Server holds all remote state behind one mutex.
type Server struct {
	ClientID string
	Currency string

	mu           sync.Mutex
	products     map[string]Product
	productOrder []string
	carts        map[string]*cart
	orders       map[string]*order
	customers    map[string]*customer
	accessTokens map[string]time.Time
	faults       map[string][]fault
	delays       map[string]time.Duration
	calls        map[string]int

	router *gin.Engine
}

// New builds a mock remote that accepts access-token requests for clientID.
func New(clientID string, catalog []Product) *Server {
	s := &Server{
		ClientID:     clientID,
		Currency:     "USD",
		products:     make(map[string]Product),
		carts:        make(map[string]*cart),
		orders:       make(map[string]*order),
		customers:    make(map[string]*customer),
		accessTokens: make(map[string]time.Time),
		faults:       make(map[string][]fault),
		delays:       make(map[string]time.Duration),
		calls:        make(map[string]int),
	}
	for _, p := range catalog {
		s.AddProduct(p)
	}
	s.router = s.routes()
	return s
}

func (s *Server) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Currency == "" {
		p.Currency = s.Currency
	}
	if _, ok := s.products[p.ID]; !ok {
		s.productOrder = append(s.productOrder, p.ID)
	}
	s.products[p.ID] = p
}

// FailNext makes the next call to op answer with status.
func (s *Server) FailNext(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], fault{status: status, title: http.StatusText(status)})
}

// Delay holds every call to op for d before answering.
func (s *Server) Delay(op string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.delays, op)
		return
	}
	s.delays[op] = d
}

// Calls reports how many requests reached op, including injected failures.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// OrderPayment reports the payment status of an order ("" when unknown).
func (s *Server) OrderPayment(orderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		return o.Payment
	}
	return ""
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/oauth/access_token", s.track(OpAccessToken), s.handleAccessToken)

	v2 := r.Group("/v2", s.requireToken)
	v2.GET("/products", s.track(OpListProducts), s.handleListProducts)
	v2.GET("/products/:id", s.track(OpGetProduct), s.handleGetProduct)
	v2.POST("/carts", s.track(OpCreateCart), s.handleCreateCart)
	v2.GET("/carts/:cart/items", s.track(OpListCartItems), s.handleListItems)
	v2.POST("/carts/:cart/items", s.track(OpAddItem), s.handleAddItem)
	v2.DELETE("/carts/:cart/items/:item", s.track(OpRemoveItem), s.handleRemoveItem)
	v2.POST("/carts/:cart/checkout", s.track(OpBeginCheckout), s.handleCheckout)
	v2.POST("/orders/:order/payments", s.track(OpSubmitPayment), s.handlePayment)
	v2.POST("/customers", s.track(OpCreateCustomer), s.handleCreateCustomer)
	v2.POST("/customers/tokens", s.track(OpCustomerToken), s.handleCustomerToken)
	return r
}

// track counts the call, applies injected latency and consumes one queued fault.
func (s *Server) track(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[op]++
		delay := s.delays[op]
		var injected *fault
		if queue := s.faults[op]; len(queue) > 0 {
			f := queue[0]
			injected = &f
			s.faults[op] = queue[1:]
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
		}
		if injected != nil {
			abortError(c, injected.status, injected.title, "injected failure for "+op)
			return
		}
		c.Next()
	}
}

func (s *Server) requireToken(c *gin.Context) {
	raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	s.mu.Lock()
	expiry, ok := s.accessTokens[raw]
	s.mu.Unlock()
	if !ok || time.Now().After(expiry) {
		abortError(c, http.StatusUnauthorized, "Unauthorized", "access token missing or expired")
		return
	}
	c.Next()
}

func (s *Server) handleAccessToken(c *gin.Context) {
	if c.PostForm("grant_type") != "implicit" {
		abortError(c, http.StatusBadRequest, "Bad Request", "unsupported grant_type")
		return
	}
	if c.PostForm("client_id") != s.ClientID {
		abortError(c, http.StatusUnauthorized, "Unauthorized", "unknown client_id")
		return
	}
	token := uuid.NewString()
	expiry := time.Now().Add(time.Hour)
	s.mu.Lock()
	s.accessTokens[token] = expiry
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires":      expiry.Unix(),
		"expires_in":   3600,
	})
}

func abortError(c *gin.Context, status int, title, detail string) {
	c.AbortWithStatusJSON(status, gin.H{
		"errors": []gin.H{{
			"status": status,
			"title":  title,
			"detail": detail,
		}},
	})
}
