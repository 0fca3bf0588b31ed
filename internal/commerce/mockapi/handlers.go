package mockapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) productJSON(p Product) gin.H {
	out := gin.H{
		"id":          p.ID,
		"type":        "product",
		"name":        p.Name,
		"description": p.Description,
		"sku":         p.SKU,
		"meta": gin.H{
			"display_price": gin.H{"with_tax": newPrice(p.PriceCents, p.Currency)},
		},
	}
	if p.ImageURL != "" {
		out["relationships"] = gin.H{
			"main_image": gin.H{"data": gin.H{"id": imageID(p), "type": "main_image"}},
		}
	}
	return out
}

func imageID(p Product) string {
	return "img-" + p.ID
}

func imageJSON(p Product) gin.H {
	return gin.H{
		"id":   imageID(p),
		"type": "file",
		"link": gin.H{"href": p.ImageURL},
	}
}

func (s *Server) handleListProducts(c *gin.Context) {
	s.mu.Lock()
	data := make([]gin.H, 0, len(s.productOrder))
	images := make([]gin.H, 0)
	for _, id := range s.productOrder {
		p := s.products[id]
		data = append(data, s.productJSON(p))
		if p.ImageURL != "" {
			images = append(images, imageJSON(p))
		}
	}
	s.mu.Unlock()

	resp := gin.H{"data": data}
	if c.Query("include") == "main_image" {
		resp["included"] = gin.H{"main_images": images}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetProduct(c *gin.Context) {
	s.mu.Lock()
	p, ok := s.products[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		abortError(c, http.StatusNotFound, "Not Found", "product not found")
		return
	}
	resp := gin.H{"data": s.productJSON(p)}
	if c.Query("include") == "main_image" && p.ImageURL != "" {
		resp["included"] = gin.H{"main_images": []gin.H{imageJSON(p)}}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateCart(c *gin.Context) {
	id := uuid.NewString()
	s.mu.Lock()
	s.carts[id] = &cart{ID: id}
	s.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"id": id, "type": "cart"}})
}

func (s *Server) handleListItems(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.carts[c.Param("cart")]
	if !ok {
		abortError(c, http.StatusNotFound, "Not Found", "cart not found")
		return
	}
	c.JSON(http.StatusOK, s.cartItemsLocked(ct))
}

type addItemBody struct {
	Data struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
		Merge    *bool  `json:"merge"`
	} `json:"data"`
}

func (s *Server) handleAddItem(c *gin.Context) {
	var body addItemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if body.Data.Quantity < 1 {
		abortError(c, http.StatusUnprocessableEntity, "Failed Validation", "quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.carts[c.Param("cart")]
	if !ok {
		abortError(c, http.StatusNotFound, "Not Found", "cart not found")
		return
	}
	if _, ok := s.products[body.Data.ID]; !ok {
		abortError(c, http.StatusNotFound, "Not Found", "product not found")
		return
	}
	merge := body.Data.Merge == nil || *body.Data.Merge
	var line *cartLine
	if merge {
		for _, l := range ct.Lines {
			if l.ProductID == body.Data.ID {
				line = l
				break
			}
		}
	}
	if line != nil {
		line.Quantity += body.Data.Quantity
	} else {
		ct.Lines = append(ct.Lines, &cartLine{
			ID:        uuid.NewString(),
			ProductID: body.Data.ID,
			Quantity:  body.Data.Quantity,
		})
	}
	c.JSON(http.StatusCreated, s.cartItemsLocked(ct))
}

func (s *Server) handleRemoveItem(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.carts[c.Param("cart")]
	if !ok {
		abortError(c, http.StatusNotFound, "Not Found", "cart not found")
		return
	}
	itemID := c.Param("item")
	kept := ct.Lines[:0]
	found := false
	for _, l := range ct.Lines {
		if l.ID == itemID {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		abortError(c, http.StatusNotFound, "Not Found", "cart item not found")
		return
	}
	ct.Lines = kept
	c.JSON(http.StatusOK, s.cartItemsLocked(ct))
}

func (s *Server) cartTotalLocked(ct *cart) int64 {
	var total int64
	for _, l := range ct.Lines {
		total += s.products[l.ProductID].PriceCents * int64(l.Quantity)
	}
	return total
}

func (s *Server) cartItemsLocked(ct *cart) gin.H {
	items := make([]gin.H, 0, len(ct.Lines))
	for _, l := range ct.Lines {
		p := s.products[l.ProductID]
		items = append(items, gin.H{
			"id":         l.ID,
			"type":       "cart_item",
			"product_id": l.ProductID,
			"name":       p.Name,
			"sku":        p.SKU,
			"quantity":   l.Quantity,
			"meta": gin.H{
				"display_price": gin.H{"with_tax": gin.H{
					"unit":  newPrice(p.PriceCents, p.Currency),
					"value": newPrice(p.PriceCents*int64(l.Quantity), p.Currency),
				}},
			},
		})
	}
	return gin.H{
		"data": items,
		"meta": gin.H{
			"display_price": gin.H{"with_tax": newPrice(s.cartTotalLocked(ct), s.Currency)},
		},
	}
}

type checkoutBody struct {
	Data struct {
		Customer        map[string]string `json:"customer"`
		BillingAddress  map[string]any    `json:"billing_address"`
		ShippingAddress map[string]any    `json:"shipping_address"`
	} `json:"data"`
}

func (s *Server) handleCheckout(c *gin.Context) {
	var body checkoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	cust := body.Data.Customer
	if cust["id"] == "" && (cust["email"] == "" || cust["name"] == "") {
		abortError(c, http.StatusUnprocessableEntity, "Failed Validation", "customer requires id or name and email")
		return
	}
	if len(body.Data.BillingAddress) == 0 {
		abortError(c, http.StatusUnprocessableEntity, "Failed Validation", "billing_address is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.carts[c.Param("cart")]
	if !ok {
		abortError(c, http.StatusNotFound, "Not Found", "cart not found")
		return
	}
	if len(ct.Lines) == 0 {
		abortError(c, http.StatusBadRequest, "Cart Empty", "cannot checkout an empty cart")
		return
	}
	if id := cust["id"]; id != "" {
		for _, known := range s.customers {
			if known.ID == id {
				cust = map[string]string{"id": id, "name": known.Name, "email": known.Email}
			}
		}
	}
	o := &order{
		ID:       uuid.NewString(),
		CartID:   ct.ID,
		Status:   "incomplete",
		Payment:  "unpaid",
		Customer: cust,
		Billing:  body.Data.BillingAddress,
		Shipping: body.Data.ShippingAddress,
		Total:    s.cartTotalLocked(ct),
		Currency: s.Currency,
	}
	s.orders[o.ID] = o
	c.JSON(http.StatusCreated, gin.H{"data": orderJSON(o)})
}

func orderJSON(o *order) gin.H {
	return gin.H{
		"id":               o.ID,
		"type":             "order",
		"status":           o.Status,
		"payment":          o.Payment,
		"customer":         o.Customer,
		"billing_address":  o.Billing,
		"shipping_address": o.Shipping,
		"meta": gin.H{
			"display_price": gin.H{"with_tax": newPrice(o.Total, o.Currency)},
		},
	}
}

type paymentBody struct {
	Data struct {
		Gateway string `json:"gateway"`
		Method  string `json:"method"`
		Payment string `json:"payment"`
		Options struct {
			ReceiptEmail string `json:"receipt_email"`
		} `json:"options"`
	} `json:"data"`
}

func (s *Server) handlePayment(c *gin.Context) {
	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if body.Data.Gateway != "stripe" || body.Data.Method != "purchase" {
		abortError(c, http.StatusBadRequest, "Bad Request", "unsupported gateway or method")
		return
	}
	if strings.TrimSpace(body.Data.Payment) == "" {
		abortError(c, http.StatusUnprocessableEntity, "Failed Validation", "payment token is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[c.Param("order")]
	if !ok {
		abortError(c, http.StatusNotFound, "Not Found", "order not found")
		return
	}
	if o.Payment == "paid" {
		abortError(c, http.StatusConflict, "Conflict", "order already paid")
		return
	}

	status := "complete"
	if strings.HasPrefix(body.Data.Payment, DeclinedTokenPrefix) {
		status = "failed"
	} else {
		o.Payment = "paid"
		o.Status = "complete"
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":               uuid.NewString(),
		"type":             "transaction",
		"gateway":          body.Data.Gateway,
		"status":           status,
		"transaction-type": body.Data.Method,
	}})
}

type customerBody struct {
	Data struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	} `json:"data"`
}

func (s *Server) handleCreateCustomer(c *gin.Context) {
	var body customerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Data.Email))
	if email == "" || body.Data.Password == "" {
		abortError(c, http.StatusUnprocessableEntity, "Failed Validation", "email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.customers[email]; exists {
		abortError(c, http.StatusConflict, "Duplicate", "customer email already registered")
		return
	}
	cust := &customer{
		ID:       uuid.NewString(),
		Name:     body.Data.Name,
		Email:    email,
		Password: body.Data.Password,
	}
	s.customers[email] = cust
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":    cust.ID,
		"type":  "customer",
		"name":  cust.Name,
		"email": cust.Email,
	}})
}

func (s *Server) handleCustomerToken(c *gin.Context) {
	var body customerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Data.Email))

	s.mu.Lock()
	cust, ok := s.customers[email]
	s.mu.Unlock()
	if !ok || cust.Password != body.Data.Password {
		abortError(c, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"type":        "token",
		"customer_id": cust.ID,
		"token":       "cust-" + uuid.NewString(),
		"expires":     0,
	}})
}
