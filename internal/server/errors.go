package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/checkout"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/gin-gonic/gin"
)

const StageRequest = "request"

type staged interface {
	ErrorStage() string
}

// errorStatus maps the error taxonomy onto HTTP. Upstream failures become
// 502, or 504 when the per-call deadline ran out.
func errorStatus(err error) (int, string) {
	stage := ""
	var st staged
	if errors.As(err, &st) {
		stage = st.ErrorStage()
	}

	var (
		cartInvalid     *cart.ValidationError
		checkoutInvalid *checkout.ValidationError
		cartBusy        *cart.StateConflict
		checkoutBusy    *checkout.StateConflict
	)
	switch {
	case errors.As(err, &cartInvalid), errors.As(err, &checkoutInvalid):
		return http.StatusBadRequest, stage
	case errors.As(err, &cartBusy), errors.As(err, &checkoutBusy):
		return http.StatusConflict, stage
	}

	if up, ok := commerce.AsUpstream(err); ok {
		switch {
		case up.Timeout:
			return http.StatusGatewayTimeout, stage
		case up.NotFound():
			return http.StatusNotFound, stage
		case up.Status == http.StatusUnauthorized, up.Status == http.StatusConflict:
			return up.Status, stage
		default:
			return http.StatusBadGateway, stage
		}
	}

	switch {
	case errors.Is(err, checkout.ErrPaymentDeclined):
		return http.StatusPaymentRequired, stage
	case errors.Is(err, checkout.ErrAmountMismatch), errors.Is(err, checkout.ErrPaymentIncomplete):
		return http.StatusBadGateway, stage
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, stage
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, stage
	}
	return http.StatusInternalServerError, stage
}

func writeError(c *gin.Context, err error, extra gin.H) {
	status, stage := errorStatus(err)
	body := gin.H{"error": err.Error()}
	if stage != "" {
		body["stage"] = stage
	}
	for k, v := range extra {
		body[k] = v
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "stage": StageRequest})
}
