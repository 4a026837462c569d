package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/auth"
	"github.com/imrishuroy/go-checkout-orderflow/internal/cart"
	"github.com/imrishuroy/go-checkout-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-checkout-orderflow/internal/logging"
	"github.com/imrishuroy/go-checkout-orderflow/internal/orders"
	"github.com/imrishuroy/go-checkout-orderflow/internal/payments"
)

type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{auth.ErrForbidden, apiError{http.StatusForbidden, "forbidden", "user is not allowed to place orders"}},
	{orders.ErrAddressNotFound, apiError{http.StatusNotFound, "address_not_found", "shipping address not found"}},
	{orders.ErrCartNotFound, apiError{http.StatusNotFound, "cart_not_found", "cart not found"}},
	{orders.ErrEmptyCart, apiError{http.StatusBadRequest, "empty_cart", "cart is empty"}},
	{orders.ErrOrderNotFound, apiError{http.StatusNotFound, "order_not_found", "order not found"}},
	{orders.ErrProductUnavailable, apiError{http.StatusBadRequest, "product_unavailable", "a product in the cart is no longer available"}},
	{cart.ErrProductNotFound, apiError{http.StatusNotFound, "product_not_found", "product not found"}},
	{payments.ErrMethodUnavailable, apiError{http.StatusBadRequest, "payment_method_unavailable", "payment method not available"}},
	{payments.ErrGateway, apiError{http.StatusInternalServerError, "payment_gateway_error", "could not start payment, please retry"}},
	{payments.ErrInvalidSignature, apiError{http.StatusBadRequest, "invalid_signature", "webhook signature verification failed"}},
	{payments.ErrMalformedPayload, apiError{http.StatusBadRequest, "malformed_payload", "webhook payload could not be read"}},
	{payments.ErrPaymentNotFound, apiError{http.StatusNotFound, "payment_not_found", "payment not found"}},
	{idempotency.ErrFingerprintMismatch, apiError{http.StatusConflict, "idempotency_key_reused", "Idempotency-Key was used with a different request"}},
}

// classify maps err to its HTTP form. Unknown errors are 500 with a generic body.
func classify(err error) (int, gin.H) {
	var ise *cart.InsufficientStockError
	if errors.As(err, &ise) {
		return http.StatusBadRequest, gin.H{
			"error":      "insufficient_stock",
			"message":    ise.Error(),
			"product_id": ise.ProductID,
			"requested":  ise.Requested,
			"available":  ise.Available,
		}
	}
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.status, gin.H{"error": e.code, "message": e.message}
		}
	}
	return http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"}
}

func (h *handler) writeError(c *gin.Context, err error) {
	status, body := classify(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(logging.RequestIDKey)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
