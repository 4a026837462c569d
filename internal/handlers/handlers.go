package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/cart"
	"github.com/imrishuroy/go-checkout-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-checkout-orderflow/internal/orders"
	"github.com/imrishuroy/go-checkout-orderflow/internal/payments"
	"github.com/imrishuroy/go-checkout-orderflow/internal/validation"
)

// IdempotencyStore is the subset of *idempotency.Store the order handler uses.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key, fingerprint string) (idempotency.Decision, *idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, orderID int64, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Cart        *cart.Service
	Orders      *orders.Service
	Reconciler  *payments.Reconciler
	Idempotency IdempotencyStore // nil disables Idempotency-Key handling
	Auth        gin.HandlerFunc
	Logger      *zap.Logger
}

type handler struct {
	cfg      HandlerConfig
	validate *validatorv10.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers every API route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &handler{cfg: cfg, validate: validation.New(), logger: cfg.Logger}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	authed := r.Group("/", cfg.Auth)
	authed.GET("/cart", h.getCart)
	authed.POST("/cart/items", h.addCartItem)
	authed.PATCH("/cart/items/:product_id", h.updateCartItem)
	authed.POST("/cart/merge", h.mergeCart)

	authed.POST("/orders", h.createOrder)
	authed.GET("/orders", h.listOrders)
	authed.GET("/orders/:id", h.getOrder)

	// gateways authenticate with signatures, not bearer tokens
	r.POST("/payments/webhook", h.razorpayWebhook)
	r.POST("/payments/stripe/webhook", h.stripeWebhook)
}
