package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-checkout-orderflow/internal/payments"
)

const maxWebhookBytes = int64(65536)

func (h *handler) razorpayWebhook(c *gin.Context) {
	raw, ok := readRaw(c)
	if !ok {
		return
	}
	_, err := h.cfg.Reconciler.HandleRazorpayWebhook(c.Request.Context(), raw, c.GetHeader("X-Razorpay-Signature"))
	h.ack(c, err)
}

func (h *handler) stripeWebhook(c *gin.Context) {
	raw, ok := readRaw(c)
	if !ok {
		return
	}
	_, err := h.cfg.Reconciler.HandleStripeWebhook(c.Request.Context(), raw, c.GetHeader("Stripe-Signature"))
	h.ack(c, err)
}

func (h *handler) ack(c *gin.Context, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readRaw reads the exact body bytes; signatures are computed over them, not over re-encoded JSON.
func readRaw(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "malformed_payload",
			"message": "could not read request body",
		})
		return nil, false
	}
	if len(raw) == 0 {
		_ = c.Error(payments.ErrMalformedPayload)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "malformed_payload",
			"message": "empty request body",
		})
		return nil, false
	}
	return raw, true
}
