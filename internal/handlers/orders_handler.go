package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/auth"
	"github.com/imrishuroy/go-checkout-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-checkout-orderflow/internal/logging"
	"github.com/imrishuroy/go-checkout-orderflow/internal/orders"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
	"github.com/imrishuroy/go-checkout-orderflow/internal/validation"
)

const idempotencyHeader = "Idempotency-Key"

func (h *handler) createOrder(c *gin.Context) {
	ctx := orders.WithRequestID(c.Request.Context(), c.GetString(logging.RequestIDKey))

	// Bind + validate request
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		// BindAndValidate already wrote a 400
		return
	}
	user := auth.User(c)

	// Optional idempotency key, scoped per user
	var idempKey string
	if k := c.GetHeader(idempotencyHeader); k != "" && h.cfg.Idempotency != nil {
		idempKey = fmt.Sprintf("user#%d#%s", user.ID, k)
		decision, rec, err := h.cfg.Idempotency.Acquire(ctx, idempKey, fingerprint(req))
		if err != nil {
			h.writeError(c, err)
			return
		}
		switch decision {
		case idempotency.Replay:
			replay(c, rec)
			return
		case idempotency.InFlight:
			body := gin.H{"message": "request already in progress"}
			if rec != nil && rec.OrderID != 0 {
				body["order_id"] = rec.OrderID
			}
			c.JSON(http.StatusAccepted, body)
			return
		}
	}

	placed, err := h.cfg.Orders.CreateOrder(ctx, user, req.AddressID, store.PaymentMethod(req.PaymentMethod))
	if err != nil {
		if idempKey != "" {
			h.settleKeyOnError(ctx, idempKey, err)
		}
		h.writeError(c, err)
		return
	}

	payload, err := json.Marshal(placed)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if idempKey != "" {
		if err := h.cfg.Idempotency.MarkDone(context.WithoutCancel(ctx), idempKey, placed.OrderID, string(payload), http.StatusCreated); err != nil {
			// the order exists; a retry with this key will see IN_PROGRESS until the record expires
			h.logger.Error("failed to mark idempotency key done",
				zap.Int64("order_id", placed.OrderID),
				zap.Error(err))
		}
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", payload)
}

// settleKeyOnError stores client errors so retries replay them, and frees the key after server
// errors so a retry can run again.
func (h *handler) settleKeyOnError(ctx context.Context, key string, cause error) {
	ctx = context.WithoutCancel(ctx)
	status, body := classify(cause)

	var err error
	if status >= http.StatusInternalServerError {
		err = h.cfg.Idempotency.MarkFailed(ctx, key, cause.Error())
	} else {
		payload, _ := json.Marshal(body)
		err = h.cfg.Idempotency.MarkDone(ctx, key, 0, string(payload), status)
	}
	if err != nil {
		h.logger.Error("failed to settle idempotency key", zap.Error(err))
	}
}

func replay(c *gin.Context, rec *idempotency.IdempotencyRecord) {
	if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID})
}

func fingerprint(req validation.CreateOrderRequest) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", req.AddressID, req.PaymentMethod)))
	return hex.EncodeToString(sum[:])
}

func (h *handler) listOrders(c *gin.Context) {
	var q validation.ListOrdersQuery
	if err := validation.BindQueryAndValidate(c, &q, h.validate); err != nil {
		return
	}
	page, err := h.cfg.Orders.ListOrders(c.Request.Context(), auth.User(c).ID, q.Page, q.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handler) getOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, orders.ErrOrderNotFound)
		return
	}
	d, err := h.cfg.Orders.GetOrder(c.Request.Context(), auth.User(c).ID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
