package payments

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/events"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

// Outcome is how a verified webhook was handled. Every outcome is acknowledged with 200.
type Outcome string

const (
	Applied   Outcome = "applied"
	Duplicate Outcome = "duplicate"
	Ignored   Outcome = "ignored"
)

// Razorpay webhook envelope; only the fields reconciliation reads.
type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				Amount           int64  `json:"amount"`
				Currency         string `json:"currency"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type ReconcilerConfig struct {
	RazorpayWebhookSecret string
	StripeWebhookSecret   string
	Currency              string
}

type Reconciler struct {
	store  store.Store
	cfg    ReconcilerConfig
	hooks  events.Hooks
	logger *zap.Logger
}

func NewReconciler(s store.Store, cfg ReconcilerConfig, logger *zap.Logger, hooks ...events.Hook) *Reconciler {
	return &Reconciler{store: s, cfg: cfg, hooks: hooks, logger: logger}
}

// transition is one verified gateway notification reduced to what the state machine needs.
type transition struct {
	gateway         string
	eventType       string
	remotePaymentID string
	remoteOrderID   string
	target          store.PaymentStatus
	signature       string
	amountMinor     int64
	reason          string
}

// HandleRazorpayWebhook verifies rawBody against signature and applies payment.captured or
// payment.failed. rawBody must be the exact bytes received.
func (r *Reconciler) HandleRazorpayWebhook(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	if !VerifySignature(rawBody, signature, r.cfg.RazorpayWebhookSecret) {
		r.logger.Warn("webhook signature rejected",
			zap.String("gateway", "razorpay"),
			zap.Int("body_bytes", len(rawBody)),
			zap.Bool("signature_present", signature != ""))
		return "", ErrInvalidSignature
	}

	var ev razorpayEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var target store.PaymentStatus
	switch ev.Event {
	case "payment.captured":
		target = store.PaymentStatusSuccess
	case "payment.failed":
		target = store.PaymentStatusFailed
	default:
		r.logger.Info("webhook event ignored", zap.String("gateway", "razorpay"), zap.String("event", ev.Event))
		return Ignored, nil
	}

	if ev.Payload.Payment == nil {
		return "", fmt.Errorf("%w: missing payment entity", ErrMalformedPayload)
	}
	ent := ev.Payload.Payment.Entity
	if ent.ID == "" && ent.OrderID == "" {
		return "", fmt.Errorf("%w: payment entity without ids", ErrMalformedPayload)
	}

	return r.apply(ctx, transition{
		gateway:         "razorpay",
		eventType:       ev.Event,
		remotePaymentID: ent.ID,
		remoteOrderID:   ent.OrderID,
		target:          target,
		signature:       signature,
		amountMinor:     ent.Amount,
		reason:          ent.ErrorDescription,
	})
}

// HandleStripeWebhook verifies a Stripe-Signature header and applies payment_intent.succeeded
// or payment_intent.payment_failed.
func (r *Reconciler) HandleStripeWebhook(ctx context.Context, rawBody []byte, header string) (Outcome, error) {
	ev, err := constructEvent(rawBody, header, r.cfg.StripeWebhookSecret)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			r.logger.Warn("webhook signature rejected",
				zap.String("gateway", "stripe"),
				zap.Int("body_bytes", len(rawBody)),
				zap.Error(err))
		}
		return "", err
	}

	var target store.PaymentStatus
	switch ev.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		target = store.PaymentStatusSuccess
	case stripe.EventTypePaymentIntentPaymentFailed:
		target = store.PaymentStatusFailed
	default:
		r.logger.Info("webhook event ignored", zap.String("gateway", "stripe"), zap.String("event", string(ev.Type)))
		return Ignored, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return "", fmt.Errorf("%w: missing payment intent", ErrMalformedPayload)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if pi.ID == "" {
		return "", fmt.Errorf("%w: payment intent without id", ErrMalformedPayload)
	}

	t := transition{
		gateway:         "stripe",
		eventType:       string(ev.Type),
		remotePaymentID: pi.ID,
		remoteOrderID:   pi.ID,
		target:          target,
		amountMinor:     pi.Amount,
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		t.remotePaymentID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		t.reason = pi.LastPaymentError.Msg
	}
	return r.apply(ctx, t)
}

func (r *Reconciler) apply(ctx context.Context, t transition) (Outcome, error) {
	outcome := Applied
	var settled *store.Order
	var pay *store.Payment

	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		outcome = Applied
		p, o, err := tx.LockPaymentByRemoteID(ctx, t.remotePaymentID, t.remoteOrderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}

		if p.Status == t.target {
			outcome = Duplicate
			return nil
		}
		if p.Status == store.PaymentStatusFailed && t.target == store.PaymentStatusSuccess {
			// money moved on an order that already released its stock; needs a refund or a manual repair
			r.logger.Error("capture received for failed payment",
				zap.String("gateway", t.gateway),
				zap.Int64("order_id", o.ID),
				zap.String("remote_order_id", t.remoteOrderID),
				zap.String("remote_payment_id", t.remotePaymentID),
				zap.String("failed_payment_id", p.PaymentID))
			outcome = Ignored
			return nil
		}
		if p.Status != store.PaymentStatusPending {
			r.logger.Warn("webhook contradicts settled payment",
				zap.String("gateway", t.gateway),
				zap.String("event", t.eventType),
				zap.Int64("order_id", o.ID),
				zap.String("payment_status", string(p.Status)))
			outcome = Ignored
			return nil
		}
		if t.amountMinor != 0 && t.amountMinor != MinorUnits(p.Amount) {
			r.logger.Warn("webhook amount differs from payment",
				zap.Int64("order_id", o.ID),
				zap.Int64("webhook_amount", t.amountMinor),
				zap.Int64("expected_amount", MinorUnits(p.Amount)))
		}

		err = tx.TransitionPayment(ctx, p.ID, store.PaymentStatusPending, t.target, t.remotePaymentID)
		if errors.Is(err, store.ErrStatusMismatch) {
			outcome = Duplicate
			return nil
		}
		if err != nil {
			return err
		}

		if t.target == store.PaymentStatusSuccess {
			err = tx.SettleOrder(ctx, o.ID, store.OrderStatusPaid, true, t.remotePaymentID, t.signature)
		} else {
			err = r.fail(ctx, tx, o, t)
		}
		if err != nil {
			return err
		}

		p.Status = t.target
		pay, settled = p, o
		return nil
	})
	if err != nil {
		return "", err
	}

	if outcome != Applied {
		r.logger.Info("webhook acknowledged without change",
			zap.String("gateway", t.gateway),
			zap.String("event", t.eventType),
			zap.String("outcome", string(outcome)))
		return outcome, nil
	}

	r.logger.Info("payment reconciled",
		zap.String("gateway", t.gateway),
		zap.String("event", t.eventType),
		zap.Int64("order_id", settled.ID),
		zap.String("payment_status", string(t.target)))

	et := events.TypePaymentSucceeded
	status := string(store.OrderStatusPaid)
	if t.target == store.PaymentStatusFailed {
		et, status = events.TypePaymentFailed, string(store.OrderStatusFailed)
	}
	e := events.New(et, settled.ID, settled.UserID)
	e.PaymentMethod = string(pay.PaymentMethod)
	e.Amount = pay.Amount
	e.Currency = r.cfg.Currency
	e.Status = status
	r.hooks.Run(context.WithoutCancel(ctx), r.logger, e)
	return Applied, nil
}

// fail marks the order FAILED and returns its reserved stock.
func (r *Reconciler) fail(ctx context.Context, tx store.Tx, o *store.Order, t transition) error {
	if err := tx.SettleOrder(ctx, o.ID, store.OrderStatusFailed, false, t.remotePaymentID, ""); err != nil {
		return err
	}
	if !o.Status.AwaitingPayment() {
		return nil
	}
	items, err := tx.ListOrderItems(ctx, o.ID)
	if err != nil {
		return err
	}
	// same lock order as checkout
	slices.SortFunc(items, func(a, b store.OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	for _, it := range items {
		if err := tx.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("release stock for product %d: %w", it.ProductID, err)
		}
	}
	if t.reason != "" {
		r.logger.Info("payment failed", zap.Int64("order_id", o.ID), zap.String("reason", t.reason))
	}
	return nil
}
