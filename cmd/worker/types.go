package main

import (
	"context"

	"github.com/imrishuroy/go-checkout-orderflow/internal/aws"
	"github.com/imrishuroy/go-checkout-orderflow/internal/idempotency"
)

// Metric names published per event type.
const (
	MetricOrdersPlaced      = "OrdersPlaced"
	MetricOrderValue        = "OrderValue"
	MetricItemsSold         = "ItemsSold"
	MetricPaymentsSucceeded = "PaymentsSucceeded"
	MetricRevenueCaptured   = "RevenueCaptured"
	MetricPaymentsFailed    = "PaymentsFailed"
)

// Deduper records which events were already counted. *idempotency.Store satisfies it.
type Deduper interface {
	Acquire(ctx context.Context, key, fingerprint string) (idempotency.Decision, *idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, orderID int64, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// MetricsSink is satisfied by *aws.MetricsEmitter.
type MetricsSink interface {
	Emit(ctx context.Context, data []aws.Datum) error
}
