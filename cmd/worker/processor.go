package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/aws"
	orderevents "github.com/imrishuroy/go-checkout-orderflow/internal/events"
	"github.com/imrishuroy/go-checkout-orderflow/internal/idempotency"
)

var errInFlight = errors.New("event is being processed by another worker")

// Processor turns order events from SQS into CloudWatch metrics, counting each event once.
type Processor struct {
	dedupe  Deduper
	metrics MetricsSink
	logger  *zap.Logger
}

func NewProcessor(dedupe Deduper, metrics MetricsSink, logger *zap.Logger) *Processor {
	return &Processor{dedupe: dedupe, metrics: metrics, logger: logger}
}

// Handle processes a batch and reports the messages that should be redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error",
				zap.String("message_id", rec.MessageId),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	e, err := orderevents.Unmarshal([]byte(rec.Body))
	if err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if e.EventID == "" {
		return fmt.Errorf("message %s has no event_id", rec.MessageId)
	}

	log := p.logger.With(
		zap.String("event_id", e.EventID),
		zap.String("event_type", string(e.Type)),
		zap.Int64("order_id", e.OrderID),
		zap.String("request_id", e.RequestID))

	key := "event#" + e.EventID
	decision, _, err := p.dedupe.Acquire(ctx, key, string(e.Type))
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	switch decision {
	case idempotency.Replay:
		log.Info("duplicate event skipped")
		return nil
	case idempotency.InFlight:
		return errInFlight
	}

	data := datums(e)
	if len(data) == 0 {
		log.Warn("no metrics for event type")
	}
	if err := p.metrics.Emit(ctx, data); err != nil {
		if mErr := p.dedupe.MarkFailed(ctx, key, err.Error()); mErr != nil {
			log.Error("failed to mark event failed", zap.Error(mErr))
		}
		return fmt.Errorf("emit metrics: %w", err)
	}

	if err := p.dedupe.MarkDone(ctx, key, e.OrderID, `{"status":"counted"}`, http.StatusOK); err != nil {
		return fmt.Errorf("failed to update idempotency: %w", err)
	}
	log.Info("event counted", zap.Int("metrics", len(data)))
	return nil
}

// datums maps an event to the metric observations it contributes.
func datums(e orderevents.Event) []aws.Datum {
	dims := map[string]string{"PaymentMethod": e.PaymentMethod}
	amount := e.Amount.InexactFloat64()

	count := func(name string, v float64) aws.Datum {
		return aws.Datum{Name: name, Value: v, Unit: cwtypes.StandardUnitCount, Dimensions: dims, Timestamp: e.OccurredAt}
	}
	value := func(name string) aws.Datum {
		return aws.Datum{
			Name:       name,
			Value:      amount,
			Unit:       cwtypes.StandardUnitNone,
			Dimensions: map[string]string{"PaymentMethod": e.PaymentMethod, "Currency": e.Currency},
			Timestamp:  e.OccurredAt,
		}
	}

	switch e.Type {
	case orderevents.TypeOrderPlaced:
		return []aws.Datum{
			count(MetricOrdersPlaced, 1),
			value(MetricOrderValue),
			count(MetricItemsSold, float64(e.ItemCount)),
		}
	case orderevents.TypePaymentSucceeded:
		return []aws.Datum{count(MetricPaymentsSucceeded, 1), value(MetricRevenueCaptured)}
	case orderevents.TypePaymentFailed:
		return []aws.Datum{count(MetricPaymentsFailed, 1)}
	default:
		return nil
	}
}
