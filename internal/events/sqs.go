package events

import (
	"context"
	"fmt"
	"strconv"
)

// MessageSender is satisfied by *aws.Publisher.
type MessageSender interface {
	SendMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

type SQSPublisher struct {
	sender MessageSender
}

func NewSQSPublisher(sender MessageSender) *SQSPublisher {
	return &SQSPublisher{sender: sender}
}

func (p *SQSPublisher) Publish(ctx context.Context, e Event) error {
	body, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	attrs := map[string]string{
		"event_type": string(e.Type),
		"event_id":   e.EventID,
		"order_id":   strconv.FormatInt(e.OrderID, 10),
		"request_id": e.RequestID,
	}
	if err := p.sender.SendMessage(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *SQSPublisher) Close() error { return nil }
