// Package events publishes domain events after a transaction commits.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeOrderPlaced      Type = "order.placed"
	TypePaymentSucceeded Type = "payment.succeeded"
	TypePaymentFailed    Type = "payment.failed"
)

// Event is the payload every sink carries.
type Event struct {
	EventID       string          `json:"event_id"`
	Type          Type            `json:"type"`
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Status        string          `json:"status"`
	ItemCount     int             `json:"item_count,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// New stamps an event id and time.
func New(t Type, orderID, userID int64) Event {
	return Event{
		EventID:    uuid.NewString(),
		Type:       t,
		OrderID:    orderID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
