package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"
)

type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Stripe struct {
	intents        intentCreator
	publishableKey string
}

func NewStripe(secretKey, publishableKey string) *Stripe {
	return &Stripe{
		intents:        &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		publishableKey: publishableKey,
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) OpenSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	params.AddMetadata("user_id", strconv.FormatInt(req.UserID, 10))
	params.AddMetadata("receipt", req.Receipt)
	params.SetIdempotencyKey(req.Receipt)

	pi, err := s.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe payment intent: %v", ErrGateway, err)
	}
	return &Session{
		Gateway:       s.Name(),
		RemoteOrderID: pi.ID,
		Key:           s.publishableKey,
		ClientSecret:  pi.ClientSecret,
	}, nil
}

// constructEvent verifies and decodes a Stripe webhook delivery.
func constructEvent(rawBody []byte, header, secret string) (stripe.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(rawBody, header, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err == nil {
		return ev, nil
	}
	for _, sigErr := range []error{webhook.ErrNotSigned, webhook.ErrInvalidHeader,
		webhook.ErrNoValidSignature, webhook.ErrTooOld} {
		if errors.Is(err, sigErr) {
			return ev, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}
	return ev, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
}
