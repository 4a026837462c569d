package payments

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// orderCreator matches the razorpay-go Order resource.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Razorpay struct {
	orders orderCreator
	keyID  string
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return &Razorpay{orders: client.Order, keyID: keyID}
}

func (r *Razorpay) Name() string { return "razorpay" }

// OpenSession creates a Razorpay order. The SDK is not context aware, so the call is abandoned
// when ctx ends first.
func (r *Razorpay) OpenSession(ctx context.Context, req SessionRequest) (*Session, error) {
	data := map[string]interface{}{
		"amount":          req.AmountMinor,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
		"notes": map[string]interface{}{
			"order_id": req.OrderID,
			"user_id":  req.UserID,
		},
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := r.orders.Create(data, nil)
		done <- result{body, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: razorpay create order: %v", ErrGateway, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: razorpay create order: %v", ErrGateway, res.err)
		}
		id, _ := res.body["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("%w: razorpay order without id", ErrGateway)
		}
		return &Session{Gateway: r.Name(), RemoteOrderID: id, Key: r.keyID}, nil
	}
}
