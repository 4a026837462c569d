// Package payments opens sessions with payment gateways and reconciles their webhooks into
// order and payment state.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrGateway           = errors.New("payment gateway error")
	ErrMethodUnavailable = errors.New("payment method not available")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrMalformedPayload  = errors.New("malformed webhook payload")
	ErrPaymentNotFound   = errors.New("payment not found")
)

type SessionRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	OrderID     int64
	UserID      int64
}

// Session is what the client needs to complete payment out of band.
type Session struct {
	Gateway       string
	RemoteOrderID string
	Key           string // publishable key handed to the client
	ClientSecret  string
}

// Gateway opens payment sessions. Webhook signatures are checked by the Reconciler, which holds
// the webhook secrets.
type Gateway interface {
	Name() string
	OpenSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// MinorUnits converts an amount to the currency's minor unit, truncating.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// VerifySignature checks a hex HMAC-SHA256 of rawBody under secret in constant time.
func VerifySignature(rawBody []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign returns the hex HMAC-SHA256 of rawBody under secret.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
