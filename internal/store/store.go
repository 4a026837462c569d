// Package store defines the persistence contract shared by the cart, order and payment
// workflows. Every mutation happens inside WithTx so callers get all-or-nothing semantics.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStatusMismatch is returned by guarded transitions whose expected state no longer holds.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Store opens transactions.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit of work handed to WithTx callbacks. It must not be used after the callback
// returns.
type Tx interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
	// GetAddress is scoped to the owner; another user's address is ErrNotFound.
	GetAddress(ctx context.Context, userID, addressID int64) (*Address, error)
	GetProduct(ctx context.Context, productID int64) (*Product, error)

	// LockCart returns the user's cart holding a row lock until the transaction ends.
	LockCart(ctx context.Context, userID int64) (*Cart, error)
	// EnsureCart returns the locked cart, creating it when absent.
	EnsureCart(ctx context.Context, userID int64) (*Cart, error)
	ListCartItems(ctx context.Context, cartID int64) ([]CartItem, error)
	SetCartItem(ctx context.Context, cartID, productID int64, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, productID int64) error
	ClearCart(ctx context.Context, cartID int64) (int64, error)

	// DecrementStock subtracts qty only when enough stock remains, else ErrInsufficientStock.
	DecrementStock(ctx context.Context, productID int64, qty int) error
	IncrementStock(ctx context.Context, productID int64, qty int) error

	InsertOrder(ctx context.Context, o *Order) error
	InsertOrderItems(ctx context.Context, orderID int64, items []OrderItem) error
	InsertPayment(ctx context.Context, p *Payment) error
	SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error
	ListOrders(ctx context.Context, userID int64, limit, offset int) ([]OrderSummary, int, error)
	GetOrderDetail(ctx context.Context, userID, orderID int64) (*OrderDetail, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)

	// LockPaymentByRemoteID finds a payment by its external payment id or, failing that, by
	// its order's gateway order id, and locks it.
	LockPaymentByRemoteID(ctx context.Context, paymentID, gatewayOrderID string) (*Payment, *Order, error)
	// TransitionPayment moves a payment from -> to, recording the remote payment id.
	// ErrStatusMismatch when the payment is not in from.
	TransitionPayment(ctx context.Context, paymentID int64, from, to PaymentStatus, remotePaymentID string) error
	// SettleOrder records the payment outcome on the order.
	SettleOrder(ctx context.Context, orderID int64, status OrderStatus, isPaid bool, remotePaymentID, signature string) error
}
