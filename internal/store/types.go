package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// AwaitingPayment reports whether a payment webhook may still move the order.
func (s OrderStatus) AwaitingPayment() bool {
	return s == OrderStatusPending || s == OrderStatusPlaced
}

// PaymentMethod is how the customer settles an order.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodRazorpay PaymentMethod = "RAZORPAY"
	PaymentMethodStripe   PaymentMethod = "STRIPE"
)

// Online reports whether the method needs a remote gateway session.
func (m PaymentMethod) Online() bool {
	return m == PaymentMethodRazorpay || m == PaymentMethodStripe
}

// PaymentStatus is the settlement state of a payment. SUCCESS and FAILED are terminal.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

type User struct {
	ID               int64
	Mobile           string
	IsStaff          bool
	IsActive         bool
	IsMobileVerified bool
	CreatedAt        time.Time
}

type Address struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"-"`
	Name       string    `json:"name"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"-"`
}

type Product struct {
	ID       int64
	Name     string
	SKU      string
	Price    decimal.Decimal
	Quantity int // available stock
	IsActive bool
}

type Cart struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a cart line joined with the live product row.
type CartItem struct {
	ID       int64
	CartID   int64
	Product  Product
	Quantity int
}

type Order struct {
	ID                int64
	UserID            int64
	ShippingAddressID int64
	Status            OrderStatus
	PaymentMethod     PaymentMethod
	TotalPrice        decimal.Decimal
	IsPaid            bool
	GatewayOrderID    string
	GatewayPaymentID  string
	GatewaySignature  string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

type Payment struct {
	ID            int64
	OrderID       int64
	UserID        int64
	PaymentID     string
	PaymentMethod PaymentMethod
	Amount        decimal.Decimal
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderSummary is one row of an order listing.
type OrderSummary struct {
	ID            int64
	Status        OrderStatus
	PaymentMethod PaymentMethod
	TotalPrice    decimal.Decimal
	ItemCount     int
	CreatedAt     time.Time
}

// OrderDetail is an order with everything it owns.
type OrderDetail struct {
	Order   Order
	Items   []OrderItem
	Address Address
	Payment *Payment
}
