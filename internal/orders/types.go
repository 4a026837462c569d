package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-checkout-orderflow/internal/auth"
	"github.com/imrishuroy/go-checkout-orderflow/internal/cart"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

var (
	ErrForbidden          = auth.ErrForbidden
	ErrAddressNotFound    = errors.New("address not found")
	ErrCartNotFound       = cart.ErrCartNotFound
	ErrEmptyCart          = cart.ErrEmptyCart
	ErrOrderNotFound      = errors.New("order not found")
	ErrProductUnavailable = errors.New("product no longer available")
)

const (
	PaymentTypeOnline = "ONLINE"
	PaymentTypeCOD    = "COD"
)

// Placed is returned to the client after checkout.
type Placed struct {
	OrderID        int64           `json:"order_id"`
	PaymentType    string          `json:"payment_type"`
	Gateway        string          `json:"gateway,omitempty"`
	GatewayOrderID string          `json:"gateway_order_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	AmountMinor    int64           `json:"amount_minor,omitempty"`
	Currency       string          `json:"currency"`
	Key            string          `json:"key,omitempty"`
	ClientSecret   string          `json:"client_secret,omitempty"`
	Message        string          `json:"message,omitempty"`
}

type Summary struct {
	ID            int64               `json:"id"`
	Status        store.OrderStatus   `json:"status"`
	PaymentMethod store.PaymentMethod `json:"payment_method"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	ItemCount     int                 `json:"item_count"`
	CreatedAt     time.Time           `json:"created_at"`
}

type Page struct {
	Count   int       `json:"count"`
	Page    int       `json:"page"`
	Limit   int       `json:"limit"`
	Results []Summary `json:"results"`
}

type Item struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type PaymentView struct {
	Method    store.PaymentMethod `json:"payment_method"`
	Amount    decimal.Decimal     `json:"amount"`
	Status    store.PaymentStatus `json:"status"`
	PaymentID string              `json:"payment_id,omitempty"`
}

type Detail struct {
	ID              int64               `json:"id"`
	Status          store.OrderStatus   `json:"status"`
	PaymentMethod   store.PaymentMethod `json:"payment_method"`
	TotalPrice      decimal.Decimal     `json:"total_price"`
	IsPaid          bool                `json:"is_paid"`
	GatewayOrderID  string              `json:"gateway_order_id,omitempty"`
	ShippingAddress store.Address       `json:"shipping_address"`
	Items           []Item              `json:"items"`
	Payment         *PaymentView        `json:"payment,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toDetail(d *store.OrderDetail) *Detail {
	out := &Detail{
		ID:              d.Order.ID,
		Status:          d.Order.Status,
		PaymentMethod:   d.Order.PaymentMethod,
		TotalPrice:      d.Order.TotalPrice,
		IsPaid:          d.Order.IsPaid,
		GatewayOrderID:  d.Order.GatewayOrderID,
		ShippingAddress: d.Address,
		Items:           make([]Item, 0, len(d.Items)),
		CreatedAt:       d.Order.CreatedAt,
		UpdatedAt:       d.Order.UpdatedAt,
	}
	for _, it := range d.Items {
		out.Items = append(out.Items, Item{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	if d.Payment != nil {
		out.Payment = &PaymentView{
			Method:    d.Payment.PaymentMethod,
			Amount:    d.Payment.Amount,
			Status:    d.Payment.Status,
			PaymentID: d.Payment.PaymentID,
		}
	}
	return out
}
