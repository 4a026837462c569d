package validation

import "strings"

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	AddressID     int64  `json:"address_id" validate:"required,gt=0"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=COD RAZORPAY STRIPE"`
}

func (r *CreateOrderRequest) Normalize() {
	r.PaymentMethod = strings.ToUpper(strings.TrimSpace(r.PaymentMethod))
}

// AddCartItemRequest is the payload for POST /cart/items
type AddCartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1,max=100"`
}

// UpdateCartItemRequest is the payload for PATCH /cart/items/:product_id. Zero removes the line.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=100"`
}

type MergeItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1,max=100"`
}

// MergeCartRequest carries a cart built before login.
type MergeCartRequest struct {
	Items []MergeItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// ListOrdersQuery binds ?page=&limit= on GET /orders
type ListOrdersQuery struct {
	Page  int `form:"page" validate:"min=0"`
	Limit int `form:"limit" validate:"min=0,max=100"`
}
