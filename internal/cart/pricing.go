package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = store.ErrInsufficientStock
	ErrProductNotFound   = errors.New("product not found")
	ErrCartNotFound      = errors.New("cart not found")
)

// Line is one priced cart line.
type Line struct {
	Product  store.Product
	Quantity int
	Subtotal decimal.Decimal
}

type Summary struct {
	Lines []Line
	Total decimal.Decimal
}

// Price totals the items at each product's current price.
func Price(items []store.CartItem) (Summary, error) {
	if len(items) == 0 {
		return Summary{}, ErrEmptyCart
	}
	s := Summary{Lines: make([]Line, 0, len(items)), Total: decimal.Zero}
	for _, it := range items {
		sub := it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		s.Lines = append(s.Lines, Line{Product: it.Product, Quantity: it.Quantity, Subtotal: sub})
		s.Total = s.Total.Add(sub)
	}
	return s, nil
}

// InsufficientStockError reports a request that exceeds available stock.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Check admits requested units of p, or reports how many are available.
func Check(p store.Product, requested int) (int, error) {
	if p.Quantity >= requested {
		return requested, nil
	}
	return 0, &InsufficientStockError{ProductID: p.ID, Requested: requested, Available: p.Quantity}
}
