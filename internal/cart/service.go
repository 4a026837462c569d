package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

// View is a cart as returned to its owner.
type View struct {
	CartID int64
	Lines  []Line
	Total  decimal.Decimal
}

// MergeLine is one line of a cart built before login.
type MergeLine struct {
	ProductID int64
	Quantity  int
}

// Warning describes a merged line that was clamped or dropped.
type Warning struct {
	ProductID int64  `json:"product_id"`
	Requested int    `json:"requested"`
	Accepted  int    `json:"accepted"`
	Reason    string `json:"reason"`
}

type Service struct {
	store  store.Store
	logger *zap.Logger
}

func NewService(s store.Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID int64) (*View, error) {
	var v *View
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.EnsureCart(ctx, userID)
		if err != nil {
			return err
		}
		v, err = view(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return v, nil
}

// AddItem adds qty units to the cart, on top of any quantity already there.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, qty int) (*View, error) {
	return s.mutate(ctx, userID, func(tx store.Tx, cartID int64, current map[int64]int) error {
		p, err := activeProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		want, err := Check(*p, current[productID]+qty)
		if err != nil {
			return err
		}
		return tx.SetCartItem(ctx, cartID, productID, want)
	})
}

// UpdateItem sets the line quantity; qty <= 0 removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID int64, qty int) (*View, error) {
	return s.mutate(ctx, userID, func(tx store.Tx, cartID int64, current map[int64]int) error {
		if qty <= 0 {
			if _, ok := current[productID]; !ok {
				return ErrProductNotFound
			}
			return tx.DeleteCartItem(ctx, cartID, productID)
		}
		p, err := activeProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if _, err := Check(*p, qty); err != nil {
			return err
		}
		return tx.SetCartItem(ctx, cartID, productID, qty)
	})
}

// Merge folds a pre-login cart into the user's cart. Quantities add to existing lines and are
// clamped to available stock; unknown or sold-out products are skipped with a warning.
func (s *Service) Merge(ctx context.Context, userID int64, lines []MergeLine) (*View, []Warning, error) {
	var warnings []Warning
	v, err := s.mutate(ctx, userID, func(tx store.Tx, cartID int64, current map[int64]int) error {
		warnings = nil
		for _, l := range lines {
			if l.Quantity <= 0 {
				continue
			}
			p, err := activeProduct(ctx, tx, l.ProductID)
			if errors.Is(err, ErrProductNotFound) {
				warnings = append(warnings, Warning{ProductID: l.ProductID, Requested: l.Quantity, Reason: "product unavailable"})
				continue
			}
			if err != nil {
				return err
			}

			want := current[l.ProductID] + l.Quantity
			accepted, err := Check(*p, want)
			var ise *InsufficientStockError
			if errors.As(err, &ise) {
				accepted = ise.Available
				warnings = append(warnings, Warning{
					ProductID: l.ProductID,
					Requested: want,
					Accepted:  accepted,
					Reason:    "clamped to available stock",
				})
			}
			if accepted <= 0 {
				if _, ok := current[l.ProductID]; ok {
					if err := tx.DeleteCartItem(ctx, cartID, l.ProductID); err != nil {
						return err
					}
					delete(current, l.ProductID)
				}
				continue
			}
			if err := tx.SetCartItem(ctx, cartID, l.ProductID, accepted); err != nil {
				return err
			}
			current[l.ProductID] = accepted
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(warnings) > 0 {
		s.logger.Info("cart merge clamped lines", zap.Int64("user_id", userID), zap.Int("warnings", len(warnings)))
	}
	return v, warnings, nil
}

func (s *Service) mutate(ctx context.Context, userID int64, fn func(tx store.Tx, cartID int64, current map[int64]int) error) (*View, error) {
	var v *View
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.EnsureCart(ctx, userID)
		if err != nil {
			return err
		}
		items, err := tx.ListCartItems(ctx, c.ID)
		if err != nil {
			return err
		}
		current := make(map[int64]int, len(items))
		for _, it := range items {
			current[it.Product.ID] = it.Quantity
		}
		if err := fn(tx, c.ID, current); err != nil {
			return err
		}
		v, err = view(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func activeProduct(ctx context.Context, tx store.Tx, productID int64) (*store.Product, error) {
	p, err := tx.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func view(ctx context.Context, tx store.Tx, cartID int64) (*View, error) {
	items, err := tx.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	sum, err := Price(items)
	if errors.Is(err, ErrEmptyCart) {
		return &View{CartID: cartID, Lines: []Line{}, Total: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return &View{CartID: cartID, Lines: sum.Lines, Total: sum.Total}, nil
}
