// Package orders turns a user's cart into an order and, for online payment methods, a payment
// gateway session. Everything up to and including the gateway call commits or rolls back as one.
package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-checkout-orderflow/internal/auth"
	"github.com/imrishuroy/go-checkout-orderflow/internal/cart"
	"github.com/imrishuroy/go-checkout-orderflow/internal/events"
	"github.com/imrishuroy/go-checkout-orderflow/internal/payments"
	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Config struct {
	Currency       string
	GatewayTimeout time.Duration
}

type Service struct {
	store    store.Store
	gateways map[store.PaymentMethod]payments.Gateway
	cfg      Config
	hooks    events.Hooks
	logger   *zap.Logger
}

func NewService(s store.Store, gateways map[store.PaymentMethod]payments.Gateway, cfg Config, logger *zap.Logger, hooks ...events.Hook) *Service {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{store: s, gateways: gateways, cfg: cfg, hooks: hooks, logger: logger}
}

// CreateOrder places an order from the user's cart.
func (s *Service) CreateOrder(ctx context.Context, user *store.User, addressID int64, method store.PaymentMethod) (*Placed, error) {
	if !auth.CanCheckout(user) {
		return nil, ErrForbidden
	}

	var gw payments.Gateway
	switch method {
	case store.PaymentMethodCOD:
	case store.PaymentMethodRazorpay, store.PaymentMethodStripe:
		gw = s.gateways[method]
		if gw == nil {
			return nil, fmt.Errorf("%w: %s", payments.ErrMethodUnavailable, method)
		}
	default:
		return nil, fmt.Errorf("%w: %q", payments.ErrMethodUnavailable, method)
	}

	var (
		placed    *Placed
		itemCount int
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		addr, err := tx.GetAddress(ctx, user.ID, addressID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrAddressNotFound
		}
		if err != nil {
			return err
		}

		c, err := tx.LockCart(ctx, user.ID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrCartNotFound
		}
		if err != nil {
			return err
		}
		items, err := tx.ListCartItems(ctx, c.ID)
		if err != nil {
			return err
		}
		sum, err := cart.Price(items)
		if err != nil {
			return err
		}

		// stock rows are locked in product id order so concurrent checkouts cannot deadlock
		for _, l := range byProductID(sum.Lines) {
			if !l.Product.IsActive {
				return fmt.Errorf("%w: %d", ErrProductUnavailable, l.Product.ID)
			}
			if _, err := cart.Check(l.Product, l.Quantity); err != nil {
				return err
			}
			err := tx.DecrementStock(ctx, l.Product.ID, l.Quantity)
			if errors.Is(err, store.ErrInsufficientStock) {
				return s.stockError(ctx, tx, l)
			}
			if err != nil {
				return err
			}
		}

		order := &store.Order{
			UserID:            user.ID,
			ShippingAddressID: addr.ID,
			Status:            store.OrderStatusPending,
			PaymentMethod:     method,
			TotalPrice:        sum.Total,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		lines := make([]store.OrderItem, 0, len(sum.Lines))
		for _, l := range sum.Lines {
			lines = append(lines, store.OrderItem{
				ProductID: l.Product.ID,
				Quantity:  l.Quantity,
				Price:     l.Product.Price,
			})
		}
		if err := tx.InsertOrderItems(ctx, order.ID, lines); err != nil {
			return err
		}
		if _, err := tx.ClearCart(ctx, c.ID); err != nil {
			return err
		}

		pay := &store.Payment{
			OrderID:       order.ID,
			UserID:        user.ID,
			PaymentMethod: method,
			Amount:        order.TotalPrice,
			Status:        store.PaymentStatusPending,
		}
		if err := tx.InsertPayment(ctx, pay); err != nil {
			return err
		}

		itemCount = len(lines)
		if gw == nil {
			placed = &Placed{
				OrderID:     order.ID,
				PaymentType: PaymentTypeCOD,
				Amount:      order.TotalPrice,
				Currency:    s.cfg.Currency,
				Message:     "Order placed successfully. Pay cash on delivery.",
			}
			return nil
		}

		placed, err = s.openSession(ctx, gw, order)
		if err != nil {
			return err
		}
		return tx.SetGatewayOrderID(ctx, order.ID, placed.GatewayOrderID)
	})
	if err != nil {
		if errors.Is(err, payments.ErrGateway) {
			s.logger.Error("gateway session failed, order rolled back",
				zap.Int64("user_id", user.ID),
				zap.String("payment_method", string(method)),
				zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("order placed",
		zap.Int64("order_id", placed.OrderID),
		zap.Int64("user_id", user.ID),
		zap.String("payment_method", string(method)),
		zap.String("total", placed.Amount.StringFixed(2)))

	e := events.New(events.TypeOrderPlaced, placed.OrderID, user.ID)
	e.PaymentMethod = string(method)
	e.Amount = placed.Amount
	e.Currency = s.cfg.Currency
	e.Status = string(store.OrderStatusPending)
	e.ItemCount = itemCount
	e.RequestID = requestID(ctx)
	// the order is committed; publish even if the caller has gone away
	s.hooks.Run(context.WithoutCancel(ctx), s.logger, e)

	return placed, nil
}

func byProductID(lines []cart.Line) []cart.Line {
	out := slices.Clone(lines)
	slices.SortFunc(out, func(a, b cart.Line) int { return cmp.Compare(a.Product.ID, b.Product.ID) })
	return out
}

func (s *Service) openSession(ctx context.Context, gw payments.Gateway, order *store.Order) (*Placed, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	minor := payments.MinorUnits(order.TotalPrice)
	sess, err := gw.OpenSession(gctx, payments.SessionRequest{
		AmountMinor: minor,
		Currency:    s.cfg.Currency,
		Receipt:     fmt.Sprintf("order_rcpt_%d", order.ID),
		OrderID:     order.ID,
		UserID:      order.UserID,
	})
	if err != nil {
		if !errors.Is(err, payments.ErrGateway) {
			err = fmt.Errorf("%w: %v", payments.ErrGateway, err)
		}
		return nil, err
	}
	return &Placed{
		OrderID:        order.ID,
		PaymentType:    PaymentTypeOnline,
		Gateway:        sess.Gateway,
		GatewayOrderID: sess.RemoteOrderID,
		Amount:         order.TotalPrice,
		AmountMinor:    minor,
		Currency:       s.cfg.Currency,
		Key:            sess.Key,
		ClientSecret:   sess.ClientSecret,
	}, nil
}

// stockError reports the stock seen inside the transaction for a failed decrement.
func (s *Service) stockError(ctx context.Context, tx store.Tx, l cart.Line) error {
	available := 0
	if p, err := tx.GetProduct(ctx, l.Product.ID); err == nil {
		available = p.Quantity
	}
	return &cart.InsufficientStockError{ProductID: l.Product.ID, Requested: l.Quantity, Available: available}
}

// ListOrders returns the user's orders newest first. page starts at 1.
func (s *Service) ListOrders(ctx context.Context, userID int64, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	out := &Page{Page: page, Limit: limit, Results: []Summary{}}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		rows, total, err := tx.ListOrders(ctx, userID, limit, (page-1)*limit)
		if err != nil {
			return err
		}
		out.Count = total
		for _, r := range rows {
			out.Results = append(out.Results, Summary{
				ID:            r.ID,
				Status:        r.Status,
				PaymentMethod: r.PaymentMethod,
				TotalPrice:    r.TotalPrice,
				ItemCount:     r.ItemCount,
				CreatedAt:     r.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// GetOrder returns one of the user's orders. Orders owned by someone else are not found.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*Detail, error) {
	var d *Detail
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		od, err := tx.GetOrderDetail(ctx, userID, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		d = toDetail(od)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

type requestIDKey struct{}

// WithRequestID tags ctx so events raised during the request carry its id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
