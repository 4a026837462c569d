// Package memory is an in-process store.Store. Transactions are serialised by a mutex and run
// against a copy of the data that replaces the original only on success.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

type data struct {
	seq       int64
	users     map[int64]store.User
	addresses map[int64]store.Address
	products  map[int64]store.Product
	carts     map[int64]store.Cart // by user id
	items     map[int64][]store.CartItem
	orders    map[int64]store.Order
	lines     map[int64][]store.OrderItem
	payments  map[int64]store.Payment // by order id
}

func newData() *data {
	return &data{
		users:     map[int64]store.User{},
		addresses: map[int64]store.Address{},
		products:  map[int64]store.Product{},
		carts:     map[int64]store.Cart{},
		items:     map[int64][]store.CartItem{},
		orders:    map[int64]store.Order{},
		lines:     map[int64][]store.OrderItem{},
		payments:  map[int64]store.Payment{},
	}
}

func (d *data) clone() *data {
	c := newData()
	c.seq = d.seq
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.addresses {
		c.addresses[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.carts {
		c.carts[k] = v
	}
	for k, v := range d.items {
		c.items[k] = append([]store.CartItem(nil), v...)
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.lines {
		c.lines[k] = append([]store.OrderItem(nil), v...)
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	return c
}

func (d *data) nextID() int64 {
	d.seq++
	return d.seq
}

type Store struct {
	mu  sync.Mutex
	cur *data
	now func() time.Time
}

func New() *Store {
	return &Store{cur: newData(), now: time.Now}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.cur.clone()
	tx := &Tx{d: work, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.cur = work
	return nil
}

// Tx operates on a private copy of the store's data.
type Tx struct {
	d   *data
	now func() time.Time
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) GetUser(_ context.Context, userID int64) (*store.User, error) {
	u, ok := t.d.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *Tx) GetAddress(_ context.Context, userID, addressID int64) (*store.Address, error) {
	a, ok := t.d.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *Tx) GetProduct(_ context.Context, productID int64) (*store.Product, error) {
	p, ok := t.d.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *Tx) LockCart(_ context.Context, userID int64) (*store.Cart, error) {
	c, ok := t.d.carts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (t *Tx) EnsureCart(ctx context.Context, userID int64) (*store.Cart, error) {
	if _, ok := t.d.carts[userID]; !ok {
		now := t.now()
		t.d.carts[userID] = store.Cart{ID: t.d.nextID(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	}
	return t.LockCart(ctx, userID)
}

func (t *Tx) ListCartItems(_ context.Context, cartID int64) ([]store.CartItem, error) {
	src := t.d.items[cartID]
	out := make([]store.CartItem, 0, len(src))
	for _, it := range src {
		it.Product = t.d.products[it.Product.ID]
		out = append(out, it)
	}
	return out, nil
}

func (t *Tx) SetCartItem(_ context.Context, cartID, productID int64, quantity int) error {
	items := t.d.items[cartID]
	for i := range items {
		if items[i].Product.ID == productID {
			items[i].Quantity = quantity
			return nil
		}
	}
	t.d.items[cartID] = append(items, store.CartItem{
		ID:       t.d.nextID(),
		CartID:   cartID,
		Product:  store.Product{ID: productID},
		Quantity: quantity,
	})
	return nil
}

func (t *Tx) DeleteCartItem(_ context.Context, cartID, productID int64) error {
	items := t.d.items[cartID]
	for i := range items {
		if items[i].Product.ID == productID {
			t.d.items[cartID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *Tx) ClearCart(_ context.Context, cartID int64) (int64, error) {
	n := int64(len(t.d.items[cartID]))
	delete(t.d.items, cartID)
	return n, nil
}

func (t *Tx) DecrementStock(_ context.Context, productID int64, qty int) error {
	p, ok := t.d.products[productID]
	if !ok || p.Quantity < qty {
		return store.ErrInsufficientStock
	}
	p.Quantity -= qty
	t.d.products[productID] = p
	return nil
}

func (t *Tx) IncrementStock(_ context.Context, productID int64, qty int) error {
	p, ok := t.d.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Quantity += qty
	t.d.products[productID] = p
	return nil
}

func (t *Tx) InsertOrder(_ context.Context, o *store.Order) error {
	now := t.now()
	o.ID = t.d.nextID()
	o.CreatedAt, o.UpdatedAt = now, now
	t.d.orders[o.ID] = *o
	return nil
}

func (t *Tx) InsertOrderItems(_ context.Context, orderID int64, items []store.OrderItem) error {
	for i := range items {
		items[i].ID = t.d.nextID()
		items[i].OrderID = orderID
		if p, ok := t.d.products[items[i].ProductID]; ok {
			items[i].ProductName = p.Name
		}
	}
	t.d.lines[orderID] = append(t.d.lines[orderID], items...)
	return nil
}

func (t *Tx) InsertPayment(_ context.Context, p *store.Payment) error {
	now := t.now()
	p.ID = t.d.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	t.d.payments[p.OrderID] = *p
	return nil
}

func (t *Tx) SetGatewayOrderID(_ context.Context, orderID int64, gatewayOrderID string) error {
	o, ok := t.d.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.GatewayOrderID = gatewayOrderID
	o.UpdatedAt = t.now()
	t.d.orders[orderID] = o
	return nil
}

func (t *Tx) ListOrders(_ context.Context, userID int64, limit, offset int) ([]store.OrderSummary, int, error) {
	var mine []store.Order
	for _, o := range t.d.orders {
		if o.UserID == userID {
			mine = append(mine, o)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.After(mine[j].CreatedAt)
		}
		return mine[i].ID > mine[j].ID
	})

	out := []store.OrderSummary{}
	for i := offset; i < len(mine) && len(out) < limit; i++ {
		o := mine[i]
		out = append(out, store.OrderSummary{
			ID:            o.ID,
			Status:        o.Status,
			PaymentMethod: o.PaymentMethod,
			TotalPrice:    o.TotalPrice,
			ItemCount:     len(t.d.lines[o.ID]),
			CreatedAt:     o.CreatedAt,
		})
	}
	return out, len(mine), nil
}

func (t *Tx) GetOrderDetail(ctx context.Context, userID, orderID int64) (*store.OrderDetail, error) {
	o, ok := t.d.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, store.ErrNotFound
	}
	items, _ := t.ListOrderItems(ctx, orderID)
	d := &store.OrderDetail{Order: o, Items: items, Address: t.d.addresses[o.ShippingAddressID]}
	if p, ok := t.d.payments[orderID]; ok {
		d.Payment = &p
	}
	return d, nil
}

func (t *Tx) ListOrderItems(_ context.Context, orderID int64) ([]store.OrderItem, error) {
	return append([]store.OrderItem{}, t.d.lines[orderID]...), nil
}

func (t *Tx) LockPaymentByRemoteID(_ context.Context, paymentID, gatewayOrderID string) (*store.Payment, *store.Order, error) {
	var found *store.Payment
	if paymentID != "" {
		for _, p := range t.d.payments {
			if p.PaymentID == paymentID {
				p := p
				found = &p
				break
			}
		}
	}
	if found == nil && gatewayOrderID != "" {
		for _, o := range t.d.orders {
			if o.GatewayOrderID == gatewayOrderID {
				if p, ok := t.d.payments[o.ID]; ok {
					found = &p
				}
				break
			}
		}
	}
	if found == nil {
		return nil, nil, store.ErrNotFound
	}
	o := t.d.orders[found.OrderID]
	return found, &o, nil
}

func (t *Tx) TransitionPayment(_ context.Context, paymentID int64, from, to store.PaymentStatus, remotePaymentID string) error {
	for orderID, p := range t.d.payments {
		if p.ID != paymentID {
			continue
		}
		if p.Status != from {
			return store.ErrStatusMismatch
		}
		p.Status = to
		if remotePaymentID != "" {
			p.PaymentID = remotePaymentID
		}
		p.UpdatedAt = t.now()
		t.d.payments[orderID] = p
		return nil
	}
	return store.ErrStatusMismatch
}

func (t *Tx) SettleOrder(_ context.Context, orderID int64, status store.OrderStatus, isPaid bool, remotePaymentID, signature string) error {
	o, ok := t.d.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	o.IsPaid = isPaid
	if remotePaymentID != "" {
		o.GatewayPaymentID = remotePaymentID
	}
	if signature != "" {
		o.GatewaySignature = signature
	}
	o.UpdatedAt = t.now()
	t.d.orders[orderID] = o
	return nil
}
