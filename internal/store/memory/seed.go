package memory

import (
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

// PutUser inserts or replaces a user. A zero ID is assigned.
func (s *Store) PutUser(u store.User) store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.cur.nextID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.cur.users[u.ID] = u
	return u
}

func (s *Store) PutAddress(a store.Address) store.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.cur.nextID()
	}
	s.cur.addresses[a.ID] = a
	return a
}

func (s *Store) PutProduct(p store.Product) store.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.cur.nextID()
	}
	s.cur.products[p.ID] = p
	return p
}

// Product returns the committed state of a product.
func (s *Store) Product(id int64) (store.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.cur.products[id]
	return p, ok
}

// CartItems returns the committed cart lines of a user.
func (s *Store) CartItems(userID int64) []store.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cur.carts[userID]
	if !ok {
		return nil
	}
	return append([]store.CartItem(nil), s.cur.items[c.ID]...)
}

func (s *Store) Orders() []store.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Order, 0, len(s.cur.orders))
	for _, o := range s.cur.orders {
		out = append(out, o)
	}
	return out
}

func (s *Store) Payments() []store.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Payment, 0, len(s.cur.payments))
	for _, p := range s.cur.payments {
		out = append(out, p)
	}
	return out
}

// SeedDemo loads a verified user (id 1) with one address and a small catalog for local runs.
func SeedDemo(s *Store) {
	u := s.PutUser(store.User{ID: 1, Mobile: "9999999999", IsActive: true, IsMobileVerified: true})
	s.PutAddress(store.Address{
		ID: 100, UserID: u.ID, Name: "Home", Line1: "12 MG Road",
		City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "India",
	})
	s.PutProduct(store.Product{ID: 200, Name: "Cotton Tee", SKU: "TEE-001",
		Price: decimal.RequireFromString("499.00"), Quantity: 50, IsActive: true})
	s.PutProduct(store.Product{ID: 201, Name: "Denim Jacket", SKU: "JKT-001",
		Price: decimal.RequireFromString("2499.00"), Quantity: 10, IsActive: true})
	s.PutProduct(store.Product{ID: 202, Name: "Canvas Sneakers", SKU: "SNK-001",
		Price: decimal.RequireFromString("1299.50"), Quantity: 5, IsActive: true})
	s.mu.Lock()
	if s.cur.seq < 1000 {
		s.cur.seq = 1000
	}
	s.mu.Unlock()
}
