// Package postgres implements store.Store on PostgreSQL through database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/imrishuroy/go-checkout-orderflow/internal/store"
)

// Open connects and pings the database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

// Tx is a single database transaction.
type Tx struct {
	tx *sql.Tx
}

var _ store.Tx = (*Tx)(nil)

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

func (t *Tx) GetUser(ctx context.Context, userID int64) (*store.User, error) {
	var u store.User
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, mobile, is_staff, is_active, is_mobile_verified, created_at
		FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Mobile, &u.IsStaff, &u.IsActive, &u.IsMobileVerified, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (t *Tx) GetAddress(ctx context.Context, userID, addressID int64) (*store.Address, error) {
	var a store.Address
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, name, line1, line2, city, state, postal_code, country, phone, created_at
		FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &a.Line1, &a.Line2, &a.City, &a.State,
			&a.PostalCode, &a.Country, &a.Phone, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, "address")
	}
	return &a, nil
}

func (t *Tx) GetProduct(ctx context.Context, productID int64) (*store.Product, error) {
	var p store.Product
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, sku, price, quantity, is_active
		FROM products WHERE id = $1`, productID).
		Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Quantity, &p.IsActive)
	if err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

func (t *Tx) LockCart(ctx context.Context, userID int64) (*store.Cart, error) {
	var c store.Cart
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts WHERE user_id = $1
		FOR UPDATE`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "cart")
	}
	return &c, nil
}

func (t *Tx) EnsureCart(ctx context.Context, userID int64) (*store.Cart, error) {
	// ON CONFLICT keeps two first requests from racing on the unique user_id.
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO carts (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return t.LockCart(ctx, userID)
}

func (t *Tx) ListCartItems(ctx context.Context, cartID int64) ([]store.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.quantity,
		       p.id, p.name, p.sku, p.price, p.quantity, p.is_active
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []store.CartItem
	for rows.Next() {
		var it store.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.Quantity,
			&it.Product.ID, &it.Product.Name, &it.Product.SKU, &it.Product.Price,
			&it.Product.Quantity, &it.Product.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}
	return items, nil
}

func (t *Tx) SetCartItem(ctx context.Context, cartID, productID int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		cartID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to set cart item: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("failed to touch cart: %w", err)
	}
	return nil
}

func (t *Tx) DeleteCartItem(ctx context.Context, cartID, productID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

func (t *Tx) ClearCart(ctx context.Context, cartID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (t *Tx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrInsufficientStock
	}
	return nil
}

func (t *Tx) IncrementStock(ctx context.Context, productID int64, qty int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return nil
}

func (t *Tx) InsertOrder(ctx context.Context, o *store.Order) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, shipping_address_id, status, payment_method, total_price,
		                    is_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		o.UserID, o.ShippingAddressID, o.Status, o.PaymentMethod, o.TotalPrice, o.IsPaid).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (t *Tx) InsertOrderItems(ctx context.Context, orderID int64, items []store.OrderItem) error {
	for i := range items {
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			orderID, items[i].ProductID, items[i].Quantity, items[i].Price).
			Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item %d: %w", items[i].ProductID, err)
		}
		items[i].OrderID = orderID
	}
	return nil
}

func (t *Tx) InsertPayment(ctx context.Context, p *store.Payment) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, user_id, payment_id, payment_method, amount, status,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		p.OrderID, p.UserID, p.PaymentID, p.PaymentMethod, p.Amount, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (t *Tx) SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET gateway_order_id = $2, updated_at = NOW() WHERE id = $1`,
		orderID, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("failed to set gateway order id: %w", err)
	}
	return nil
}

func (t *Tx) ListOrders(ctx context.Context, userID int64, limit, offset int) ([]store.OrderSummary, int, error) {
	var total int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).
		Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT o.id, o.status, o.payment_method, o.total_price, o.created_at,
		       (SELECT COUNT(*) FROM order_items oi WHERE oi.order_id = o.id)
		FROM orders o
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	out := []store.OrderSummary{}
	for rows.Next() {
		var s store.OrderSummary
		if err := rows.Scan(&s.ID, &s.Status, &s.PaymentMethod, &s.TotalPrice, &s.CreatedAt,
			&s.ItemCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}
	return out, total, nil
}

const orderColumns = `id, user_id, shipping_address_id, status, payment_method, total_price,
	is_paid, gateway_order_id, gateway_payment_id, gateway_signature, created_at, updated_at`

func scanOrder(row *sql.Row, o *store.Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.ShippingAddressID, &o.Status, &o.PaymentMethod,
		&o.TotalPrice, &o.IsPaid, &o.GatewayOrderID, &o.GatewayPaymentID, &o.GatewaySignature,
		&o.CreatedAt, &o.UpdatedAt)
}

const paymentColumns = `id, order_id, user_id, payment_id, payment_method, amount, status,
	created_at, updated_at`

func scanPayment(row *sql.Row, p *store.Payment) error {
	return row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.PaymentID, &p.PaymentMethod, &p.Amount,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
}

func (t *Tx) GetOrderDetail(ctx context.Context, userID, orderID int64) (*store.OrderDetail, error) {
	var d store.OrderDetail
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID)
	if err := scanOrder(row, &d.Order); err != nil {
		return nil, notFound(err, "order")
	}

	items, err := t.ListOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	d.Items = items

	addr, err := t.GetAddress(ctx, userID, d.Order.ShippingAddressID)
	if err != nil {
		return nil, err
	}
	d.Address = *addr

	var p store.Payment
	row = t.tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	switch err := scanPayment(row, &p); {
	case err == nil:
		d.Payment = &p
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return &d, nil
}

func (t *Tx) ListOrderItems(ctx context.Context, orderID int64) ([]store.OrderItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []store.OrderItem{}
	for rows.Next() {
		var it store.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}
	return items, nil
}

func (t *Tx) LockPaymentByRemoteID(ctx context.Context, paymentID, gatewayOrderID string) (*store.Payment, *store.Order, error) {
	var p store.Payment
	err := sql.ErrNoRows
	if paymentID != "" {
		row := t.tx.QueryRowContext(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1 FOR UPDATE`, paymentID)
		err = scanPayment(row, &p)
	}
	if errors.Is(err, sql.ErrNoRows) && gatewayOrderID != "" {
		row := t.tx.QueryRowContext(ctx, `
			SELECT p.id, p.order_id, p.user_id, p.payment_id, p.payment_method, p.amount, p.status,
			       p.created_at, p.updated_at
			FROM payments p
			JOIN orders o ON o.id = p.order_id
			WHERE o.gateway_order_id = $1
			FOR UPDATE OF p`, gatewayOrderID)
		err = scanPayment(row, &p)
	}
	if err != nil {
		return nil, nil, notFound(err, "payment")
	}

	var o store.Order
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, p.OrderID)
	if err := scanOrder(row, &o); err != nil {
		return nil, nil, notFound(err, "order")
	}
	return &p, &o, nil
}

func (t *Tx) TransitionPayment(ctx context.Context, paymentID int64, from, to store.PaymentStatus, remotePaymentID string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $3,
		    payment_id = CASE WHEN $4 <> '' THEN $4 ELSE payment_id END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`, paymentID, from, to, remotePaymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrStatusMismatch
	}
	return nil
}

func (t *Tx) SettleOrder(ctx context.Context, orderID int64, status store.OrderStatus, isPaid bool, remotePaymentID, signature string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, is_paid = $3,
		    gateway_payment_id = CASE WHEN $4 <> '' THEN $4 ELSE gateway_payment_id END,
		    gateway_signature = CASE WHEN $5 <> '' THEN $5 ELSE gateway_signature END,
		    updated_at = NOW()
		WHERE id = $1`, orderID, status, isPaid, remotePaymentID, signature)
	if err != nil {
		return fmt.Errorf("failed to settle order: %w", err)
	}
	return nil
}
