package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Order status lifecycle. PAID and CANCELED are terminal. FAILED is not: the
// shopper can retry the same payment intent, so a later success still lands.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusPaid           = "PAID"
	StatusFailed         = "FAILED"
	StatusCanceled       = "CANCELED"
)

// CanTransition reports whether an order may move from one status to
// another. Transitions out of PAID and CANCELED are rejected, which is what
// keeps a settled order from being rewritten by a late event.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPendingPayment:
		return to == StatusPaid || to == StatusFailed || to == StatusCanceled
	case StatusFailed:
		return to == StatusPaid
	default:
		return false
	}
}

// Order is a customer order snapshot.
type Order struct {
	ID          uuid.UUID `json:"id"`
	UserID      *string   `json:"userId,omitempty"`
	Status      string    `json:"status"`
	AmountMinor int64     `json:"amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Items       []Item    `json:"items,omitempty"`
}

// Item is one order line.
type Item struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Quantity  int32     `json:"quantity"`
	UnitMinor int64     `json:"unitAmount"`
}

// ErrOrderNotFound is returned when no order matches.
var ErrOrderNotFound = errors.New("order not found")

// Store reads orders for the storefront.
type Store interface {
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Order, error)
	GetForUser(ctx context.Context, id, userID uuid.UUID) (Order, error)
}

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB DB
}

// ListForUser returns the user's orders, newest first.
func (st *PGStore) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := st.DB.Query(ctx,
		`SELECT id, status, amount_minor, currency, created_at, updated_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Status, &o.AmountMinor, &o.Currency, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetForUser fetches one order with its items, scoped to the owner.
func (st *PGStore) GetForUser(ctx context.Context, id, userID uuid.UUID) (Order, error) {
	var o Order
	row := st.DB.QueryRow(ctx,
		`SELECT id, status, amount_minor, currency, created_at, updated_at
		 FROM orders
		 WHERE id = $1 AND user_id = $2`,
		id, userID)
	err := row.Scan(&o.ID, &o.Status, &o.AmountMinor, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := st.DB.Query(ctx,
		`SELECT oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.unit_minor
		 FROM order_items oi
		 LEFT JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = $1`,
		id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitMinor); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}
