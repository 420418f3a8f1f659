package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Payment status lifecycle. A payment leaves PENDING exactly once.
const (
	PaymentPending   = "PENDING"
	PaymentSucceeded = "SUCCEEDED"
	PaymentFailed    = "FAILED"
	PaymentExpired   = "EXPIRED"
)

// Payment is the persisted record tying a provider intent to an order.
type Payment struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	IntentID     string
	ClientSecret string
	Status       string
	AmountMinor  int64
	Currency     string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderSnapshot is the order row created when an intent is opened.
type OrderSnapshot struct {
	ID          uuid.UUID
	UserID      uuid.NullUUID
	AmountMinor int64
	Currency    string
	Items       []OrderItem
}

// OrderItem is a line captured at intent creation, used for stock decrement.
type OrderItem struct {
	ProductID uuid.UUID
	Quantity  int32
	UnitMinor int64
}

// Settlement describes a verified webhook outcome to apply.
type Settlement struct {
	EventID   string
	EventType string
	IntentID  string
	Succeeded bool
	Payload   []byte
	Now       time.Time
}

// SettleResult reports what the settlement transaction changed.
type SettleResult struct {
	Duplicate   bool
	Applied     bool
	OrderID     uuid.UUID
	OrderStatus string
	UserEmail   string
}

// ErrPaymentNotFound is returned when no payment matches the intent.
var ErrPaymentNotFound = errors.New("payment not found")

// Store is the persistence boundary for intents and settlements.
type Store interface {
	CreateOrderWithPayment(ctx context.Context, order *OrderSnapshot, pay *Payment) error
	PendingPaymentForOrder(ctx context.Context, orderID uuid.UUID, now time.Time) (*Payment, error)
	Settle(ctx context.Context, s Settlement) (SettleResult, error)
	ExpireIntent(ctx context.Context, intentID string, now time.Time) (uuid.UUID, bool, error)
}

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB DB
}

// CreateOrderWithPayment inserts the order snapshot, its items and the
// payment row in one transaction so a half-created checkout never exists.
func (st *PGStore) CreateOrderWithPayment(ctx context.Context, order *OrderSnapshot, pay *Payment) error {
	tx, err := st.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if pay.ID == uuid.Nil {
		pay.ID = uuid.New()
	}
	pay.OrderID = order.ID

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, user_id, status, amount_minor, currency)
		 VALUES ($1, $2, 'PENDING_PAYMENT', $3, $4)`,
		order.ID, order.UserID, order.AmountMinor, order.Currency)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, item := range order.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_minor)
			 VALUES ($1, $2, $3, $4)`,
			order.ID, item.ProductID, item.Quantity, item.UnitMinor)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO payments (id, order_id, intent_id, client_secret, status, amount_minor, currency, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pay.ID, pay.OrderID, pay.IntentID, pay.ClientSecret, PaymentPending, pay.AmountMinor, pay.Currency, pay.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return tx.Commit(ctx)
}

// PendingPaymentForOrder returns the latest pending, unexpired payment for
// the order, or ErrPaymentNotFound.
func (st *PGStore) PendingPaymentForOrder(ctx context.Context, orderID uuid.UUID, now time.Time) (*Payment, error) {
	row := st.DB.QueryRow(ctx,
		`SELECT id, order_id, intent_id, client_secret, status, amount_minor, currency, expires_at, created_at, updated_at
		 FROM payments
		 WHERE order_id = $1 AND status = $2 AND expires_at > $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		orderID, PaymentPending, now)
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.IntentID, &p.ClientSecret, &p.Status, &p.AmountMinor, &p.Currency, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Settle applies a webhook outcome. The event insert carries a unique
// constraint on event_id so a replayed delivery surfaces as SQLSTATE 23505
// and is reported as a duplicate instead of a second transition. Order
// status moves monotonically: a PAID order is never downgraded, a FAILED
// order can still move to PAID when a retried attempt on the same intent
// succeeds, and stock is decremented exactly once, on the transition into
// PAID.
func (st *PGStore) Settle(ctx context.Context, s Settlement) (SettleResult, error) {
	var res SettleResult
	tx, err := st.DB.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO payment_events (event_id, event_type, intent_id, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.EventID, s.EventType, s.IntentID, s.Payload, s.Now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			res.Duplicate = true
			return res, nil
		}
		return res, fmt.Errorf("record event: %w", err)
	}

	var p Payment
	row := tx.QueryRow(ctx,
		`SELECT id, order_id, status FROM payments WHERE intent_id = $1 FOR UPDATE`,
		s.IntentID)
	if err := row.Scan(&p.ID, &p.OrderID, &p.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, ErrPaymentNotFound
		}
		return res, err
	}
	res.OrderID = p.OrderID

	var orderStatus string
	var userEmail *string
	row = tx.QueryRow(ctx,
		`SELECT o.status, u.email
		 FROM orders o
		 LEFT JOIN users u ON u.id = o.user_id
		 WHERE o.id = $1
		 FOR UPDATE OF o`,
		p.OrderID)
	if err := row.Scan(&orderStatus, &userEmail); err != nil {
		return res, err
	}
	res.OrderStatus = orderStatus
	if userEmail != nil {
		res.UserEmail = *userEmail
	}

	if orderStatus == "PAID" {
		// Terminal; commit the event record so the replay stays deduped.
		if err := tx.Commit(ctx); err != nil {
			return res, err
		}
		return res, nil
	}

	var tag pgconn.CommandTag
	nextOrder := "FAILED"
	if s.Succeeded {
		// A failed attempt is not terminal; the shopper may have retried
		// the same intent, so FAILED is still allowed to move to PAID.
		nextOrder = "PAID"
		_, err = tx.Exec(ctx,
			`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status IN ($4, $5)`,
			PaymentSucceeded, s.Now, p.ID, PaymentPending, PaymentFailed)
		if err != nil {
			return res, err
		}
		tag, err = tx.Exec(ctx,
			`UPDATE orders SET status = 'PAID', updated_at = $1 WHERE id = $2 AND status IN ('PENDING_PAYMENT', 'FAILED')`,
			s.Now, p.OrderID)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			PaymentFailed, s.Now, p.ID, PaymentPending)
		if err != nil {
			return res, err
		}
		tag, err = tx.Exec(ctx,
			`UPDATE orders SET status = 'FAILED', updated_at = $1 WHERE id = $2 AND status = 'PENDING_PAYMENT'`,
			s.Now, p.OrderID)
	}
	if err != nil {
		return res, err
	}
	if tag.RowsAffected() > 0 {
		res.Applied = true
		res.OrderStatus = nextOrder
		if s.Succeeded {
			_, err = tx.Exec(ctx,
				`UPDATE products SET stock = GREATEST(stock - oi.quantity, 0)
				 FROM order_items oi
				 WHERE oi.order_id = $1 AND products.id = oi.product_id`,
				p.OrderID)
			if err != nil {
				return res, fmt.Errorf("decrement stock: %w", err)
			}
		}
	}
	return res, tx.Commit(ctx)
}

// ExpireIntent marks a still-pending payment as expired and cancels its
// order. Returns false when the payment already settled.
func (st *PGStore) ExpireIntent(ctx context.Context, intentID string, now time.Time) (uuid.UUID, bool, error) {
	tx, err := st.DB.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var paymentID, orderID uuid.UUID
	row := tx.QueryRow(ctx,
		`SELECT id, order_id FROM payments WHERE intent_id = $1 AND status = $2 FOR UPDATE`,
		intentID, PaymentPending)
	if err := row.Scan(&paymentID, &orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3`,
		PaymentExpired, now, paymentID)
	if err != nil {
		return uuid.Nil, false, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE orders SET status = 'CANCELED', updated_at = $1 WHERE id = $2 AND status = 'PENDING_PAYMENT'`,
		now, orderID)
	if err != nil {
		return uuid.Nil, false, err
	}
	return orderID, true, tx.Commit(ctx)
}
