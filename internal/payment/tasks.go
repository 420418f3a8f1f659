package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/events"
)

// Task types handled by the worker process.
const (
	TaskTypeReceipt      = "payment:receipt"
	TaskTypeIntentExpiry = "payment:intent_expiry"
)

// Enqueuer abstracts asynq.Client for tests.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReceiptPayload is the payload for the receipt email task.
type ReceiptPayload struct {
	OrderID     string `json:"order_id"`
	IntentID    string `json:"intent_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Email       string `json:"email,omitempty"`
}

// ExpiryPayload is the payload for the delayed intent expiry sweep.
type ExpiryPayload struct {
	IntentID string `json:"intent_id"`
}

// NewReceiptTask builds the receipt email task for a settled order.
func NewReceiptTask(p ReceiptPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReceipt, data, asynq.MaxRetry(5)), nil
}

// NewIntentExpiryTask builds the delayed task that cancels an order whose
// intent was never completed. delay should match the intent TTL.
func NewIntentExpiryTask(intentID string, delay time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(ExpiryPayload{IntentID: intentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIntentExpiry, data, asynq.ProcessIn(delay), asynq.MaxRetry(3)), nil
}

// TaskHandler processes payment background tasks on the worker.
type TaskHandler struct {
	Store  Store
	Email  common.EmailSender
	Bus    *events.Bus
	Logger zerolog.Logger
	Now    func() time.Time
}

// Register attaches the payment task handlers to the mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeReceipt, h.HandleReceipt)
	mux.HandleFunc(TaskTypeIntentExpiry, h.HandleIntentExpiry)
}

// HandleReceipt sends the order receipt email. Guest orders carry no email
// address and are skipped.
func (h *TaskHandler) HandleReceipt(_ context.Context, t *asynq.Task) error {
	var p ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("receipt payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.Email == nil || p.Email == "" {
		return nil
	}
	subject := "Your order receipt"
	body := fmt.Sprintf("<p>Order %s is paid: %d %s (intent %s).</p>", p.OrderID, p.AmountMinor, p.Currency, p.IntentID)
	if err := h.Email.Send(p.Email, subject, body); err != nil {
		h.Logger.Error().Err(err).Str("order_id", p.OrderID).Msg("receipt_send_failed")
		return err
	}
	return nil
}

// HandleIntentExpiry cancels orders whose payment intent lapsed unpaid. A
// payment that settled before the sweep fires is left untouched.
func (h *TaskHandler) HandleIntentExpiry(ctx context.Context, t *asynq.Task) error {
	var p ExpiryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("expiry payload: %v: %w", err, asynq.SkipRetry)
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	orderID, expired, err := h.Store.ExpireIntent(ctx, p.IntentID, now())
	if err != nil {
		return err
	}
	if expired {
		h.Logger.Info().Str("intent_id", p.IntentID).Str("order_id", orderID.String()).Msg("intent_expired")
		if h.Bus != nil {
			if _, err := h.Bus.Emit(ctx, events.TopicPaymentExpired, orderID, map[string]any{"intent_id": p.IntentID}); err != nil {
				h.Logger.Warn().Err(err).Msg("emit_payment_expired_failed")
			}
		}
	}
	return nil
}
