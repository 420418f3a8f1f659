package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/events"
	"github.com/noah-isme/backend-grocery/internal/obs"
)

// Event types the receiver settles on. Everything else is acked and ignored
// so the provider does not retry deliveries we will never act on.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

const maxWebhookBody = 1 << 20

// Webhook receives and settles provider notifications. Signature
// verification happens before any parsing or side effect; replays are
// absorbed twice, first by a Redis SETNX and then by the unique event id
// constraint inside the settlement transaction.
type Webhook struct {
	Provider  Provider
	Store     Store
	Redis     *redis.Client
	Queue     Enqueuer
	Bus       *events.Bus
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if wh == nil || wh.Provider == nil || wh.Store == nil {
		http.Error(w, "webhook not configured", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxWebhookBody {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	event, err := wh.Provider.VerifyWebhook(r, body)
	if err != nil {
		wh.count("unknown", "signature_rejected")
		var appErr *common.AppError
		msg := "signature verification failed"
		if errors.As(err, &appErr) && appErr.Message != "" {
			msg = appErr.Message
		}
		http.Error(w, "Webhook Error: "+msg, http.StatusBadRequest)
		return
	}

	switch event.Type {
	case EventIntentSucceeded, EventIntentFailed:
	default:
		wh.count(event.Type, "ignored")
		ack(w)
		return
	}

	claimed, release, err := wh.claim(ctx, event.ID)
	if err != nil {
		wh.Logger.Error().Err(err).Str("event_id", event.ID).Msg("webhook_dedup_failed")
		http.Error(w, "dedup unavailable", http.StatusInternalServerError)
		return
	}
	if !claimed {
		wh.count(event.Type, "duplicate")
		ack(w)
		return
	}

	res, err := wh.Store.Settle(ctx, Settlement{
		EventID:   event.ID,
		EventType: event.Type,
		IntentID:  event.IntentID,
		Succeeded: event.Type == EventIntentSucceeded,
		Payload:   event.Raw,
		Now:       time.Now(),
	})
	if err != nil {
		// Release the claim so the provider's retry can settle.
		release(ctx)
		if errors.Is(err, ErrPaymentNotFound) {
			wh.count(event.Type, "unmatched")
			wh.Logger.Warn().Str("intent_id", event.IntentID).Msg("webhook_for_unknown_intent")
			ack(w)
			return
		}
		wh.Logger.Error().Err(err).Str("event_id", event.ID).Msg("webhook_settle_failed")
		http.Error(w, "settlement failed", http.StatusInternalServerError)
		return
	}
	if res.Duplicate {
		wh.count(event.Type, "duplicate")
		ack(w)
		return
	}

	if res.Applied {
		wh.count(event.Type, "settled")
		if obs.OrderSettlementTotal != nil {
			obs.OrderSettlementTotal.WithLabelValues(res.OrderStatus).Inc()
		}
		wh.afterSettle(ctx, event, res)
	} else {
		wh.count(event.Type, "noop")
	}
	ack(w)
}

func (wh *Webhook) afterSettle(ctx context.Context, event Event, res SettleResult) {
	if res.OrderStatus == "PAID" {
		if wh.Queue != nil {
			task, err := NewReceiptTask(ReceiptPayload{
				OrderID:     res.OrderID.String(),
				IntentID:    event.IntentID,
				AmountMinor: event.AmountMinor,
				Currency:    event.Currency,
				Email:       res.UserEmail,
			})
			if err == nil {
				_, err = wh.Queue.Enqueue(task)
			}
			if err != nil {
				wh.Logger.Warn().Err(err).Str("order_id", res.OrderID.String()).Msg("enqueue_receipt_failed")
			}
		}
		wh.emit(ctx, events.TopicOrderPaid, event, res)
		return
	}
	wh.emit(ctx, events.TopicPaymentFailed, event, res)
}

func (wh *Webhook) emit(ctx context.Context, topic string, event Event, res SettleResult) {
	if wh.Bus == nil {
		return
	}
	_, err := wh.Bus.Emit(ctx, topic, res.OrderID, map[string]any{
		"intent_id":    event.IntentID,
		"event_id":     event.ID,
		"amount_minor": event.AmountMinor,
		"currency":     event.Currency,
	})
	if err != nil {
		wh.Logger.Warn().Err(err).Str("topic", topic).Msg("emit_event_failed")
	}
}

// claim takes the Redis replay lock for the event. The returned release
// function undoes the claim when settlement fails so retries get through.
func (wh *Webhook) claim(ctx context.Context, eventID string) (bool, func(context.Context), error) {
	if wh.Redis == nil {
		return true, func(context.Context) {}, nil
	}
	ttl := wh.ReplayTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	key := "wh:stripe:" + eventID
	ok, err := wh.Redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, nil, err
	}
	release := func(ctx context.Context) {
		if err := wh.Redis.Del(ctx, key).Err(); err != nil {
			wh.Logger.Warn().Err(err).Str("event_id", eventID).Msg("webhook_claim_release_failed")
		}
	}
	return ok, release, nil
}

func (wh *Webhook) count(eventType, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(eventType, result).Inc()
	}
}

func ack(w http.ResponseWriter) {
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}
