package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/obs"
)

// Metadata limits enforced before any provider call. Oversize metadata is
// rejected, never truncated.
const (
	maxMetadataKeys     = 50
	maxMetadataKeyLen   = 40
	maxMetadataValueLen = 500
)

// DefaultCurrency applies when the client omits the currency field.
const DefaultCurrency = "inr"

// CreateIntentInput is the validated service-level request.
type CreateIntentInput struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
	UserID   uuid.NullUUID
	Items    []OrderItem
}

// CreateIntentResult is what the create endpoint returns to clients.
type CreateIntentResult struct {
	ClientSecret    string
	PaymentIntentID string
	OrderID         uuid.UUID
	Reused          bool
}

// Service coordinates intent creation, reuse and status retrieval.
type Service struct {
	Provider  Provider
	Store     Store
	Queue     Enqueuer
	IntentTTL time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// CreateIntent validates the request, reuses a pending unexpired intent for
// the same order when one exists, and otherwise opens a fresh intent with
// the provider and records the order snapshot.
func (s *Service) CreateIntent(ctx context.Context, in CreateIntentInput) (CreateIntentResult, error) {
	var zero CreateIntentResult
	if s == nil || s.Provider == nil || s.Store == nil {
		return zero, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.currency", currency),
			attribute.String("payment.intent.result", result),
		)
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(currency, result).Inc()
		}
	}()

	if !in.Amount.IsPositive() {
		result = "invalid"
		return zero, common.ValidationError("amount must be greater than zero")
	}
	amountMinor, err := MinorUnits(in.Amount, currency)
	if err != nil {
		result = "invalid"
		return zero, common.ValidationError(err.Error())
	}
	if err := validateMetadata(in.Metadata); err != nil {
		result = "invalid"
		return zero, err
	}

	now := s.now()
	ttl := s.IntentTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	// A retried checkout for a known order reuses its pending intent instead
	// of opening a second one with the provider.
	if raw, ok := in.Metadata["order_id"]; ok {
		orderID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			result = "invalid"
			return zero, common.ValidationError("metadata order_id is not a valid id")
		}
		existing, findErr := s.Store.PendingPaymentForOrder(ctx, orderID, now)
		if findErr == nil {
			result = "reused"
			return CreateIntentResult{
				ClientSecret:    existing.ClientSecret,
				PaymentIntentID: existing.IntentID,
				OrderID:         existing.OrderID,
				Reused:          true,
			}, nil
		}
		if !errors.Is(findErr, ErrPaymentNotFound) {
			return zero, findErr
		}
	}

	order := &OrderSnapshot{
		ID:          uuid.New(),
		UserID:      in.UserID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Items:       in.Items,
	}
	metadata := make(map[string]string, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["order_id"] = order.ID.String()

	intent, err := s.Provider.CreateIntent(ctx, IntentRequest{
		AmountMinor: amountMinor,
		Currency:    currency,
		Metadata:    metadata,
	})
	if err != nil {
		span.RecordError(err)
		return zero, err
	}

	pay := &Payment{
		OrderID:      order.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountMinor:  amountMinor,
		Currency:     currency,
		ExpiresAt:    now.Add(ttl),
	}
	if err := s.Store.CreateOrderWithPayment(ctx, order, pay); err != nil {
		span.RecordError(err)
		return zero, fmt.Errorf("persist intent: %w", err)
	}

	if s.Queue != nil {
		task, taskErr := NewIntentExpiryTask(intent.ID, ttl)
		if taskErr == nil {
			_, taskErr = s.Queue.Enqueue(task)
		}
		if taskErr != nil {
			s.Logger.Warn().Err(taskErr).Str("intent_id", intent.ID).Msg("enqueue_expiry_failed")
		}
	}

	result = "created"
	return CreateIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		OrderID:         order.ID,
	}, nil
}

// ConfirmStatus is a read-only passthrough to the provider. The returned
// status is informational; settlement only ever happens via webhook.
func (s *Service) ConfirmStatus(ctx context.Context, intentID string) (Intent, error) {
	if s == nil || s.Provider == nil {
		return Intent{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.ConfirmStatus")
	defer span.End()

	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, common.ValidationError("paymentIntentId is required")
	}
	intent, err := s.Provider.RetrieveIntent(ctx, intentID)
	if err != nil {
		span.RecordError(err)
		return Intent{}, err
	}
	return intent, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func validateMetadata(md map[string]string) error {
	if len(md) > maxMetadataKeys {
		return common.ValidationError(fmt.Sprintf("metadata exceeds %d keys", maxMetadataKeys))
	}
	for k, v := range md {
		if len(k) > maxMetadataKeyLen {
			return common.ValidationError(fmt.Sprintf("metadata key %q exceeds %d characters", k, maxMetadataKeyLen))
		}
		if len(v) > maxMetadataValueLen {
			return common.ValidationError(fmt.Sprintf("metadata value for %q exceeds %d characters", k, maxMetadataValueLen))
		}
	}
	return nil
}
