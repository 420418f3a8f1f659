package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocery/internal/common"
)

// Handler exposes the payment endpoints. Responses use the flat shapes the
// mobile client depends on rather than the envelope used elsewhere.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type createIntentRequest struct {
	Amount   json.RawMessage   `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
	Items    []itemInput       `json:"items"`
}

type itemInput struct {
	ProductID  string          `json:"productId"`
	Quantity   int32           `json:"quantity"`
	UnitAmount json.RawMessage `json:"unitAmount"`
}

// CreatePaymentIntent handles POST /api/payments/create-payment-intent.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.FlatError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		common.FlatError(w, http.StatusBadRequest, "amount must be a number", "")
		return
	}

	items := make([]OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, parseErr := uuid.Parse(strings.TrimSpace(item.ProductID))
		if parseErr != nil {
			common.FlatError(w, http.StatusBadRequest, "items contain an invalid productId", "")
			return
		}
		if item.Quantity < 1 {
			common.FlatError(w, http.StatusBadRequest, "item quantity must be at least 1", "")
			return
		}
		entry := OrderItem{ProductID: productID, Quantity: item.Quantity}
		if len(item.UnitAmount) > 0 {
			unit, unitErr := parseAmount(item.UnitAmount)
			if unitErr != nil {
				common.FlatError(w, http.StatusBadRequest, "item unitAmount must be a number", "")
				return
			}
			minor, minorErr := MinorUnits(unit, currencyOrDefault(req.Currency))
			if minorErr != nil {
				common.FlatError(w, http.StatusBadRequest, minorErr.Error(), "")
				return
			}
			entry.UnitMinor = minor
		}
		items = append(items, entry)
	}

	var userID uuid.NullUUID
	if raw, ok := common.UserID(r.Context()); ok {
		if uid, parseErr := uuid.Parse(raw); parseErr == nil {
			userID = uuid.NullUUID{UUID: uid, Valid: true}
		}
	}

	res, err := h.Svc.CreateIntent(r.Context(), CreateIntentInput{
		Amount:   amount,
		Currency: req.Currency,
		Metadata: req.Metadata,
		UserID:   userID,
		Items:    items,
	})
	if err != nil {
		h.writeIntentError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"clientSecret":    res.ClientSecret,
		"paymentIntentId": res.PaymentIntentID,
	})
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

// ConfirmPayment handles POST /api/payments/confirm-payment. It reports the
// provider's current view of the intent and changes nothing locally.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.FlatError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	intent, err := h.Svc.ConfirmStatus(r.Context(), req.PaymentIntentID)
	if err != nil {
		h.writeConfirmError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"status": intent.Status,
		"paymentIntent": map[string]any{
			"id":       intent.ID,
			"status":   intent.Status,
			"amount":   intent.AmountMinor,
			"currency": intent.Currency,
		},
	})
}

func (h *Handler) writeIntentError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case common.CodeValidation:
			common.FlatError(w, http.StatusBadRequest, appErr.Message, "")
			return
		case common.CodeGateway:
			common.FlatError(w, appErr.HTTPStatus, "Failed to create payment intent", appErr.Message)
			return
		case common.CodeNetwork:
			common.FlatError(w, appErr.HTTPStatus, "Failed to create payment intent", appErr.Message)
			return
		}
	}
	h.Logger.Error().Err(err).Msg("create_intent_failed")
	common.FlatError(w, http.StatusInternalServerError, "Failed to create payment intent", "internal error")
}

func (h *Handler) writeConfirmError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case common.CodeValidation:
			common.FlatError(w, http.StatusBadRequest, appErr.Message, "")
			return
		case common.CodeGateway, common.CodeNetwork:
			common.FlatError(w, appErr.HTTPStatus, "Failed to confirm payment", appErr.Message)
			return
		}
	}
	h.Logger.Error().Err(err).Msg("confirm_payment_failed")
	common.FlatError(w, http.StatusInternalServerError, "Failed to confirm payment", "internal error")
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return decimal.Decimal{}, errors.New("amount is required")
	}
	text := string(trimmed)
	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return decimal.Decimal{}, err
		}
		text = strings.TrimSpace(s)
	}
	return decimal.NewFromString(text)
}

func currencyOrDefault(currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}
