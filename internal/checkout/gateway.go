package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/resilience"
)

// IntentHandle is the gateway's view of a freshly created payment intent.
type IntentHandle struct {
	ClientSecret    string
	PaymentIntentID string
}

// IntentCreator abstracts the gateway for the controller and tests.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (IntentHandle, error)
}

// Gateway is the thin client the checkout flow uses to open an intent on the
// backend. It issues a single attempt with a bounded timeout; retrying intent
// creation blindly could open duplicate intents.
type Gateway struct {
	BaseURL string
	Client  resilience.HTTPClient
}

// NewGateway builds a gateway against the given API base URL.
func NewGateway(baseURL string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: resilience.HTTPClient{
			Client:      &http.Client{Timeout: timeout},
			MaxAttempts: 1,
			Timeout:     timeout,
			Target:      "payment-gateway",
		},
	}
}

type gatewayErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateIntent calls POST /api/payments/create-payment-intent and classifies
// failures into validation, gateway and network errors.
func (g *Gateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (IntentHandle, error) {
	var zero IntentHandle
	payload, err := json.Marshal(map[string]any{
		"amount":   amount,
		"currency": currency,
		"metadata": metadata,
	})
	if err != nil {
		return zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/api/payments/create-payment-intent", bytes.NewReader(payload))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(ctx, req)
	if err != nil {
		return zero, common.NetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zero, common.NetworkError(err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody gatewayErrorBody
		_ = json.Unmarshal(body, &errBody)
		msg := errBody.Message
		if msg == "" {
			msg = errBody.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode == http.StatusBadRequest {
			return zero, common.ValidationError(msg)
		}
		return zero, common.GatewayError(msg, errors.New(resp.Status))
	}

	var ok struct {
		ClientSecret    string `json:"clientSecret"`
		PaymentIntentID string `json:"paymentIntentId"`
	}
	if err := json.Unmarshal(body, &ok); err != nil {
		return zero, common.GatewayError("malformed gateway response", err)
	}
	if ok.ClientSecret == "" {
		return zero, common.GatewayError("gateway response missing client secret", nil)
	}
	return IntentHandle{ClientSecret: ok.ClientSecret, PaymentIntentID: ok.PaymentIntentID}, nil
}
