package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/resilience"
)

// StripeConfig carries the credentials and tuning knobs for the Stripe client.
type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	BaseURL          string
	Timeout          time.Duration
	WebhookTolerance time.Duration
}

// Stripe implements Provider against the Stripe REST API.
type Stripe struct {
	cfg        StripeConfig
	createCl   resilience.HTTPClient
	retrieveCl resilience.HTTPClient
	now        func() time.Time
	logger     *zerolog.Logger
}

// NewStripe builds a Stripe provider. Intent creation is never retried
// automatically because a retry after an ambiguous failure could open a
// second intent; retrieval is idempotent and retries with backoff.
func NewStripe(cfg StripeConfig, breaker *resilience.Breaker, logger *zerolog.Logger) *Stripe {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = 5 * time.Minute
	}
	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &Stripe{
		cfg: cfg,
		createCl: resilience.HTTPClient{
			Client:      base,
			Breaker:     breaker,
			MaxAttempts: 1,
			Timeout:     cfg.Timeout,
			Target:      "stripe",
			Logger:      logger,
		},
		retrieveCl: resilience.HTTPClient{
			Client:      base,
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
			Target:      "stripe",
			Logger:      logger,
		},
		now:    time.Now,
		logger: logger,
	}
}

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent opens a payment intent with automatic payment methods enabled.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", req.Metadata[k])
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return Intent{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.createCl.Do(ctx, httpReq)
	if err != nil {
		return Intent{}, common.NetworkError(err)
	}
	return decodeIntentResponse(resp)
}

// RetrieveIntent fetches the current state of an intent by its provider ID.
func (s *Stripe) RetrieveIntent(ctx context.Context, id string) (Intent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v1/payment_intents/"+url.PathEscape(id), nil)
	if err != nil {
		return Intent{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)

	resp, err := s.retrieveCl.Do(ctx, httpReq)
	if err != nil {
		return Intent{}, common.NetworkError(err)
	}
	return decodeIntentResponse(resp)
}

func decodeIntentResponse(resp *http.Response) (Intent, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, common.NetworkError(err)
	}
	if resp.StatusCode >= 400 {
		var stripeErr stripeErrorBody
		_ = json.Unmarshal(body, &stripeErr)
		msg := stripeErr.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return Intent{}, common.GatewayError(msg, fmt.Errorf("stripe: %s (%s)", msg, stripeErr.Error.Type))
	}
	var si stripeIntent
	if err := json.Unmarshal(body, &si); err != nil {
		return Intent{}, common.GatewayError("malformed provider response", err)
	}
	return Intent{
		ID:           si.ID,
		ClientSecret: si.ClientSecret,
		Status:       si.Status,
		AmountMinor:  si.Amount,
		Currency:     si.Currency,
	}, nil
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object stripeIntent `json:"object"`
	} `json:"data"`
}

// VerifyWebhook authenticates a webhook delivery using the Stripe-Signature
// header and returns the normalised event. The raw body must be the exact
// bytes received on the wire; any re-serialisation breaks the signature.
func (s *Stripe) VerifyWebhook(r *http.Request, body []byte) (Event, error) {
	header := r.Header.Get("Stripe-Signature")
	if header == "" {
		return Event{}, signatureError("missing Stripe-Signature header")
	}
	ts, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return Event{}, err
	}

	eventTime := time.Unix(ts, 0)
	if diff := s.now().Sub(eventTime); diff > s.cfg.WebhookTolerance || diff < -s.cfg.WebhookTolerance {
		return Event{}, signatureError("timestamp outside tolerance")
	}

	expected := computeSignature(s.cfg.WebhookSecret, ts, body)
	matched := false
	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1 {
			matched = true
		}
	}
	if !matched {
		return Event{}, signatureError("no matching v1 signature")
	}

	var ev stripeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, signatureError("malformed event payload")
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, signatureError("event missing id or type")
	}
	return Event{
		ID:          ev.ID,
		Type:        ev.Type,
		IntentID:    ev.Data.Object.ID,
		AmountMinor: ev.Data.Object.Amount,
		Currency:    ev.Data.Object.Currency,
		Raw:         body,
	}, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var ts int64 = -1
	var candidates []string
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			parsed, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, nil, signatureError("invalid timestamp")
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, parts[1])
		}
	}
	if ts < 0 {
		return 0, nil, signatureError("missing timestamp")
	}
	if len(candidates) == 0 {
		return 0, nil, signatureError("missing v1 signature")
	}
	return ts, candidates, nil
}

func computeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", ts)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signatureError(msg string) *common.AppError {
	return &common.AppError{Code: common.CodeSignature, Message: msg, HTTPStatus: http.StatusBadRequest}
}
