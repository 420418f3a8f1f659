package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifyingProvider struct {
	event Event
	err   error
}

func (p *verifyingProvider) CreateIntent(context.Context, IntentRequest) (Intent, error) {
	return Intent{}, errors.New("not used")
}

func (p *verifyingProvider) RetrieveIntent(context.Context, string) (Intent, error) {
	return Intent{}, errors.New("not used")
}

func (p *verifyingProvider) VerifyWebhook(*http.Request, []byte) (Event, error) {
	return p.event, p.err
}

func newWebhookHarness(t *testing.T, provider Provider, store Store) (*Webhook, *fakeEnqueuer) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := &fakeEnqueuer{}
	return &Webhook{
		Provider:  provider,
		Store:     store,
		Redis:     rdb,
		Queue:     queue,
		ReplayTTL: time.Hour,
		Logger:    zerolog.Nop(),
	}, queue
}

func postWebhook(wh *Webhook) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	store := &fakeStore{}
	wh, _ := newWebhookHarness(t, &verifyingProvider{err: signatureError("no matching v1 signature")}, store)

	rec := postWebhook(wh)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Webhook Error")
	assert.Empty(t, store.settlements, "nothing may be processed on signature failure")
}

func TestWebhookSettlesSucceededEvent(t *testing.T) {
	orderID := uuid.New()
	store := &fakeStore{settleRes: SettleResult{
		Applied:     true,
		OrderID:     orderID,
		OrderStatus: "PAID",
		UserEmail:   "shopper@example.com",
	}}
	wh, queue := newWebhookHarness(t, &verifyingProvider{event: Event{
		ID:          "evt_1",
		Type:        EventIntentSucceeded,
		IntentID:    "pi_1",
		AmountMinor: 10000,
		Currency:    "inr",
	}}, store)

	rec := postWebhook(wh)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeAck(t, rec)["received"])

	require.Len(t, store.settlements, 1)
	assert.Equal(t, "evt_1", store.settlements[0].EventID)
	assert.True(t, store.settlements[0].Succeeded)

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskTypeReceipt, queue.tasks[0].Type())
	var payload ReceiptPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	assert.Equal(t, orderID.String(), payload.OrderID)
	assert.Equal(t, "shopper@example.com", payload.Email)
}

func TestWebhookDuplicateEventAcked(t *testing.T) {
	store := &fakeStore{settleRes: SettleResult{Applied: true, OrderID: uuid.New(), OrderStatus: "PAID"}}
	wh, queue := newWebhookHarness(t, &verifyingProvider{event: Event{
		ID:       "evt_dup",
		Type:     EventIntentSucceeded,
		IntentID: "pi_1",
	}}, store)

	first := postWebhook(wh)
	assert.Equal(t, http.StatusOK, first.Code)

	second := postWebhook(wh)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, true, decodeAck(t, second)["received"])

	assert.Len(t, store.settlements, 1, "replay must not settle twice")
	assert.Len(t, queue.tasks, 1, "replay must not enqueue a second receipt")
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	store := &fakeStore{}
	wh, _ := newWebhookHarness(t, &verifyingProvider{event: Event{
		ID:   "evt_2",
		Type: "payment_intent.created",
	}}, store)

	rec := postWebhook(wh)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeAck(t, rec)["received"])
	assert.Empty(t, store.settlements)
}

func TestWebhookFailedEventNoReceipt(t *testing.T) {
	store := &fakeStore{settleRes: SettleResult{Applied: true, OrderID: uuid.New(), OrderStatus: "FAILED"}}
	wh, queue := newWebhookHarness(t, &verifyingProvider{event: Event{
		ID:       "evt_3",
		Type:     EventIntentFailed,
		IntentID: "pi_3",
	}}, store)

	rec := postWebhook(wh)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.settlements, 1)
	assert.False(t, store.settlements[0].Succeeded)
	assert.Empty(t, queue.tasks)
}

func TestWebhookFailedThenSucceededSameIntent(t *testing.T) {
	orderID := uuid.New()
	provider := &verifyingProvider{event: Event{
		ID:       "evt_fail",
		Type:     EventIntentFailed,
		IntentID: "pi_retry",
	}}
	store := &fakeStore{settleRes: SettleResult{Applied: true, OrderID: orderID, OrderStatus: "FAILED"}}
	wh, queue := newWebhookHarness(t, provider, store)

	first := postWebhook(wh)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, queue.tasks)

	// The shopper retries the same intent and the next attempt succeeds.
	provider.event = Event{
		ID:       "evt_retry_ok",
		Type:     EventIntentSucceeded,
		IntentID: "pi_retry",
	}
	store.settleRes = SettleResult{
		Applied:     true,
		OrderID:     orderID,
		OrderStatus: "PAID",
		UserEmail:   "shopper@example.com",
	}

	second := postWebhook(wh)
	assert.Equal(t, http.StatusOK, second.Code)
	require.Len(t, store.settlements, 2)
	assert.True(t, store.settlements[1].Succeeded)
	require.Len(t, queue.tasks, 1, "the late success must still produce a receipt")
	assert.Equal(t, TaskTypeReceipt, queue.tasks[0].Type())
}

func TestWebhookReleasesClaimOnSettleError(t *testing.T) {
	store := &fakeStore{settleErr: errors.New("db down")}
	wh, _ := newWebhookHarness(t, &verifyingProvider{event: Event{
		ID:       "evt_4",
		Type:     EventIntentSucceeded,
		IntentID: "pi_4",
	}}, store)

	rec := postWebhook(wh)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// The retry should be allowed through after the failure.
	store.settleErr = nil
	store.settleRes = SettleResult{Applied: true, OrderID: uuid.New(), OrderStatus: "PAID"}
	retry := postWebhook(wh)
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Len(t, store.settlements, 2)
}

func TestWebhookUnknownIntentAcked(t *testing.T) {
	store := &fakeStore{settleErr: ErrPaymentNotFound}
	wh, _ := newWebhookHarness(t, &verifyingProvider{event: Event{
		ID:       "evt_5",
		Type:     EventIntentSucceeded,
		IntentID: "pi_missing",
	}}, store)

	rec := postWebhook(wh)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeAck(t, rec)["received"])
}
