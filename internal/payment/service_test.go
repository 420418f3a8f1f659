package payment

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocery/internal/common"
)

type fakeProvider struct {
	created  []IntentRequest
	intent   Intent
	err      error
	retrieve Intent
}

func (f *fakeProvider) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	f.created = append(f.created, req)
	if f.err != nil {
		return Intent{}, f.err
	}
	return f.intent, nil
}

func (f *fakeProvider) RetrieveIntent(context.Context, string) (Intent, error) {
	if f.err != nil {
		return Intent{}, f.err
	}
	return f.retrieve, nil
}

func (f *fakeProvider) VerifyWebhook(*http.Request, []byte) (Event, error) {
	return Event{}, nil
}

type fakeStore struct {
	orders      []*OrderSnapshot
	payments    []*Payment
	pending     *Payment
	settlements []Settlement
	settleRes   SettleResult
	settleErr   error
	expired     []string
	expireOrder uuid.UUID
	expireOK    bool
}

func (f *fakeStore) CreateOrderWithPayment(_ context.Context, order *OrderSnapshot, pay *Payment) error {
	f.orders = append(f.orders, order)
	f.payments = append(f.payments, pay)
	return nil
}

func (f *fakeStore) PendingPaymentForOrder(_ context.Context, orderID uuid.UUID, _ time.Time) (*Payment, error) {
	if f.pending != nil && f.pending.OrderID == orderID {
		return f.pending, nil
	}
	return nil, ErrPaymentNotFound
}

func (f *fakeStore) Settle(_ context.Context, s Settlement) (SettleResult, error) {
	f.settlements = append(f.settlements, s)
	return f.settleRes, f.settleErr
}

func (f *fakeStore) ExpireIntent(_ context.Context, intentID string, _ time.Time) (uuid.UUID, bool, error) {
	f.expired = append(f.expired, intentID)
	return f.expireOrder, f.expireOK, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestService(p Provider, st Store, q Enqueuer) *Service {
	return &Service{
		Provider:  p,
		Store:     st,
		Queue:     q,
		IntentTTL: 15 * time.Minute,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestCreateIntentHappyPath(t *testing.T) {
	provider := &fakeProvider{intent: Intent{ID: "pi_123", ClientSecret: "pi_123_secret", Status: "requires_payment_method"}}
	store := &fakeStore{}
	queue := &fakeEnqueuer{}
	svc := newTestService(provider, store, queue)

	res, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		Amount:   decimal.RequireFromString("100.00"),
		Currency: "inr",
		Metadata: map[string]string{"cart": "weekly"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret", res.ClientSecret)
	assert.Equal(t, "pi_123", res.PaymentIntentID)
	assert.False(t, res.Reused)

	require.Len(t, provider.created, 1)
	assert.Equal(t, int64(10000), provider.created[0].AmountMinor)
	assert.Equal(t, "inr", provider.created[0].Currency)
	assert.Equal(t, res.OrderID.String(), provider.created[0].Metadata["order_id"])
	assert.Equal(t, "weekly", provider.created[0].Metadata["cart"])

	require.Len(t, store.orders, 1)
	assert.Equal(t, int64(10000), store.orders[0].AmountMinor)
	require.Len(t, store.payments, 1)
	assert.Equal(t, "pi_123", store.payments[0].IntentID)
	assert.Equal(t, svc.Now().Add(15*time.Minute), store.payments[0].ExpiresAt)

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskTypeIntentExpiry, queue.tasks[0].Type())
}

func TestCreateIntentDefaultsCurrency(t *testing.T) {
	provider := &fakeProvider{intent: Intent{ID: "pi_1", ClientSecret: "cs"}}
	svc := newTestService(provider, &fakeStore{}, nil)

	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.Len(t, provider.created, 1)
	assert.Equal(t, "inr", provider.created[0].Currency)
	assert.Equal(t, int64(500), provider.created[0].AmountMinor)
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(&fakeProvider{}, &fakeStore{}, nil)
	for _, amount := range []string{"0", "-1", "-0.01"} {
		_, err := svc.CreateIntent(context.Background(), CreateIntentInput{Amount: decimal.RequireFromString(amount)})
		require.Error(t, err, amount)
		assert.Equal(t, common.CodeValidation, common.CodeOf(err))
	}
}

func TestCreateIntentRejectsUnknownCurrency(t *testing.T) {
	svc := newTestService(&fakeProvider{}, &fakeStore{}, nil)
	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		Amount:   decimal.NewFromInt(10),
		Currency: "abcd",
	})
	require.Error(t, err)
	assert.Equal(t, common.CodeValidation, common.CodeOf(err))
}

func TestCreateIntentMetadataLimits(t *testing.T) {
	svc := newTestService(&fakeProvider{}, &fakeStore{}, nil)

	tooManyKeys := make(map[string]string, maxMetadataKeys+1)
	for i := 0; i <= maxMetadataKeys; i++ {
		tooManyKeys[string(rune('a'+i%26))+string(rune('0'+i/26))] = "v"
	}
	longKey := map[string]string{string(make([]byte, maxMetadataKeyLen+1)): "v"}
	longValue := map[string]string{"k": string(make([]byte, maxMetadataValueLen+1))}

	for name, md := range map[string]map[string]string{
		"too many keys": tooManyKeys,
		"long key":      longKey,
		"long value":    longValue,
	} {
		_, err := svc.CreateIntent(context.Background(), CreateIntentInput{
			Amount:   decimal.NewFromInt(10),
			Metadata: md,
		})
		require.Error(t, err, name)
		assert.Equal(t, common.CodeValidation, common.CodeOf(err), name)
	}
}

func TestCreateIntentReusesPendingIntent(t *testing.T) {
	orderID := uuid.New()
	provider := &fakeProvider{intent: Intent{ID: "pi_new", ClientSecret: "new"}}
	store := &fakeStore{pending: &Payment{
		OrderID:      orderID,
		IntentID:     "pi_old",
		ClientSecret: "old_secret",
		Status:       PaymentPending,
	}}
	svc := newTestService(provider, store, nil)

	res, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		Amount:   decimal.NewFromInt(10),
		Metadata: map[string]string{"order_id": orderID.String()},
	})
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, "pi_old", res.PaymentIntentID)
	assert.Equal(t, "old_secret", res.ClientSecret)
	assert.Empty(t, provider.created, "no new intent should be opened")
}

func TestCreateIntentPropagatesGatewayError(t *testing.T) {
	provider := &fakeProvider{err: common.GatewayError("Amount must be at least 50 cents", nil)}
	store := &fakeStore{}
	svc := newTestService(provider, store, nil)

	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Equal(t, common.CodeGateway, common.CodeOf(err))
	assert.Empty(t, store.orders, "no order snapshot on provider rejection")
}

func TestConfirmStatus(t *testing.T) {
	provider := &fakeProvider{retrieve: Intent{ID: "pi_9", Status: "succeeded", AmountMinor: 700, Currency: "usd"}}
	svc := newTestService(provider, &fakeStore{}, nil)

	intent, err := svc.ConfirmStatus(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)

	_, err = svc.ConfirmStatus(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, common.CodeValidation, common.CodeOf(err))
}
