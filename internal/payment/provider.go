package payment

import (
	"context"
	"net/http"
)

// IntentRequest captures the information required to open a payment intent
// with the provider. Amount is expressed in the currency's minor unit.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// Intent is the provider-side payment intent in normalised form.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountMinor  int64
	Currency     string
}

// Event is a verified webhook notification normalised across event shapes.
type Event struct {
	ID          string
	Type        string
	IntentID    string
	AmountMinor int64
	Currency    string
	Raw         []byte
}

// Provider abstracts the operations required from the upstream payment provider.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
	VerifyWebhook(r *http.Request, body []byte) (Event, error)
}
