package checkout

import (
	"context"
	"errors"
)

// PresentOutcome is the terminal result of showing the payment sheet.
type PresentOutcome int

const (
	// PresentCompleted means the shopper finished payment in the sheet.
	PresentCompleted PresentOutcome = iota
	// PresentCanceled means the shopper dismissed the sheet.
	PresentCanceled
)

// ErrPaymentsUnavailable is returned when no payment surface exists in this
// build or environment.
var ErrPaymentsUnavailable = errors.New("checkout: payments unavailable")

// PaymentCapability is the payment surface the controller drives. The
// implementation is chosen at construction; callers never probe for
// availability at call sites.
type PaymentCapability interface {
	// Initialize prepares the payment sheet for the given intent secret.
	Initialize(ctx context.Context, clientSecret string) error
	// Present shows the sheet and blocks until a terminal outcome. A
	// non-nil error means the payment attempt failed; cancellation is an
	// outcome, not an error.
	Present(ctx context.Context) (PresentOutcome, error)
}

// Unavailable is the no-op capability used when payments cannot run.
type Unavailable struct{}

func (Unavailable) Initialize(context.Context, string) error {
	return ErrPaymentsUnavailable
}

func (Unavailable) Present(context.Context) (PresentOutcome, error) {
	return PresentCanceled, ErrPaymentsUnavailable
}
