package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/obs"
)

// State is the checkout presentation state.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StatePresenting
	StateSucceeded
	StateInitFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StatePresenting:
		return "presenting"
	case StateSucceeded:
		return "succeeded"
	case StateInitFailed:
		return "init_failed"
	default:
		return "unknown"
	}
}

// Hooks are the UI side effects the controller triggers. All hooks are
// optional.
type Hooks struct {
	// ClearCart empties the cart after a successful payment.
	ClearCart func()
	// NavigateHome leaves the checkout screen after success.
	NavigateHome func()
	// NavigateBack leaves checkout when there is nothing to pay for.
	NavigateBack func()
	// Notify surfaces a user-visible message.
	Notify func(msg string)
}

// ErrNotReady is returned when Pay is called before initialization finished.
var ErrNotReady = errors.New("checkout: payment sheet not ready")

// Controller drives the payment sheet flow:
//
//	Idle -> Initializing -> Ready -> Presenting -> Succeeded
//	                 \-> InitFailed       \-> Ready (canceled or failed)
//
// Succeeded and InitFailed are terminal. Success side effects run exactly
// once no matter how the terminal state is reached.
type Controller struct {
	mu    sync.Mutex
	state State

	cart       *Cart
	gateway    IntentCreator
	capability PaymentCapability
	hooks      Hooks
	logger     zerolog.Logger

	clientSecret string
	intentID     string
	lastError    string

	successOnce sync.Once
}

// NewController wires a controller for one checkout attempt.
func NewController(cart *Cart, gateway IntentCreator, capability PaymentCapability, hooks Hooks, logger zerolog.Logger) *Controller {
	if capability == nil {
		capability = Unavailable{}
	}
	return &Controller{
		state:      StateIdle,
		cart:       cart,
		gateway:    gateway,
		capability: capability,
		hooks:      hooks,
		logger:     logger,
	}
}

// State returns the current presentation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent user-visible failure message.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// IntentID returns the provider intent id once initialization completed.
func (c *Controller) IntentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentID
}

// Start creates the intent and initializes the payment sheet. An empty cart
// aborts with a notice and navigates back without touching the gateway.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return errors.New("checkout: already started")
	}
	if c.cart.IsEmpty() {
		c.mu.Unlock()
		c.notify("Your cart is empty")
		if c.hooks.NavigateBack != nil {
			c.hooks.NavigateBack()
		}
		c.countAttempt("empty_cart")
		return errors.New("checkout: cart is empty")
	}
	if err := c.cart.Validate(); err != nil {
		c.mu.Unlock()
		c.failInit(err.Error())
		return err
	}
	c.state = StateInitializing
	cart := c.cart
	c.mu.Unlock()

	handle, err := c.gateway.CreateIntent(ctx, cart.Total(), cart.Currency, nil)
	if err != nil {
		if ctx.Err() != nil {
			// Teardown: the screen is gone, nobody is watching.
			c.setState(StateInitFailed)
			return ctx.Err()
		}
		c.failInit(userMessage(err))
		return err
	}

	if err := c.capability.Initialize(ctx, handle.ClientSecret); err != nil {
		if ctx.Err() != nil {
			c.setState(StateInitFailed)
			return ctx.Err()
		}
		c.failInit(userMessage(err))
		return err
	}

	c.mu.Lock()
	c.clientSecret = handle.ClientSecret
	c.intentID = handle.PaymentIntentID
	c.state = StateReady
	c.mu.Unlock()
	return nil
}

// Pay presents the payment sheet. Calls while a sheet is already up are
// ignored; cancellation returns to Ready silently; failure returns to Ready
// with a message; completion is terminal and runs the success side effects
// exactly once.
func (c *Controller) Pay(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StatePresenting:
		c.mu.Unlock()
		return nil
	case StateReady:
	default:
		c.mu.Unlock()
		return ErrNotReady
	}
	c.state = StatePresenting
	c.mu.Unlock()

	outcome, err := c.capability.Present(ctx)
	if ctx.Err() != nil {
		c.setState(StateReady)
		return ctx.Err()
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateReady
		c.lastError = userMessage(err)
		c.mu.Unlock()
		c.notify(c.LastError())
		c.countAttempt("failed")
		return err
	}
	if outcome == PresentCanceled {
		// Silent per UX: dismissing the sheet is not an error.
		c.setState(StateReady)
		c.countAttempt("canceled")
		return nil
	}

	c.setState(StateSucceeded)
	c.successOnce.Do(func() {
		if c.hooks.ClearCart != nil {
			c.hooks.ClearCart()
		}
		if c.hooks.NavigateHome != nil {
			c.hooks.NavigateHome()
		}
	})
	c.countAttempt("succeeded")
	return nil
}

func (c *Controller) failInit(msg string) {
	c.mu.Lock()
	c.state = StateInitFailed
	c.lastError = msg
	c.mu.Unlock()
	c.notify(msg)
	c.countAttempt("init_failed")
	c.logger.Warn().Str("reason", msg).Msg("checkout_init_failed")
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) notify(msg string) {
	if c.hooks.Notify != nil && msg != "" {
		c.hooks.Notify(msg)
	}
}

func (c *Controller) countAttempt(state string) {
	if obs.CheckoutAttemptTotal != nil {
		obs.CheckoutAttemptTotal.WithLabelValues(state).Inc()
	}
}

func userMessage(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if errors.Is(err, ErrPaymentsUnavailable) {
		return "Payments are not available right now"
	}
	return "Something went wrong, please try again"
}
