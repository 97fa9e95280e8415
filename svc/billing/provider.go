// Package billing connects a hosted payment provider to the subscription
// state machine. Providers create checkout and portal links and turn signed
// webhooks into subscription events.
package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrymomot/studykit/svc/subscription"
)

// Provider is a hosted billing backend.
type Provider interface {
	Name() string

	// CreateCheckout starts a hosted checkout for the pro plan. When the
	// request carries no customer ref the provider may create one and return
	// it in the link.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// PortalLink returns a short-lived link to the provider's customer portal.
	PortalLink(ctx context.Context, customerRef string) (*PortalLink, error)

	// ParseWebhook verifies the signature and maps the payload to an event.
	// It returns nil, nil for event types the service does not handle.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*subscription.Event, error)
}

type CheckoutRequest struct {
	UserID      string
	Email       string
	Name        string
	CustomerRef string
	SuccessURL  string
	CancelURL   string
}

type CheckoutLink struct {
	URL         string `json:"url"`
	SessionID   string `json:"session_id"`
	CustomerRef string `json:"-"`
}

type PortalLink struct {
	URL string `json:"url"`
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	if !cfg.Enabled() {
		return nil, ErrBillingDisabled
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderStripe:
		return NewStripeProvider(cfg)
	case ProviderPaddle:
		return NewPaddleProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
