package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	stripesubscription "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/studykit/svc/subscription"
)

// Stripe webhook event types mapped to subscription events.
const (
	stripeCheckoutCompleted   = "checkout.session.completed"
	stripeSubscriptionDeleted = "customer.subscription.deleted"
	stripePaymentFailed       = "invoice.payment_failed"
)

const metadataUserID = "user_id"

var errNoPeriodEnd = errors.New("subscription has no current period end")

// StripeProvider is the default billing backend.
type StripeProvider struct {
	priceID       string
	webhookSecret string
	portalReturn  string

	newCustomer      func(*stripe.CustomerParams) (*stripe.Customer, error)
	newCheckout      func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newPortalSession func(*stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	periodEnd        func(ctx context.Context, subscriptionRef string) (*time.Time, error)
}

type StripeOption func(*StripeProvider)

// WithStripeCustomerFunc replaces the customer creation call.
func WithStripeCustomerFunc(fn func(*stripe.CustomerParams) (*stripe.Customer, error)) StripeOption {
	return func(p *StripeProvider) {
		p.newCustomer = fn
	}
}

// WithStripeCheckoutFunc replaces the checkout session creation call.
func WithStripeCheckoutFunc(fn func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)) StripeOption {
	return func(p *StripeProvider) {
		p.newCheckout = fn
	}
}

// WithStripePortalFunc replaces the billing portal session call.
func WithStripePortalFunc(fn func(*stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)) StripeOption {
	return func(p *StripeProvider) {
		p.newPortalSession = fn
	}
}

// WithStripePeriodEndFunc replaces the subscription lookup used to read the
// current period end after checkout.
func WithStripePeriodEndFunc(fn func(ctx context.Context, subscriptionRef string) (*time.Time, error)) StripeOption {
	return func(p *StripeProvider) {
		p.periodEnd = fn
	}
}

func NewStripeProvider(cfg Config, opts ...StripeOption) (*StripeProvider, error) {
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		return nil, ErrBillingDisabled
	}
	if cfg.StripePriceID == "" {
		return nil, ErrMissingPriceID
	}

	stripe.Key = strings.TrimSpace(cfg.StripeSecretKey)

	p := &StripeProvider{
		priceID:          cfg.StripePriceID,
		webhookSecret:    cfg.StripeWebhookSecret,
		portalReturn:     cfg.PortalReturnURL,
		newCustomer:      customer.New,
		newCheckout:      checkoutsession.New,
		newPortalSession: portalsession.New,
		periodEnd:        stripePeriodEnd,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *StripeProvider) Name() string {
	return ProviderStripe
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	customerRef := req.CustomerRef
	if customerRef == "" {
		params := &stripe.CustomerParams{
			Email:    stripe.String(req.Email),
			Metadata: map[string]string{metadataUserID: req.UserID},
		}
		if req.Name != "" {
			params.Name = stripe.String(req.Name)
		}
		params.Context = ctx

		c, err := p.newCustomer(params)
		if err != nil {
			return nil, fmt.Errorf("create stripe customer: %w", err)
		}
		customerRef = c.ID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerRef),
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: req.UserID},
		},
		Metadata: map[string]string{metadataUserID: req.UserID},
	}
	params.Context = ctx

	session, err := p.newCheckout(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}

	return &CheckoutLink{URL: session.URL, SessionID: session.ID, CustomerRef: customerRef}, nil
}

func (p *StripeProvider) PortalLink(ctx context.Context, customerRef string) (*PortalLink, error) {
	if customerRef == "" {
		return nil, ErrNoBillingAccount
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerRef),
		ReturnURL: stripe.String(p.portalReturn),
	}
	params.Context = ctx

	session, err := p.newPortalSession(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe portal session: %w", err)
	}
	return &PortalLink{URL: session.URL}, nil
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (inv stripeInvoice) subscriptionRef() string {
	if inv.Subscription != "" {
		return inv.Subscription
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return inv.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

func (p *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*subscription.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, ErrInvalidPayload
	}

	switch string(event.Type) {
	case stripeCheckoutCompleted:
		var s stripeCheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		if s.Mode != "" && s.Mode != string(stripe.CheckoutSessionModeSubscription) {
			return nil, nil
		}

		userID := s.Metadata[metadataUserID]
		if userID == "" {
			userID = s.ClientReferenceID
		}
		// Sessions without a user id were not created by this service.
		if userID == "" {
			return nil, nil
		}

		e := &subscription.Event{
			ID:              event.ID,
			Kind:            subscription.CheckoutCompleted,
			UserID:          userID,
			SubscriptionRef: s.Subscription,
			CustomerRef:     s.Customer,
		}
		if s.Subscription != "" {
			// A failed lookup leaves PeriodEnd nil and the state machine
			// applies the default period.
			if end, err := p.periodEnd(ctx, s.Subscription); err == nil {
				e.PeriodEnd = end
			}
		}
		return e, nil

	case stripeSubscriptionDeleted:
		var s stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		if s.ID == "" {
			return nil, ErrInvalidPayload
		}
		return &subscription.Event{
			ID:              event.ID,
			Kind:            subscription.SubscriptionDeleted,
			SubscriptionRef: s.ID,
			CustomerRef:     s.Customer,
		}, nil

	case stripePaymentFailed:
		var inv stripeInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		ref := inv.subscriptionRef()
		if ref == "" {
			return nil, nil
		}
		return &subscription.Event{
			ID:              event.ID,
			Kind:            subscription.PaymentFailed,
			SubscriptionRef: ref,
			CustomerRef:     inv.Customer,
		}, nil
	}

	return nil, nil
}

// stripePeriodEnd reads the latest current_period_end across the
// subscription's items.
func stripePeriodEnd(ctx context.Context, subscriptionRef string) (*time.Time, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := stripesubscription.Get(subscriptionRef, params)
	if err != nil {
		return nil, err
	}

	var end int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	if end == 0 {
		return nil, errNoPeriodEnd
	}

	t := time.Unix(end, 0).UTC()
	return &t, nil
}
