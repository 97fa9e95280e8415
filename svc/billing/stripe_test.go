package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/studykit/svc/billing"
	"github.com/dmitrymomot/studykit/svc/subscription"
)

const stripeSecret = "whsec_test_123"

func stripeConfig() billing.Config {
	return billing.Config{
		Provider:            billing.ProviderStripe,
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: stripeSecret,
		StripePriceID:       "price_pro",
		PortalReturnURL:     "https://app.example.com/settings",
	}
}

func signStripe(t *testing.T, secret string, event map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func stripeEvent(id, typ string, object map[string]any) map[string]any {
	return map[string]any{
		"id":     id,
		"object": "event",
		"type":   typ,
		"data":   map[string]any{"object": object},
	}
}

func TestStripeParseWebhook(t *testing.T) {
	t.Parallel()

	periodEnd := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)

	p, err := billing.NewStripeProvider(stripeConfig(),
		billing.WithStripePeriodEndFunc(func(_ context.Context, ref string) (*time.Time, error) {
			if ref == "sub_missing" {
				return nil, errors.New("no such subscription")
			}
			return &periodEnd, nil
		}),
	)
	require.NoError(t, err)

	tests := []struct {
		name  string
		event map[string]any
		want  *subscription.Event
	}{
		{
			name: "checkout completed",
			event: stripeEvent("evt_1", "checkout.session.completed", map[string]any{
				"id":           "cs_1",
				"mode":         "subscription",
				"customer":     "cus_1",
				"subscription": "sub_1",
				"metadata":     map[string]any{"user_id": "u1"},
			}),
			want: &subscription.Event{
				ID:              "evt_1",
				Kind:            subscription.CheckoutCompleted,
				UserID:          "u1",
				SubscriptionRef: "sub_1",
				CustomerRef:     "cus_1",
				PeriodEnd:       &periodEnd,
			},
		},
		{
			name: "checkout completed with client reference and failed lookup",
			event: stripeEvent("evt_2", "checkout.session.completed", map[string]any{
				"id":                  "cs_2",
				"mode":                "subscription",
				"customer":            "cus_2",
				"subscription":        "sub_missing",
				"client_reference_id": "u2",
			}),
			want: &subscription.Event{
				ID:              "evt_2",
				Kind:            subscription.CheckoutCompleted,
				UserID:          "u2",
				SubscriptionRef: "sub_missing",
				CustomerRef:     "cus_2",
			},
		},
		{
			name: "checkout without user is ignored",
			event: stripeEvent("evt_3", "checkout.session.completed", map[string]any{
				"id":   "cs_3",
				"mode": "subscription",
			}),
		},
		{
			name: "payment mode checkout is ignored",
			event: stripeEvent("evt_4", "checkout.session.completed", map[string]any{
				"id":       "cs_4",
				"mode":     "payment",
				"metadata": map[string]any{"user_id": "u1"},
			}),
		},
		{
			name: "subscription deleted",
			event: stripeEvent("evt_5", "customer.subscription.deleted", map[string]any{
				"id":       "sub_1",
				"customer": "cus_1",
			}),
			want: &subscription.Event{
				ID:              "evt_5",
				Kind:            subscription.SubscriptionDeleted,
				SubscriptionRef: "sub_1",
				CustomerRef:     "cus_1",
			},
		},
		{
			name: "payment failed with top level subscription",
			event: stripeEvent("evt_6", "invoice.payment_failed", map[string]any{
				"id":           "in_1",
				"customer":     "cus_1",
				"subscription": "sub_1",
			}),
			want: &subscription.Event{
				ID:              "evt_6",
				Kind:            subscription.PaymentFailed,
				SubscriptionRef: "sub_1",
				CustomerRef:     "cus_1",
			},
		},
		{
			name: "payment failed with parent subscription details",
			event: stripeEvent("evt_7", "invoice.payment_failed", map[string]any{
				"id":       "in_2",
				"customer": "cus_1",
				"parent": map[string]any{
					"subscription_details": map[string]any{"subscription": "sub_9"},
				},
			}),
			want: &subscription.Event{
				ID:              "evt_7",
				Kind:            subscription.PaymentFailed,
				SubscriptionRef: "sub_9",
				CustomerRef:     "cus_1",
			},
		},
		{
			name: "invoice without subscription is ignored",
			event: stripeEvent("evt_8", "invoice.payment_failed", map[string]any{
				"id": "in_3",
			}),
		},
		{
			name:  "unhandled type is ignored",
			event: stripeEvent("evt_9", "customer.created", map[string]any{"id": "cus_1"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload, sig := signStripe(t, stripeSecret, tt.event)

			got, err := p.ParseWebhook(context.Background(), payload, sig)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	p, err := billing.NewStripeProvider(stripeConfig())
	require.NoError(t, err)

	event := stripeEvent("evt_1", "customer.subscription.deleted", map[string]any{"id": "sub_1"})

	payload, sig := signStripe(t, "whsec_wrong", event)
	_, err = p.ParseWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	_, err = p.ParseWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestStripeCreateCheckout(t *testing.T) {
	t.Parallel()

	t.Run("creates customer first", func(t *testing.T) {
		t.Parallel()

		var (
			customerParams *stripe.CustomerParams
			sessionParams  *stripe.CheckoutSessionParams
		)
		p, err := billing.NewStripeProvider(stripeConfig(),
			billing.WithStripeCustomerFunc(func(params *stripe.CustomerParams) (*stripe.Customer, error) {
				customerParams = params
				return &stripe.Customer{ID: "cus_new"}, nil
			}),
			billing.WithStripeCheckoutFunc(func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				sessionParams = params
				return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil
			}),
		)
		require.NoError(t, err)

		link, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{
			UserID:     "u1",
			Email:      "ann@example.com",
			SuccessURL: "https://app/success",
			CancelURL:  "https://app/cancel",
		})
		require.NoError(t, err)

		assert.Equal(t, "cus_new", link.CustomerRef)
		assert.Equal(t, "https://checkout.stripe.com/cs_1", link.URL)
		assert.Equal(t, "cs_1", link.SessionID)

		require.NotNil(t, customerParams)
		assert.Equal(t, "ann@example.com", *customerParams.Email)
		assert.Equal(t, "u1", customerParams.Metadata["user_id"])

		require.NotNil(t, sessionParams)
		assert.Equal(t, "cus_new", *sessionParams.Customer)
		assert.Equal(t, "u1", *sessionParams.ClientReferenceID)
		assert.Equal(t, "u1", sessionParams.Metadata["user_id"])
		assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *sessionParams.Mode)
		require.Len(t, sessionParams.LineItems, 1)
		assert.Equal(t, "price_pro", *sessionParams.LineItems[0].Price)
	})

	t.Run("reuses existing customer", func(t *testing.T) {
		t.Parallel()

		p, err := billing.NewStripeProvider(stripeConfig(),
			billing.WithStripeCustomerFunc(func(*stripe.CustomerParams) (*stripe.Customer, error) {
				t.Error("customer must not be created")
				return nil, errors.New("unexpected")
			}),
			billing.WithStripeCheckoutFunc(func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				assert.Equal(t, "cus_old", *params.Customer)
				return &stripe.CheckoutSession{ID: "cs_2", URL: "https://checkout.stripe.com/cs_2"}, nil
			}),
		)
		require.NoError(t, err)

		link, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{UserID: "u1", CustomerRef: "cus_old"})
		require.NoError(t, err)
		assert.Equal(t, "cus_old", link.CustomerRef)
	})

	t.Run("checkout failure", func(t *testing.T) {
		t.Parallel()

		p, err := billing.NewStripeProvider(stripeConfig(),
			billing.WithStripeCheckoutFunc(func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				return nil, errors.New("card declined")
			}),
		)
		require.NoError(t, err)

		_, err = p.CreateCheckout(context.Background(), billing.CheckoutRequest{UserID: "u1", CustomerRef: "cus_old"})
		assert.Error(t, err)
	})
}

func TestStripePortalLink(t *testing.T) {
	t.Parallel()

	p, err := billing.NewStripeProvider(stripeConfig(),
		billing.WithStripePortalFunc(func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
			assert.Equal(t, "cus_1", *params.Customer)
			assert.Equal(t, "https://app.example.com/settings", *params.ReturnURL)
			return &stripe.BillingPortalSession{URL: "https://billing.stripe.com/p/1"}, nil
		}),
	)
	require.NoError(t, err)

	link, err := p.PortalLink(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/p/1", link.URL)

	_, err = p.PortalLink(context.Background(), "")
	assert.ErrorIs(t, err, billing.ErrNoBillingAccount)
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	_, err := billing.NewProvider(billing.Config{Provider: billing.ProviderStripe})
	assert.ErrorIs(t, err, billing.ErrBillingDisabled)

	cfg := stripeConfig()
	cfg.StripePriceID = ""
	_, err = billing.NewProvider(cfg)
	assert.ErrorIs(t, err, billing.ErrMissingPriceID)

	p, err := billing.NewProvider(stripeConfig())
	require.NoError(t, err)
	assert.Equal(t, billing.ProviderStripe, p.Name())
}
