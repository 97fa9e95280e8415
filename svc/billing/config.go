package billing

import (
	"strings"
	"time"
)

// Provider names accepted by BILLING_PROVIDER.
const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
)

type Config struct {
	Provider string `env:"BILLING_PROVIDER" envDefault:"stripe"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceID       string `env:"STRIPE_PRICE_ID"`

	PaddleAPIKey        string `env:"PADDLE_API_KEY"`
	PaddleWebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	PaddleEnvironment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	PaddlePriceID       string `env:"PADDLE_PRICE_ID"`

	SuccessURL      string `env:"BILLING_SUCCESS_URL" envDefault:"http://localhost:3000/billing/success"`
	CancelURL       string `env:"BILLING_CANCEL_URL" envDefault:"http://localhost:3000/billing/cancel"`
	PortalReturnURL string `env:"BILLING_PORTAL_RETURN_URL" envDefault:"http://localhost:3000/settings"`

	Timeout   time.Duration `env:"BILLING_TIMEOUT" envDefault:"15s"`
	DedupeTTL time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"72h"`
}

// Enabled reports whether the selected provider has credentials.
func (c Config) Enabled() bool {
	switch strings.ToLower(c.Provider) {
	case ProviderStripe:
		return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
	case ProviderPaddle:
		return c.PaddleAPIKey != "" && c.PaddleWebhookSecret != ""
	}
	return false
}
