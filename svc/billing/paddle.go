package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/studykit/svc/subscription"
)

// Paddle webhook event types mapped to subscription events.
const (
	paddleTransactionCompleted = "transaction.completed"
	paddleSubscriptionCanceled = "subscription.canceled"
	paddlePaymentFailed        = "transaction.payment_failed"
)

// PaddleProvider is the alternative billing backend.
type PaddleProvider struct {
	priceID string

	checkout func(ctx context.Context, req *paddle.CreateTransactionRequest) (*CheckoutLink, error)
	portal   func(ctx context.Context, req *paddle.CreateCustomerPortalSessionRequest) (string, error)
	verify   func(r *http.Request) (bool, error)
}

type PaddleOption func(*PaddleProvider)

// WithPaddleCheckoutFunc replaces the transaction creation call.
func WithPaddleCheckoutFunc(fn func(ctx context.Context, req *paddle.CreateTransactionRequest) (*CheckoutLink, error)) PaddleOption {
	return func(p *PaddleProvider) {
		p.checkout = fn
	}
}

// WithPaddlePortalFunc replaces the customer portal session call.
func WithPaddlePortalFunc(fn func(ctx context.Context, req *paddle.CreateCustomerPortalSessionRequest) (string, error)) PaddleOption {
	return func(p *PaddleProvider) {
		p.portal = fn
	}
}

// WithPaddleVerifier replaces webhook signature verification.
func WithPaddleVerifier(fn func(r *http.Request) (bool, error)) PaddleOption {
	return func(p *PaddleProvider) {
		p.verify = fn
	}
}

func NewPaddleProvider(cfg Config, opts ...PaddleOption) (*PaddleProvider, error) {
	if cfg.PaddleAPIKey == "" || cfg.PaddleWebhookSecret == "" {
		return nil, ErrBillingDisabled
	}
	if cfg.PaddlePriceID == "" {
		return nil, ErrMissingPriceID
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.PaddleEnvironment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.PaddleAPIKey)
	case "production", "":
		client, err = paddle.New(cfg.PaddleAPIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.PaddleEnvironment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	verifier := paddle.NewWebhookVerifier(cfg.PaddleWebhookSecret)

	p := &PaddleProvider{
		priceID: cfg.PaddlePriceID,
		checkout: func(ctx context.Context, req *paddle.CreateTransactionRequest) (*CheckoutLink, error) {
			tx, err := client.TransactionsClient.CreateTransaction(ctx, req)
			if err != nil {
				return nil, err
			}
			if tx.Checkout == nil || tx.Checkout.URL == nil {
				return nil, errors.New("no checkout URL returned from paddle")
			}
			return &CheckoutLink{URL: *tx.Checkout.URL, SessionID: tx.ID}, nil
		},
		portal: func(ctx context.Context, req *paddle.CreateCustomerPortalSessionRequest) (string, error) {
			session, err := client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, req)
			if err != nil {
				return "", err
			}
			return session.URLs.General.Overview, nil
		},
		verify: verifier.Verify,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *PaddleProvider) Name() string {
	return ProviderPaddle
}

// CreateCheckout creates a transaction for the pro price. Paddle assigns the
// customer during checkout, so the ref arrives with transaction.completed.
func (p *PaddleProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.priceID,
		Quantity: 1,
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			metadataUserID: req.UserID,
			"email":        req.Email,
		},
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)}
	}

	link, err := p.checkout(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("create paddle transaction: %w", err)
	}
	link.CustomerRef = req.CustomerRef
	return link, nil
}

func (p *PaddleProvider) PortalLink(ctx context.Context, customerRef string) (*PortalLink, error) {
	if customerRef == "" {
		return nil, ErrNoBillingAccount
	}

	url, err := p.portal(ctx, &paddle.CreateCustomerPortalSessionRequest{CustomerID: customerRef})
	if err != nil {
		return nil, fmt.Errorf("create paddle portal session: %w", err)
	}
	if url == "" {
		return nil, errors.New("no portal URL returned from paddle")
	}
	return &PortalLink{URL: url}, nil
}

type paddleNotification struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type paddleEntity struct {
	ID             string         `json:"id"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	CustomData     map[string]any `json:"custom_data"`
	BillingPeriod  *struct {
		EndsAt time.Time `json:"ends_at"`
	} `json:"billing_period"`
}

func (e paddleEntity) userID() string {
	if v, ok := e.CustomData[metadataUserID].(string); ok {
		return v
	}
	return ""
}

func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*subscription.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, ErrInvalidSignature
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	var data paddleEntity
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
	}

	switch n.EventType {
	case paddleTransactionCompleted:
		userID := data.userID()
		if userID == "" {
			return nil, nil
		}
		e := &subscription.Event{
			ID:              n.EventID,
			Kind:            subscription.CheckoutCompleted,
			UserID:          userID,
			SubscriptionRef: data.SubscriptionID,
			CustomerRef:     data.CustomerID,
		}
		if data.BillingPeriod != nil && !data.BillingPeriod.EndsAt.IsZero() {
			end := data.BillingPeriod.EndsAt.UTC()
			e.PeriodEnd = &end
		}
		return e, nil

	case paddleSubscriptionCanceled:
		if data.ID == "" {
			return nil, ErrInvalidPayload
		}
		return &subscription.Event{
			ID:              n.EventID,
			Kind:            subscription.SubscriptionDeleted,
			SubscriptionRef: data.ID,
			CustomerRef:     data.CustomerID,
		}, nil

	case paddlePaymentFailed:
		if data.SubscriptionID == "" {
			return nil, nil
		}
		return &subscription.Event{
			ID:              n.EventID,
			Kind:            subscription.PaymentFailed,
			SubscriptionRef: data.SubscriptionID,
			CustomerRef:     data.CustomerID,
		}, nil
	}

	return nil, nil
}
