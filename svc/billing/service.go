package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/subscription"
)

// Applier is the subscription state machine entry point.
type Applier interface {
	Apply(ctx context.Context, e subscription.Event) (subscription.Outcome, error)
}

// WebhookResult describes how a delivery was handled.
type WebhookResult string

const (
	WebhookProcessed WebhookResult = "processed"
	WebhookIgnored   WebhookResult = "ignored"
	WebhookDuplicate WebhookResult = "duplicate"
	WebhookUnmatched WebhookResult = "unmatched"
)

type Service struct {
	provider Provider
	accounts AccountStore
	applier  Applier
	deduper  Deduper
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithDeduper(d Deduper) ServiceOption {
	return func(s *Service) {
		s.deduper = d
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = l
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires billing. A nil provider disables checkout, portal and
// webhooks with ErrBillingDisabled.
func NewService(provider Provider, accounts AccountStore, applier Applier, cfg Config, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		accounts: accounts,
		applier:  applier,
		cfg:      cfg,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deduper == nil {
		s.deduper = NewMemoryDeduper(cfg.DedupeTTL)
	}
	return s
}

// ProviderName returns the configured provider, or "none".
func (s *Service) ProviderName() string {
	if s.provider == nil {
		return "none"
	}
	return s.provider.Name()
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// Checkout creates a hosted checkout link for the pro plan. A customer ref
// created by the provider is stored only after the provider call succeeds.
func (s *Service) Checkout(ctx context.Context, userID string) (*CheckoutLink, error) {
	if s.provider == nil {
		return nil, ErrBillingDisabled
	}

	acc, err := s.accounts.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc.Subscription.Status == plan.StatusActive && acc.Subscription.IsPro(s.now()) {
		return nil, ErrAlreadySubscribed
	}

	pctx, cancel := s.withTimeout(ctx)
	defer cancel()

	link, err := s.provider.CreateCheckout(pctx, CheckoutRequest{
		UserID:      acc.UserID,
		Email:       acc.Email,
		Name:        acc.Name,
		CustomerRef: acc.Subscription.CustomerRef,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "checkout creation failed",
			logger.Error(err),
			logger.UserID(userID),
			logger.Component(s.provider.Name()),
		)
		return nil, errors.Join(ErrProviderFailed, err)
	}

	if acc.Subscription.CustomerRef == "" && link.CustomerRef != "" {
		if err := s.accounts.SetCustomerRef(ctx, acc.UserID, link.CustomerRef); err != nil {
			// The checkout webhook carries the customer ref as well.
			s.log.ErrorContext(ctx, "failed to store billing customer ref",
				logger.Error(errors.Join(ErrFailedToSaveCustomer, err)),
				logger.UserID(userID),
			)
		}
	}

	return link, nil
}

// Portal returns the provider's customer portal link.
func (s *Service) Portal(ctx context.Context, userID string) (*PortalLink, error) {
	if s.provider == nil {
		return nil, ErrBillingDisabled
	}

	acc, err := s.accounts.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc.Subscription.CustomerRef == "" {
		return nil, ErrNoBillingAccount
	}

	pctx, cancel := s.withTimeout(ctx)
	defer cancel()

	link, err := s.provider.PortalLink(pctx, acc.Subscription.CustomerRef)
	if err != nil {
		return nil, errors.Join(ErrProviderFailed, err)
	}
	return link, nil
}

// HandleWebhook verifies and applies one delivery. Redelivered event ids are
// skipped. A processing error releases the id so the provider's retry runs.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if s.provider == nil {
		return "", ErrBillingDisabled
	}

	e, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		s.log.WarnContext(ctx, "rejected billing webhook",
			logger.Error(err),
			logger.Component(s.provider.Name()),
		)
		return "", err
	}
	if e == nil {
		return WebhookIgnored, nil
	}

	var key string
	if e.ID != "" {
		key = s.provider.Name() + ":" + e.ID
		claimed, err := s.deduper.Claim(ctx, key)
		switch {
		case err != nil:
			// Transitions are absolute writes, so processing twice is safe.
			s.log.WarnContext(ctx, "webhook dedupe unavailable", logger.Error(err), logger.EventType(string(e.Kind)))
			key = ""
		case !claimed:
			s.log.InfoContext(ctx, "duplicate billing webhook skipped",
				logger.EventType(string(e.Kind)),
				slog.String("event_id", e.ID),
			)
			return WebhookDuplicate, nil
		}
	}

	out, err := s.applier.Apply(ctx, *e)
	if err != nil {
		if key != "" {
			if relErr := s.deduper.Release(ctx, key); relErr != nil {
				s.log.WarnContext(ctx, "failed to release webhook dedupe key", logger.Error(relErr))
			}
		}
		return "", err
	}

	if !out.Matched {
		return WebhookUnmatched, nil
	}
	return WebhookProcessed, nil
}
