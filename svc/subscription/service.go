package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/studykit/pkg/audit"
	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/pkg/metrics"
	"github.com/dmitrymomot/studykit/svc/plan"
)

// Notifier tells the user about a subscription change. Failures are logged
// by the service and never fail the event.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, owner Owner) error
}

// Outcome describes what Apply did.
type Outcome struct {
	Matched bool
	UserID  string
	Before  plan.Subscription
	After   plan.Subscription
}

// Changed reports whether the stored state was modified.
func (o Outcome) Changed() bool {
	return o.Matched && !o.Before.Equal(o.After)
}

type Service struct {
	store    Store
	audit    *audit.Logger
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithAudit(l *audit.Logger) ServiceOption {
	return func(s *Service) {
		s.audit = l
	}
}

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
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

func NewService(store Store, opts ...ServiceOption) *Service {
	if store == nil {
		panic("subscription: store is required")
	}
	s := &Service{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply locks the target user, runs Transition and saves the result in one
// transaction. An event that matches no user is a no-op and returns nil.
func (s *Service) Apply(ctx context.Context, e Event) (Outcome, error) {
	if err := e.Validate(); err != nil {
		metrics.SubscriptionEvents.WithLabelValues(string(e.Kind), "invalid").Inc()
		return Outcome{}, err
	}

	now := s.now().UTC()
	var (
		out   Outcome
		owner Owner
	)

	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if e.Kind.matchesByRef() {
			owner, err = tx.LockBySubscriptionRef(ctx, e.SubscriptionRef)
		} else {
			owner, err = tx.LockByUserID(ctx, e.UserID)
		}
		if err != nil {
			return err
		}

		next, err := Transition(owner.Subscription, e, now)
		if err != nil {
			return err
		}

		out = Outcome{Matched: true, UserID: owner.UserID, Before: owner.Subscription, After: next}
		if !out.Changed() {
			return nil
		}
		return tx.Save(ctx, owner.UserID, next)
	})

	switch {
	case errors.Is(err, ErrUserNotFound):
		metrics.SubscriptionEvents.WithLabelValues(string(e.Kind), "unmatched").Inc()
		s.log.InfoContext(ctx, "subscription event matched no user",
			logger.EventType(string(e.Kind)),
			slog.String("event_id", e.ID),
			slog.String("subscription_ref", e.SubscriptionRef),
			logger.UserID(e.UserID),
		)
		return Outcome{}, nil
	case err != nil:
		metrics.SubscriptionEvents.WithLabelValues(string(e.Kind), "error").Inc()
		return Outcome{}, errors.Join(ErrFailedToApply, fmt.Errorf("%s: %w", e.Kind, err))
	}

	metrics.SubscriptionEvents.WithLabelValues(string(e.Kind), "applied").Inc()
	s.log.InfoContext(ctx, "subscription event applied",
		logger.EventType(string(e.Kind)),
		logger.UserID(out.UserID),
		slog.String("from", describe(out.Before)),
		slog.String("to", describe(out.After)),
	)

	owner.Subscription = out.After
	s.afterCommit(ctx, e, owner, out)
	return out, nil
}

func (s *Service) afterCommit(ctx context.Context, e Event, owner Owner, out Outcome) {
	if s.audit != nil {
		opts := []audit.EventOption{
			audit.WithUser(owner.UserID),
			audit.WithResource("subscription", owner.UserID),
			audit.WithMetadata("from", describe(out.Before)),
			audit.WithMetadata("to", describe(out.After)),
		}
		if e.ActorID != "" {
			opts = append(opts, audit.WithActor(e.ActorID))
		}
		if e.ID != "" {
			opts = append(opts, audit.WithMetadata("provider_event_id", e.ID))
		}
		if err := s.audit.Log(ctx, "subscription."+string(e.Kind), opts...); err != nil {
			s.log.ErrorContext(ctx, "failed to write audit event", logger.Error(err), logger.UserID(owner.UserID))
		}
	}

	if s.notifier != nil && out.Changed() {
		if err := s.notifier.Notify(ctx, e.Kind, owner); err != nil {
			s.log.WarnContext(ctx, "failed to send subscription notification",
				logger.Error(err),
				logger.EventType(string(e.Kind)),
				logger.UserID(owner.UserID),
			)
		}
	}
}

func describe(sub plan.Subscription) string {
	return string(sub.Tier) + "/" + string(sub.Status)
}
