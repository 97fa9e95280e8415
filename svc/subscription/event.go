// Package subscription applies billing and admin events to a user's plan
// fields. Transition is pure; Service adds locking, persistence and side effects.
package subscription

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/studykit/svc/plan"
)

type Kind string

const (
	CheckoutCompleted   Kind = "checkout_completed"
	AdminUpgrade        Kind = "admin_upgrade"
	AdminDowngrade      Kind = "admin_downgrade"
	SubscriptionDeleted Kind = "subscription_deleted"
	PaymentFailed       Kind = "payment_failed"
)

// DefaultPeriod is used when the provider does not report a period end.
const DefaultPeriod = 30 * 24 * time.Hour

func (k Kind) Valid() bool {
	switch k {
	case CheckoutCompleted, AdminUpgrade, AdminDowngrade, SubscriptionDeleted, PaymentFailed:
		return true
	}
	return false
}

// matchesByRef reports whether the event targets a user through the provider
// subscription ref rather than the user id.
func (k Kind) matchesByRef() bool {
	return k == SubscriptionDeleted || k == PaymentFailed
}

// Event is a normalized billing or admin event.
type Event struct {
	// ID is the provider event id, empty for admin events.
	ID              string
	Kind            Kind
	UserID          string
	SubscriptionRef string
	CustomerRef     string
	PeriodEnd       *time.Time
	// ActorID is the admin who triggered the event.
	ActorID string
}

func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Kind)
	}
	if e.Kind.matchesByRef() {
		if e.SubscriptionRef == "" {
			return fmt.Errorf("%w: %s requires a subscription ref", ErrInvalidEvent, e.Kind)
		}
		return nil
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: %s requires a user id", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// Transition returns the subscription after e. Writes are absolute, so the
// same event applied twice at the same instant yields the same state.
func Transition(sub plan.Subscription, e Event, now time.Time) (plan.Subscription, error) {
	if err := e.Validate(); err != nil {
		return sub, err
	}

	switch e.Kind {
	case CheckoutCompleted:
		redelivered := sub.Tier == plan.TierPro && sub.Status == plan.StatusActive &&
			e.SubscriptionRef != "" && sub.SubscriptionRef == e.SubscriptionRef && sub.Start != nil

		sub.Tier = plan.TierPro
		sub.Status = plan.StatusActive
		if e.SubscriptionRef != "" {
			sub.SubscriptionRef = e.SubscriptionRef
		}
		if e.CustomerRef != "" {
			sub.CustomerRef = e.CustomerRef
		}
		if !redelivered {
			sub.Start = timePtr(now)
		}
		switch {
		case e.PeriodEnd != nil:
			sub.End = timePtr(*e.PeriodEnd)
		case redelivered && sub.End != nil:
			// A late replay without a period end must not extend access.
		default:
			sub.End = timePtr(now.Add(DefaultPeriod))
		}

	case AdminUpgrade:
		sub.Tier = plan.TierPro
		sub.Status = plan.StatusActive
		sub.Start = timePtr(now)
		sub.End = timePtr(now.Add(DefaultPeriod))

	case AdminDowngrade:
		sub.Tier = plan.TierFree
		sub.Status = plan.StatusCancelled

	case SubscriptionDeleted:
		sub.Tier = plan.TierFree
		sub.Status = plan.StatusCancelled
		sub.SubscriptionRef = ""

	case PaymentFailed:
		// A free user has nothing to mark past due. free/past_due is not a
		// valid state.
		if sub.Tier == plan.TierPro {
			sub.Status = plan.StatusPastDue
		}
	}

	return sub, nil
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
