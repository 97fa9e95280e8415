// Package plan resolves a user's entitlement from stored subscription fields.
// Everything here is pure: the caller supplies the clock.
package plan

import (
	"fmt"
	"time"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro
}

func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Status is the billing status. The set is closed.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusPastDue   Status = "past_due"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusPastDue, StatusExpired:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	v := Status(s)
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return v, nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// grantsAccess reports whether a pro subscription in this status keeps its
// entitlement. past_due keeps access until the period end.
func (s Status) grantsAccess() bool {
	return s == StatusActive || s == StatusPastDue
}

// Subscription is the subscription slice of a user row.
type Subscription struct {
	Tier            Tier       `json:"plan_tier"`
	Status          Status     `json:"subscription_status"`
	Start           *time.Time `json:"subscription_start,omitempty"`
	End             *time.Time `json:"subscription_end,omitempty"`
	CustomerRef     string     `json:"-"`
	SubscriptionRef string     `json:"-"`
}

// Default is the state of a freshly registered user.
func Default() Subscription {
	return Subscription{Tier: TierFree, Status: StatusActive}
}

// IsPro reports whether sub grants pro entitlement at now. The stored tier
// alone is only a candidate: status and period end are checked every time.
func IsPro(sub Subscription, now time.Time) bool {
	if sub.Tier != TierPro || !sub.Status.grantsAccess() {
		return false
	}
	return sub.End == nil || now.Before(*sub.End)
}

// IsPro is shorthand for the package-level IsPro.
func (s Subscription) IsPro(now time.Time) bool {
	return IsPro(s, now)
}

// Effective returns the tier the user is entitled to at now.
func (s Subscription) Effective(now time.Time) Tier {
	if IsPro(s, now) {
		return TierPro
	}
	return TierFree
}

// Equal compares by value, including the period timestamps.
func (s Subscription) Equal(o Subscription) bool {
	return s.Tier == o.Tier &&
		s.Status == o.Status &&
		s.CustomerRef == o.CustomerRef &&
		s.SubscriptionRef == o.SubscriptionRef &&
		timeEqual(s.Start, o.Start) &&
		timeEqual(s.End, o.End)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
