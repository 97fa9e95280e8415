// Package quota decides whether a user may create more metered content and
// reports current usage against plan limits.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/studykit/pkg/metrics"
	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/usage"
)

// ResourceFileSize names the upload size limit in ExceededError.
const ResourceFileSize = "file_size"

// Subject is the user being checked.
type Subject struct {
	UserID       string
	Subscription plan.Subscription
}

// Decision is the result of Check. Remaining is plan.Unlimited when there is no cap.
type Decision struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
}

// Gate combines entitlement and usage counts. The check is advisory: two
// concurrent requests may both pass at limit-1 unless the caller serializes them.
type Gate struct {
	catalog plan.Catalog
	counter usage.Counter
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLocation sets the timezone month windows are computed in.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func NewGate(catalog plan.Catalog, counter usage.Counter, opts ...Option) *Gate {
	g := &Gate{
		catalog: catalog,
		counter: counter,
		loc:     time.UTC,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithCounter returns a copy of the gate that counts through c, typically a
// counter bound to an open transaction.
func (g *Gate) WithCounter(c usage.Counter) *Gate {
	cp := *g
	cp.counter = c
	return &cp
}

// Catalog returns the plan catalog the gate evaluates against.
func (g *Gate) Catalog() plan.Catalog {
	return g.catalog
}

func (g *Gate) Check(ctx context.Context, s Subject, r usage.Resource) (Decision, error) {
	return g.check(ctx, s, r, g.now())
}

func (g *Gate) check(ctx context.Context, s Subject, r usage.Resource, now time.Time) (Decision, error) {
	limit, err := limitOf(g.catalog.LimitsFor(s.Subscription, now), r)
	if err != nil {
		return Decision{}, err
	}

	if limit == plan.Unlimited {
		metrics.QuotaDecisions.WithLabelValues(string(r), metrics.OutcomeUnlimited).Inc()
		return Decision{Allowed: true, Remaining: plan.Unlimited}, nil
	}

	used, err := g.count(ctx, s.UserID, r, now)
	if err != nil {
		metrics.QuotaDecisions.WithLabelValues(string(r), metrics.OutcomeError).Inc()
		return Decision{}, err
	}

	if remaining := limit - used; remaining > 0 {
		metrics.QuotaDecisions.WithLabelValues(string(r), metrics.OutcomeAllowed).Inc()
		return Decision{Allowed: true, Remaining: remaining}, nil
	}

	metrics.QuotaDecisions.WithLabelValues(string(r), metrics.OutcomeDenied).Inc()
	return Decision{Allowed: false, Remaining: 0}, nil
}

// Require returns an *ExceededError when the user is out of quota for r.
func (g *Gate) Require(ctx context.Context, s Subject, r usage.Resource) error {
	now := g.now()
	d, err := g.check(ctx, s, r, now)
	if err != nil {
		return err
	}
	if d.Allowed {
		return nil
	}

	limit, _ := limitOf(g.catalog.LimitsFor(s.Subscription, now), r)
	return &ExceededError{Resource: string(r), Limit: limit}
}

// RequireAll checks each resource in order and stops at the first denial.
func (g *Gate) RequireAll(ctx context.Context, s Subject, rs ...usage.Resource) error {
	for _, r := range rs {
		if err := g.Require(ctx, s, r); err != nil {
			return err
		}
	}
	return nil
}

// CheckFileSize reports whether an upload of size bytes fits the plan.
// It never touches storage.
func (g *Gate) CheckFileSize(s Subject, size int64) bool {
	return size <= g.catalog.LimitsFor(s.Subscription, g.now()).MaxFileSizeBytes()
}

func (g *Gate) RequireFileSize(s Subject, size int64) error {
	limits := g.catalog.LimitsFor(s.Subscription, g.now())
	if size <= limits.MaxFileSizeBytes() {
		return nil
	}
	return &ExceededError{Resource: ResourceFileSize, Limit: limits.MaxFileSizeMB}
}

func (g *Gate) count(ctx context.Context, userID string, r usage.Resource, now time.Time) (int64, error) {
	used, err := g.counter.CountSince(ctx, userID, r, usage.WindowStart(now, g.loc))
	if err != nil {
		if errors.Is(err, usage.ErrFailedToCountUsage) {
			return 0, err
		}
		return 0, errors.Join(usage.ErrFailedToCountUsage, err)
	}
	return used, nil
}

func limitOf(l plan.Limits, r usage.Resource) (int64, error) {
	switch r {
	case usage.Documents:
		return l.DocumentsPerMonth, nil
	case usage.Summaries:
		return l.SummariesPerMonth, nil
	case usage.Flashcards:
		return l.FlashcardsPerMonth, nil
	case usage.AIGenerations:
		return l.AIGenerationsPerMonth, nil
	}
	return 0, fmt.Errorf("%w: %q", usage.ErrUnknownResource, r)
}
