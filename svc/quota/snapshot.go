package quota

import (
	"context"
	"time"

	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/usage"
)

type ResourceUsage struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// Snapshot is a point-in-time usage report. Never cache it.
type Snapshot struct {
	Plan               plan.Tier                        `json:"plan"`
	IsPro              bool                             `json:"is_pro"`
	SubscriptionStatus plan.Status                      `json:"subscription_status"`
	SubscriptionEnd    *time.Time                       `json:"subscription_end,omitempty"`
	MaxFileSizeMB      int64                            `json:"max_file_size_mb"`
	WindowStart        time.Time                        `json:"period_start"`
	Resources          map[usage.Resource]ResourceUsage `json:"usage"`
}

// Snapshot evaluates every metered resource at a single instant. Used is
// counted even when the limit is unlimited.
func (g *Gate) Snapshot(ctx context.Context, s Subject) (Snapshot, error) {
	now := g.now()
	limits := g.catalog.LimitsFor(s.Subscription, now)
	isPro := plan.IsPro(s.Subscription, now)

	snap := Snapshot{
		Plan:               s.Subscription.Effective(now),
		IsPro:              isPro,
		SubscriptionStatus: s.Subscription.Status,
		SubscriptionEnd:    s.Subscription.End,
		MaxFileSizeMB:      limits.MaxFileSizeMB,
		WindowStart:        usage.WindowStart(now, g.loc),
		Resources:          make(map[usage.Resource]ResourceUsage, len(usage.Resources)),
	}

	for _, r := range usage.Resources {
		limit, err := limitOf(limits, r)
		if err != nil {
			return Snapshot{}, err
		}
		used, err := g.count(ctx, s.UserID, r, now)
		if err != nil {
			return Snapshot{}, err
		}

		ru := ResourceUsage{Limit: limit, Used: used, Remaining: plan.Unlimited}
		if limit != plan.Unlimited {
			ru.Remaining = max(limit-used, 0)
		}
		snap.Resources[r] = ru
	}

	return snap, nil
}
