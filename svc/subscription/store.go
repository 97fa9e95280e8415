package subscription

import (
	"context"

	"github.com/dmitrymomot/studykit/svc/plan"
)

// Owner is the user a subscription belongs to.
type Owner struct {
	UserID       string
	Email        string
	Name         string
	Subscription plan.Subscription
}

// Store runs fn with exclusive access to the rows it locks. Locks are held
// until fn returns.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view of Store. Lock methods return ErrUserNotFound
// when nothing matches.
type Tx interface {
	LockByUserID(ctx context.Context, userID string) (Owner, error)
	LockBySubscriptionRef(ctx context.Context, ref string) (Owner, error)
	Save(ctx context.Context, userID string, sub plan.Subscription) error
}
