package billing

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/studykit/pkg/pg"
	"github.com/dmitrymomot/studykit/svc/plan"
)

// Account is the billing view of a user.
type Account struct {
	UserID       string
	Email        string
	Name         string
	Subscription plan.Subscription
}

type AccountStore interface {
	// Account returns ErrAccountNotFound when the user does not exist.
	Account(ctx context.Context, userID string) (Account, error)
	// SetCustomerRef stores ref unless the user already has one.
	SetCustomerRef(ctx context.Context, userID, ref string) error
}

type PGAccountStore struct {
	db pg.DBTX
}

func NewPGAccountStore(db pg.DBTX) *PGAccountStore {
	return &PGAccountStore{db: db}
}

func (s *PGAccountStore) Account(ctx context.Context, userID string) (Account, error) {
	var (
		a            Account
		tier, status string
	)
	err := s.db.QueryRow(ctx, `
SELECT id, email, trim(first_name || ' ' || last_name), plan_tier, subscription_status,
	subscription_start, subscription_end, coalesce(billing_customer_ref, ''), coalesce(billing_subscription_ref, '')
FROM users WHERE id = $1`, userID).Scan(
		&a.UserID, &a.Email, &a.Name, &tier, &status,
		&a.Subscription.Start, &a.Subscription.End, &a.Subscription.CustomerRef, &a.Subscription.SubscriptionRef,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("load billing account: %w", err)
	}

	if a.Subscription.Tier, err = plan.ParseTier(tier); err != nil {
		return Account{}, err
	}
	if a.Subscription.Status, err = plan.ParseStatus(status); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *PGAccountStore) SetCustomerRef(ctx context.Context, userID, ref string) error {
	_, err := s.db.Exec(ctx, `
UPDATE users SET billing_customer_ref = $2, updated_at = now()
WHERE id = $1 AND billing_customer_ref IS NULL`, userID, ref)
	if err != nil {
		return fmt.Errorf("set billing customer ref: %w", err)
	}
	return nil
}
