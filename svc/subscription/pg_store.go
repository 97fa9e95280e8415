package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/studykit/pkg/pg"
	"github.com/dmitrymomot/studykit/svc/plan"
)

const ownerColumns = `id, email, trim(first_name || ' ' || last_name), plan_tier, subscription_status,
	subscription_start, subscription_end, coalesce(billing_customer_ref, ''), coalesce(billing_subscription_ref, '')`

// PGStore serializes writes per user with SELECT ... FOR UPDATE.
type PGStore struct {
	db pg.TxBeginner
}

func NewPGStore(db pg.TxBeginner) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockByUserID(ctx context.Context, userID string) (Owner, error) {
	return t.lock(ctx, `SELECT `+ownerColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID)
}

func (t *pgTx) LockBySubscriptionRef(ctx context.Context, ref string) (Owner, error) {
	return t.lock(ctx, `SELECT `+ownerColumns+` FROM users WHERE billing_subscription_ref = $1 FOR UPDATE`, ref)
}

func (t *pgTx) lock(ctx context.Context, query string, arg string) (Owner, error) {
	var (
		o              Owner
		tier, status   string
		customer, subs string
	)
	err := t.tx.QueryRow(ctx, query, arg).Scan(
		&o.UserID, &o.Email, &o.Name, &tier, &status,
		&o.Subscription.Start, &o.Subscription.End, &customer, &subs,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Owner{}, ErrUserNotFound
		}
		return Owner{}, fmt.Errorf("lock user: %w", err)
	}

	if o.Subscription.Tier, err = plan.ParseTier(tier); err != nil {
		return Owner{}, err
	}
	if o.Subscription.Status, err = plan.ParseStatus(status); err != nil {
		return Owner{}, err
	}
	o.Subscription.CustomerRef = customer
	o.Subscription.SubscriptionRef = subs
	return o, nil
}

func (t *pgTx) Save(ctx context.Context, userID string, sub plan.Subscription) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE users SET
	plan_tier = $2,
	subscription_status = $3,
	subscription_start = $4,
	subscription_end = $5,
	billing_customer_ref = nullif($6, ''),
	billing_subscription_ref = nullif($7, ''),
	updated_at = now()
WHERE id = $1`,
		userID, string(sub.Tier), string(sub.Status), sub.Start, sub.End, sub.CustomerRef, sub.SubscriptionRef,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Join(ErrUserNotFound, pgx.ErrNoRows)
	}
	return nil
}
