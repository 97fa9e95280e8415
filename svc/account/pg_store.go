package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/studykit/pkg/pg"
	"github.com/dmitrymomot/studykit/svc/plan"
)

// UserColumns is the select list ScanUser expects.
const UserColumns = `id, email, username, first_name, last_name, is_admin, plan_tier, subscription_status,
	subscription_start, subscription_end, coalesce(billing_customer_ref, ''), coalesce(billing_subscription_ref, ''),
	created_at, updated_at`

// ScanUser reads one row selected with UserColumns.
func ScanUser(row pgx.Row, extra ...any) (User, error) {
	var (
		u            User
		tier, status string
	)
	dest := []any{
		&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.IsAdmin, &tier, &status,
		&u.Start, &u.End, &u.CustomerRef, &u.SubscriptionRef,
		&u.CreatedAt, &u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if pg.IsNotFoundError(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	var err error
	if u.Tier, err = plan.ParseTier(tier); err != nil {
		return User{}, err
	}
	if u.Status, err = plan.ParseStatus(status); err != nil {
		return User{}, err
	}
	return u, nil
}

type PGStore struct {
	db pg.DBTX
}

func NewPGStore(db pg.DBTX) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, u User, passwordHash string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO users (id, email, username, first_name, last_name, password_hash, plan_tier, subscription_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		u.ID, u.Email, u.Username, u.FirstName, u.LastName, passwordHash, string(u.Tier), string(u.Status), u.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PGStore) ByID(ctx context.Context, id string) (User, error) {
	u, err := ScanUser(s.db.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, err
}

func (s *PGStore) ByEmail(ctx context.Context, email string) (User, string, error) {
	var hash string
	u, err := ScanUser(s.db.QueryRow(ctx,
		`SELECT `+UserColumns+`, password_hash FROM users WHERE lower(email) = lower($1)`, email), &hash)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, "", err
		}
		return User{}, "", fmt.Errorf("get user by email: %w", err)
	}
	return u, hash, nil
}

func (s *PGStore) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error) {
	u, err := ScanUser(s.db.QueryRow(ctx, `
UPDATE users SET
	username = coalesce($2, username),
	first_name = coalesce($3, first_name),
	last_name = coalesce($4, last_name),
	updated_at = now()
WHERE id = $1
RETURNING `+UserColumns, id, p.Username, p.FirstName, p.LastName))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, err
}
