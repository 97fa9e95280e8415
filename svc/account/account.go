// Package account registers users, verifies credentials and edits profiles.
// Plan fields are read here but only changed by the subscription service.
package account

import (
	"context"
	"time"

	"github.com/dmitrymomot/studykit/svc/plan"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `json:"is_admin"`
	plan.Subscription
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registration is the sign-up form.
type Registration struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// ProfileUpdate holds the editable profile fields. Nil fields are unchanged.
type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type Store interface {
	// Create returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, u User, passwordHash string) error
	ByID(ctx context.Context, id string) (User, error)
	// ByEmail returns the user and password hash.
	ByEmail(ctx context.Context, email string) (User, string, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error)
}
