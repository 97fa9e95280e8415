package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/svc/plan"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt rejects longer input
	maxUsernameLength = 150
	maxNameLength     = 150
)

type Service struct {
	store      Store
	bcryptCost int
	log        *slog.Logger
	now        func() time.Time
	dummyHash  []byte
}

type Option func(*Service)

func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		bcryptCost: bcrypt.DefaultCost,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Compared against when the email is unknown so both paths cost one bcrypt check.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("studykit-placeholder"), s.bcryptCost)
	return s
}

// NormalizeEmail trims and case-folds an email address.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// Register validates the form and creates a free, active user.
func (s *Service) Register(ctx context.Context, r Registration) (User, error) {
	email := NormalizeEmail(r.Email)
	username := strings.TrimSpace(r.Username)

	verr := apperr.NewValidationError()
	switch {
	case email == "":
		verr.Add("email", "This field is required.")
	default:
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			verr.Add("email", "Enter a valid email address.")
		}
	}
	switch {
	case username == "":
		verr.Add("username", "This field is required.")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		verr.Add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", maxUsernameLength))
	}
	switch {
	case r.Password == "":
		verr.Add("password", "This field is required.")
	case len(r.Password) < minPasswordLength:
		verr.Add("password", fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLength))
	case len(r.Password) > maxPasswordLength:
		verr.Add("password", fmt.Sprintf("This password is too long. It must contain at most %d bytes.", maxPasswordLength))
	case r.Password != r.PasswordConfirm:
		verr.Add("password", "Password fields didn't match.")
	}
	validateName(verr, "first_name", r.FirstName)
	validateName(verr, "last_name", r.LastName)
	if err := verr.Err(); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		Subscription: plan.Default(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, u, string(hash)); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, apperr.Field("email", "A user with this email already exists.")
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.InfoContext(ctx, "user registered", logger.UserID(u.ID))
	return u, nil
}

// Authenticate returns ErrInvalidCredentials for any mismatch so callers
// cannot tell unknown emails from wrong passwords.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, hash, err := s.store.ByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.ByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error) {
	verr := apperr.NewValidationError()
	if p.Username != nil {
		v := strings.TrimSpace(*p.Username)
		switch {
		case v == "":
			verr.Add("username", "This field may not be blank.")
		case utf8.RuneCountInString(v) > maxUsernameLength:
			verr.Add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", maxUsernameLength))
		}
		p.Username = &v
	}
	if p.FirstName != nil {
		v := strings.TrimSpace(*p.FirstName)
		validateName(verr, "first_name", v)
		p.FirstName = &v
	}
	if p.LastName != nil {
		v := strings.TrimSpace(*p.LastName)
		validateName(verr, "last_name", v)
		p.LastName = &v
	}
	if err := verr.Err(); err != nil {
		return User{}, err
	}

	return s.store.UpdateProfile(ctx, id, p)
}

func validateName(verr apperr.ValidationError, field, v string) {
	if utf8.RuneCountInString(strings.TrimSpace(v)) > maxNameLength {
		verr.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength))
	}
}
