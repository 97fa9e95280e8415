package admin

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/pkg/audit"
	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/subscription"
)

type Store interface {
	Dashboard(ctx context.Context, since time.Time) (DashboardStats, error)
	ContentStats(ctx context.Context, topN int) (ContentStats, error)
	ListUsers(ctx context.Context, search string, limit, offset int) ([]account.User, int64, error)
	GetUser(ctx context.Context, id string) (account.User, error)
	// UpdateUser changes profile fields and the admin flag. Plan fields are
	// ignored.
	UpdateUser(ctx context.Context, id string, u UserUpdate, at time.Time) (account.User, error)
}

// Applier runs subscription events. *subscription.Service implements it.
type Applier interface {
	Apply(ctx context.Context, e subscription.Event) (subscription.Outcome, error)
}

var _ Applier = (*subscription.Service)(nil)

type Service struct {
	store Store
	subs  Applier
	audit *audit.Logger
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Service)

// WithAudit enables the history section of user details and records
// profile edits.
func WithAudit(l *audit.Logger) Option {
	return func(s *Service) {
		s.audit = l
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

func NewService(store Store, subs Applier, opts ...Option) *Service {
	s := &Service{
		store: store,
		subs:  subs,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Dashboard(ctx context.Context) (DashboardStats, error) {
	return s.store.Dashboard(ctx, s.now().Add(-RecentWindow))
}

func (s *Service) ContentStats(ctx context.Context) (ContentStats, error) {
	return s.store.ContentStats(ctx, topUsersLimit)
}

// ListUsers returns one page of users, newest first.
func (s *Service) ListUsers(ctx context.Context, q UserQuery) (UserPage, error) {
	q = q.normalize()
	users, total, err := s.store.ListUsers(ctx, strings.TrimSpace(q.Search), q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return UserPage{}, err
	}
	return UserPage{Count: total, Page: q.Page, PageSize: q.PageSize, Results: users}, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (UserDetail, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}

	detail := UserDetail{User: u, History: []audit.Event{}}
	if s.audit != nil {
		events, err := s.audit.Find(ctx, audit.Criteria{UserID: id, Limit: historyLimit})
		if err != nil {
			s.log.WarnContext(ctx, "failed to load audit history", logger.Error(err), logger.UserID(id))
		} else if events != nil {
			detail.History = events
		}
	}
	return detail, nil
}

// UpdateUser applies profile edits, then moves the plan through the
// subscription state machine when PlanTier is set.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, u UserUpdate) (account.User, error) {
	if err := validateUpdate(&u); err != nil {
		return account.User{}, err
	}

	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return account.User{}, err
	}

	if u.profileChanged() {
		if user, err = s.store.UpdateUser(ctx, id, u, s.now().UTC()); err != nil {
			return account.User{}, err
		}
		if s.audit != nil {
			opts := []audit.EventOption{
				audit.WithUser(id),
				audit.WithActor(actorID),
				audit.WithResource("user", id),
			}
			if u.IsAdmin != nil {
				opts = append(opts, audit.WithMetadata("is_admin", *u.IsAdmin))
			}
			if err := s.audit.Log(ctx, "admin.user_updated", opts...); err != nil {
				s.log.ErrorContext(ctx, "failed to write audit event", logger.Error(err), logger.UserID(id))
			}
		}
	}

	if u.PlanTier != nil {
		kind := subscription.AdminDowngrade
		if *u.PlanTier == plan.TierPro {
			kind = subscription.AdminUpgrade
		}
		out, err := s.subs.Apply(ctx, subscription.Event{Kind: kind, UserID: id, ActorID: actorID})
		if err != nil {
			if errors.Is(err, subscription.ErrUserNotFound) {
				return account.User{}, ErrUserNotFound
			}
			return account.User{}, errors.Join(ErrFailedToUpdate, err)
		}
		if !out.Matched {
			return account.User{}, ErrUserNotFound
		}
		user.Subscription = out.After
	}

	s.log.InfoContext(ctx, "user updated by admin",
		logger.UserID(id),
		slog.String("actor_id", actorID),
		slog.Bool("plan_changed", u.PlanTier != nil),
	)
	return user, nil
}

func validateUpdate(u *UserUpdate) error {
	verr := apperr.NewValidationError()
	if u.Username != nil {
		v := strings.TrimSpace(*u.Username)
		if v == "" {
			verr.Add("username", "This field may not be blank.")
		}
		u.Username = &v
	}
	if u.PlanTier != nil && !u.PlanTier.Valid() {
		verr.Add("plan_tier", `"`+string(*u.PlanTier)+`" is not a valid choice.`)
	}
	return verr.Err()
}
