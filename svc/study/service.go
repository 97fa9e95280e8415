package study

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/studykit/pkg/ai"
	"github.com/dmitrymomot/studykit/pkg/search"
	"github.com/dmitrymomot/studykit/pkg/storage"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/usage"
)

// Generator produces AI study material. *ai.Client implements it.
type Generator interface {
	Summarize(ctx context.Context, text string) (ai.Summary, error)
	Flashcards(ctx context.Context, text string, n int) ([]ai.Flashcard, error)
}

// Indexer is the optional full-text index. *search.Index implements it.
type Indexer interface {
	Put(ctx context.Context, doc search.Document) error
	Remove(ctx context.Context, id string) error
	Query(ctx context.Context, userID, text string, limit int) ([]search.Hit, error)
}

var (
	_ Generator = (*ai.Client)(nil)
	_ Indexer   = (*search.Index)(nil)
)

type Service struct {
	store  Store
	gate   *quota.Gate
	blobs  storage.Storage
	gen    Generator
	index  Indexer
	strict bool
	log    *slog.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

// WithIndexer enables document search.
func WithIndexer(idx Indexer) Option {
	return func(s *Service) {
		s.index = idx
	}
}

// WithStrictQuota re-checks quota inside a per-user locked transaction
// before each insert, so concurrent requests cannot overshoot a limit.
func WithStrictQuota(strict bool) Option {
	return func(s *Service) {
		s.strict = strict
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

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func NewService(store Store, gate *quota.Gate, blobs storage.Storage, gen Generator, opts ...Option) *Service {
	s := &Service{
		store: store,
		gate:  gate,
		blobs: blobs,
		gen:   gen,
		log:   slog.Default(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchEnabled reports whether an index is configured.
func (s *Service) SearchEnabled() bool {
	return s.index != nil
}

// commit runs fn against the store. In strict mode fn runs inside the
// user's locked transaction after the resources are checked again.
func (s *Service) commit(ctx context.Context, owner quota.Subject, resources []usage.Resource, fn func(st Store) error) error {
	if !s.strict {
		return fn(s.store)
	}
	return s.store.InUserTx(ctx, owner.UserID, func(st Store, counter usage.Counter) error {
		if err := s.gate.WithCounter(counter).RequireAll(ctx, owner, resources...); err != nil {
			return err
		}
		return fn(st)
	})
}
