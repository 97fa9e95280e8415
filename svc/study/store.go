package study

import (
	"context"
	"time"

	"github.com/dmitrymomot/studykit/svc/usage"
)

// Store persists study content. Lookups are always scoped by user id and
// return the matching not-found error for rows owned by someone else.
type Store interface {
	CreateDocument(ctx context.Context, d Document) error
	ListDocuments(ctx context.Context, userID string) ([]Document, error)
	GetDocument(ctx context.Context, userID, id string) (Document, error)
	DocumentsByIDs(ctx context.Context, userID string, ids []string) ([]Document, error)
	DeleteDocument(ctx context.Context, userID, id string) error

	CreateSummary(ctx context.Context, s Summary) error
	ListSummaries(ctx context.Context, userID string) ([]Summary, error)
	GetSummary(ctx context.Context, userID, id string) (Summary, error)
	DeleteSummary(ctx context.Context, userID, id string) error

	// CreateFlashcards inserts all cards or none.
	CreateFlashcards(ctx context.Context, cards []Flashcard) error
	ListFlashcards(ctx context.Context, userID string, f FlashcardFilter) ([]Flashcard, error)
	GetFlashcard(ctx context.Context, userID, id string) (Flashcard, error)
	UpdateFlashcard(ctx context.Context, userID, id string, u FlashcardUpdate, at time.Time) (Flashcard, error)
	ReviewFlashcard(ctx context.Context, userID, id string, mastery *int, at time.Time) (Flashcard, error)
	DeleteFlashcard(ctx context.Context, userID, id string) error

	Stats(ctx context.Context, userID string) (Stats, error)

	// InUserTx runs fn in a transaction holding userID's lock. The store and
	// counter passed to fn see the transaction's own writes.
	InUserTx(ctx context.Context, userID string, fn func(st Store, counter usage.Counter) error) error
}
