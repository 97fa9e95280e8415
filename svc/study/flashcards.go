package study

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/usage"
)

var generatedCardResources = []usage.Resource{usage.AIGenerations, usage.Flashcards}

// GenerateFlashcards creates up to n cards from a document. n outside
// 1..MaxCardCount falls back to DefaultCardCount.
func (s *Service) GenerateFlashcards(ctx context.Context, owner quota.Subject, documentID string, n int) ([]Flashcard, error) {
	doc, err := s.store.GetDocument(ctx, owner.UserID, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAll(ctx, owner, generatedCardResources...); err != nil {
		return nil, err
	}

	text, err := s.documentText(ctx, doc)
	if err != nil {
		return nil, err
	}

	docID := doc.ID
	return s.generateCards(ctx, owner, text, ClampCardCount(n), &docID, nil)
}

// GenerateFlashcardsFromSummary creates cards from a summary's text. The
// cards are linked to both the summary and its document.
func (s *Service) GenerateFlashcardsFromSummary(ctx context.Context, owner quota.Subject, summaryID string, n int) ([]Flashcard, error) {
	sum, err := s.store.GetSummary(ctx, owner.UserID, summaryID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAll(ctx, owner, generatedCardResources...); err != nil {
		return nil, err
	}

	text := sum.FullSummary
	if len(sum.KeyPoints) > 0 {
		text += "\n\nKey points:\n- " + strings.Join(sum.KeyPoints, "\n- ")
	}

	docID, sumID := sum.DocumentID, sum.ID
	return s.generateCards(ctx, owner, text, ClampCardCount(n), &docID, &sumID)
}

func (s *Service) generateCards(ctx context.Context, owner quota.Subject, text string, n int, docID, sumID *string) ([]Flashcard, error) {
	generated, err := s.gen.Flashcards(ctx, text, n)
	if err != nil {
		s.log.ErrorContext(ctx, "flashcard generation failed", logger.Error(err), logger.UserID(owner.UserID))
		return nil, err
	}
	if len(generated) == 0 {
		return nil, ErrNoFlashcards
	}

	now := s.now().UTC()
	cards := make([]Flashcard, 0, len(generated))
	for _, g := range generated {
		cards = append(cards, Flashcard{
			ID:         s.newID(),
			UserID:     owner.UserID,
			DocumentID: docID,
			SummaryID:  sumID,
			Question:   g.Question,
			Answer:     g.Answer,
			Category:   categoryOrDefault(g.Category),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	err = s.commit(ctx, owner, generatedCardResources, func(st Store) error {
		return st.CreateFlashcards(ctx, cards)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "flashcards generated", logger.UserID(owner.UserID), slog.Int("count", len(cards)))
	return cards, nil
}

// CreateFlashcard stores a hand-written card. A card linked to a document
// counts as an AI generation and is gated as one.
func (s *Service) CreateFlashcard(ctx context.Context, owner quota.Subject, in ManualFlashcard) (Flashcard, error) {
	verr := apperr.NewValidationError()
	question := strings.TrimSpace(in.Question)
	answer := strings.TrimSpace(in.Answer)
	if question == "" {
		verr.Add("question", "This field is required.")
	}
	if answer == "" {
		verr.Add("answer", "This field is required.")
	}
	if err := verr.Err(); err != nil {
		return Flashcard{}, err
	}

	resources := []usage.Resource{usage.Flashcards}
	var docID *string
	if in.DocumentID != nil && *in.DocumentID != "" {
		doc, err := s.store.GetDocument(ctx, owner.UserID, *in.DocumentID)
		if err != nil {
			return Flashcard{}, err
		}
		docID = &doc.ID
		resources = append(resources, usage.AIGenerations)
	}
	if err := s.gate.RequireAll(ctx, owner, resources...); err != nil {
		return Flashcard{}, err
	}

	now := s.now().UTC()
	card := Flashcard{
		ID:         s.newID(),
		UserID:     owner.UserID,
		DocumentID: docID,
		Question:   question,
		Answer:     answer,
		Category:   categoryOrDefault(in.Category),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.commit(ctx, owner, resources, func(st Store) error {
		return st.CreateFlashcards(ctx, []Flashcard{card})
	})
	if err != nil {
		return Flashcard{}, err
	}
	return card, nil
}

func (s *Service) ListFlashcards(ctx context.Context, userID string, f FlashcardFilter) ([]Flashcard, error) {
	return s.store.ListFlashcards(ctx, userID, f)
}

func (s *Service) GetFlashcard(ctx context.Context, userID, id string) (Flashcard, error) {
	return s.store.GetFlashcard(ctx, userID, id)
}

func (s *Service) UpdateFlashcard(ctx context.Context, userID, id string, u FlashcardUpdate) (Flashcard, error) {
	verr := apperr.NewValidationError()
	if u.Question != nil {
		v := strings.TrimSpace(*u.Question)
		if v == "" {
			verr.Add("question", "This field may not be blank.")
		}
		u.Question = &v
	}
	if u.Answer != nil {
		v := strings.TrimSpace(*u.Answer)
		if v == "" {
			verr.Add("answer", "This field may not be blank.")
		}
		u.Answer = &v
	}
	if u.Category != nil {
		v := categoryOrDefault(*u.Category)
		u.Category = &v
	}
	if err := verr.Err(); err != nil {
		return Flashcard{}, err
	}
	return s.store.UpdateFlashcard(ctx, userID, id, u, s.now().UTC())
}

func (s *Service) DeleteFlashcard(ctx context.Context, userID, id string) error {
	return s.store.DeleteFlashcard(ctx, userID, id)
}

// ReviewFlashcard records a review. mastery is clamped to 0..100; nil keeps
// the current level.
func (s *Service) ReviewFlashcard(ctx context.Context, userID, id string, mastery *int) (Flashcard, error) {
	if mastery != nil {
		v := ClampMastery(*mastery)
		mastery = &v
	}
	return s.store.ReviewFlashcard(ctx, userID, id, mastery, s.now().UTC())
}

// Stats returns the dashboard counters.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	return s.store.Stats(ctx, userID)
}

func categoryOrDefault(c string) string {
	if c = strings.TrimSpace(c); c != "" {
		return c
	}
	return DefaultCategory
}
