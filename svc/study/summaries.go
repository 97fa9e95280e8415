package study

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/usage"
)

var summaryResources = []usage.Resource{usage.AIGenerations, usage.Summaries}

// GenerateSummary summarises one of the owner's documents. The AI call runs
// before any insert, so a failed generation persists nothing.
func (s *Service) GenerateSummary(ctx context.Context, owner quota.Subject, documentID string) (Summary, error) {
	doc, err := s.store.GetDocument(ctx, owner.UserID, documentID)
	if err != nil {
		return Summary{}, err
	}
	if err := s.gate.RequireAll(ctx, owner, summaryResources...); err != nil {
		return Summary{}, err
	}

	text, err := s.documentText(ctx, doc)
	if err != nil {
		return Summary{}, err
	}

	generated, err := s.gen.Summarize(ctx, text)
	if err != nil {
		s.log.ErrorContext(ctx, "summary generation failed",
			logger.Error(err),
			logger.UserID(owner.UserID),
			slog.String("document_id", doc.ID),
		)
		return Summary{}, err
	}

	now := s.now().UTC()
	sum := Summary{
		ID:          s.newID(),
		UserID:      owner.UserID,
		DocumentID:  doc.ID,
		FullSummary: generated.FullSummary,
		KeyPoints:   generated.KeyPoints,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sum.KeyPoints == nil {
		sum.KeyPoints = []string{}
	}

	err = s.commit(ctx, owner, summaryResources, func(st Store) error {
		return st.CreateSummary(ctx, sum)
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (s *Service) ListSummaries(ctx context.Context, userID string) ([]Summary, error) {
	return s.store.ListSummaries(ctx, userID)
}

func (s *Service) GetSummary(ctx context.Context, userID, id string) (Summary, error) {
	return s.store.GetSummary(ctx, userID, id)
}

func (s *Service) DeleteSummary(ctx context.Context, userID, id string) error {
	return s.store.DeleteSummary(ctx, userID, id)
}
