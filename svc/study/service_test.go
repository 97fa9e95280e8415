package study_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studykit/pkg/ai"
	"github.com/dmitrymomot/studykit/pkg/apperr"
	"github.com/dmitrymomot/studykit/pkg/search"
	"github.com/dmitrymomot/studykit/pkg/storage"
	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/study"
	"github.com/dmitrymomot/studykit/svc/usage"
)

var now = time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	err   error
	cards int
	calls atomic.Int32
}

func (g *fakeGenerator) Summarize(_ context.Context, text string) (ai.Summary, error) {
	g.calls.Add(1)
	if g.err != nil {
		return ai.Summary{}, g.err
	}
	return ai.Summary{FullSummary: "summary of " + text, KeyPoints: []string{"one", "two"}}, nil
}

func (g *fakeGenerator) Flashcards(_ context.Context, _ string, n int) ([]ai.Flashcard, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	count := n
	if g.cards > 0 {
		count = min(n, g.cards)
	}
	out := make([]ai.Flashcard, 0, count)
	for i := range count {
		out = append(out, ai.Flashcard{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)})
	}
	return out, nil
}

type fakeIndex struct {
	docs map[string]search.Document
	hits []search.Hit
}

func (f *fakeIndex) Put(_ context.Context, doc search.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) Query(context.Context, string, string, int) ([]search.Hit, error) {
	return f.hits, nil
}

type env struct {
	svc   *study.Service
	store *study.MemoryStore
	blobs *storage.MemoryStorage
	gen   *fakeGenerator
}

func newEnv(t *testing.T, opts ...study.Option) *env {
	t.Helper()
	store := study.NewMemoryStore()
	blobs := storage.NewMemoryStorage()
	gen := &fakeGenerator{}
	gate := quota.NewGate(plan.DefaultCatalog(), store, quota.WithClock(func() time.Time { return now }))

	var seq atomic.Int64
	opts = append([]study.Option{
		study.WithClock(func() time.Time { return now }),
		study.WithIDGenerator(func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) }),
	}, opts...)
	return &env{
		svc:   study.NewService(store, gate, blobs, gen, opts...),
		store: store,
		blobs: blobs,
		gen:   gen,
	}
}

func free(id string) quota.Subject {
	return quota.Subject{UserID: id, Subscription: plan.Default()}
}

func pro(id string) quota.Subject {
	end := now.AddDate(0, 1, 0)
	return quota.Subject{UserID: id, Subscription: plan.Subscription{Tier: plan.TierPro, Status: plan.StatusActive, End: &end}}
}

func textUpload(name, body string) study.Upload {
	return study.Upload{
		FileName:    name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func upload(t *testing.T, e *env, owner quota.Subject) study.Document {
	t.Helper()
	doc, err := e.svc.UploadDocument(context.Background(), owner, textUpload("notes.txt", "photosynthesis converts light into chemical energy"))
	require.NoError(t, err)
	return doc
}

func TestUploadDocument(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	doc := upload(t, e, free("u1"))

	assert.Equal(t, "notes", doc.Title)
	assert.Equal(t, "notes.txt", doc.FileName)
	assert.Equal(t, "text/plain", doc.FileType)
	assert.Equal(t, now, doc.UploadedAt)
	assert.Equal(t, 1, e.blobs.Len())

	got, err := e.svc.GetDocument(context.Background(), "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.StorageKey, got.StorageKey)

	_, err = e.svc.GetDocument(context.Background(), "u2", doc.ID)
	assert.ErrorIs(t, err, study.ErrDocumentNotFound)
}

func TestUploadDocumentQuota(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	for range 10 {
		upload(t, e, free("u1"))
	}

	_, err := e.svc.UploadDocument(ctx, free("u1"), textUpload("eleventh.txt", "more"))
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "documents", exceeded.Resource)
	assert.EqualValues(t, 10, exceeded.Limit)

	docs, err := e.svc.ListDocuments(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, docs, 10)
	assert.Equal(t, 10, e.blobs.Len())

	// Pro users are not capped.
	_, err = e.svc.UploadDocument(ctx, pro("u1"), textUpload("eleventh.txt", "more"))
	require.NoError(t, err)
}

func TestUploadDocumentFileSize(t *testing.T) {
	t.Parallel()

	const limit = 10 * 1024 * 1024
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"exactly at limit", limit, false},
		{"one byte over", limit + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			body := bytes.Repeat([]byte("a"), tt.size)
			_, err := e.svc.UploadDocument(context.Background(), free("u1"), study.Upload{
				FileName:    "big.txt",
				ContentType: "text/plain",
				Size:        int64(tt.size),
				Body:        bytes.NewReader(body),
			})
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var exceeded *quota.ExceededError
			require.ErrorAs(t, err, &exceeded)
			assert.Equal(t, quota.ResourceFileSize, exceeded.Resource)
			assert.Equal(t, 0, e.blobs.Len())
		})
	}
}

func TestUploadDocumentUnderstatedSize(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	body := bytes.Repeat([]byte("a"), 10*1024*1024+1)
	_, err := e.svc.UploadDocument(context.Background(), free("u1"), study.Upload{
		FileName: "big.txt",
		Size:     10,
		Body:     bytes.NewReader(body),
	})
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.Equal(t, 0, e.blobs.Len())
}

func TestUploadDocumentValidation(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	_, err := e.svc.UploadDocument(context.Background(), free("u1"), study.Upload{FileName: "x.txt"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	up := textUpload("x.txt", "body")
	up.Title = strings.Repeat("t", 256)
	_, err = e.svc.UploadDocument(context.Background(), free("u1"), up)
	var verr apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("title"))
}

func TestDeleteDocumentCascades(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	doc := upload(t, e, free("u1"))
	_, err := e.svc.GenerateSummary(ctx, free("u1"), doc.ID)
	require.NoError(t, err)
	_, err = e.svc.GenerateFlashcards(ctx, free("u1"), doc.ID, 3)
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.DeleteDocument(ctx, "u2", doc.ID), study.ErrDocumentNotFound)
	require.NoError(t, e.svc.DeleteDocument(ctx, "u1", doc.ID))

	stats, err := e.svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, stats.DocumentsCount)
	assert.Zero(t, stats.SummariesCount)
	assert.Zero(t, stats.FlashcardsCount)
	assert.Equal(t, 0, e.blobs.Len())
}

func TestGenerateSummary(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	doc := upload(t, e, free("u1"))

	sum, err := e.svc.GenerateSummary(ctx, free("u1"), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, sum.DocumentID)
	assert.Contains(t, sum.FullSummary, "photosynthesis")
	assert.Equal(t, []string{"one", "two"}, sum.KeyPoints)

	_, err = e.svc.GenerateSummary(ctx, free("u2"), doc.ID)
	assert.ErrorIs(t, err, study.ErrDocumentNotFound)
}

func TestGenerationFailurePersistsNothing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	doc := upload(t, e, free("u1"))
	e.gen.err = ai.ErrGenerationFailed

	_, err := e.svc.GenerateSummary(ctx, free("u1"), doc.ID)
	assert.ErrorIs(t, err, ai.ErrGenerationFailed)
	_, err = e.svc.GenerateFlashcards(ctx, free("u1"), doc.ID, 5)
	assert.ErrorIs(t, err, ai.ErrGenerationFailed)

	for _, r := range []usage.Resource{usage.Summaries, usage.Flashcards, usage.AIGenerations} {
		n, err := e.store.CountSince(ctx, "u1", r, usage.WindowStart(now, nil))
		require.NoError(t, err)
		assert.Zero(t, n, r)
	}
}

func TestSummaryQuotaDeniedBeforeGeneration(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	doc := upload(t, e, free("u1"))
	for range 10 {
		_, err := e.svc.GenerateSummary(ctx, free("u1"), doc.ID)
		require.NoError(t, err)
	}
	calls := e.gen.calls.Load()

	_, err := e.svc.GenerateSummary(ctx, free("u1"), doc.ID)
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "summaries", exceeded.Resource)
	assert.Equal(t, calls, e.gen.calls.Load())
}

func TestGenerateFlashcardsCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"requested", 5, 5},
		{"maximum", 50, 50},
		{"zero falls back", 0, study.DefaultCardCount},
		{"negative falls back", -3, study.DefaultCardCount},
		{"above maximum falls back", 51, study.DefaultCardCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			doc := upload(t, e, pro("u1"))
			cards, err := e.svc.GenerateFlashcards(context.Background(), pro("u1"), doc.ID, tt.n)
			require.NoError(t, err)
			assert.Len(t, cards, tt.want)
			for _, c := range cards {
				assert.Equal(t, study.DefaultCategory, c.Category)
				require.NotNil(t, c.DocumentID)
				assert.Equal(t, doc.ID, *c.DocumentID)
			}
		})
	}
}

func TestGenerateFlashcardsFromSummary(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	doc := upload(t, e, free("u1"))
	sum, err := e.svc.GenerateSummary(ctx, free("u1"), doc.ID)
	require.NoError(t, err)

	cards, err := e.svc.GenerateFlashcardsFromSummary(ctx, free("u1"), sum.ID, 2)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	require.NotNil(t, cards[0].SummaryID)
	assert.Equal(t, sum.ID, *cards[0].SummaryID)
	assert.Equal(t, doc.ID, *cards[0].DocumentID)

	_, err = e.svc.GenerateFlashcardsFromSummary(ctx, free("u2"), sum.ID, 2)
	assert.ErrorIs(t, err, study.ErrSummaryNotFound)
}

func TestGenerateFlashcardsEmptyOutput(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	doc := upload(t, e, free("u1"))

	gen := &emptyGenerator{}
	svc := study.NewService(e.store, quota.NewGate(plan.DefaultCatalog(), e.store), e.blobs, gen)
	_, err := svc.GenerateFlashcards(context.Background(), free("u1"), doc.ID, 5)
	assert.ErrorIs(t, err, study.ErrNoFlashcards)
}

type emptyGenerator struct{ fakeGenerator }

func (*emptyGenerator) Flashcards(context.Context, string, int) ([]ai.Flashcard, error) {
	return nil, nil
}

func TestManualFlashcardUsage(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	window := usage.WindowStart(now, nil)
	doc := upload(t, e, free("u1"))

	card, err := e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: " Q ", Answer: "A"})
	require.NoError(t, err)
	assert.Equal(t, "Q", card.Question)
	assert.Equal(t, study.DefaultCategory, card.Category)

	n, err := e.store.CountSince(ctx, "u1", usage.AIGenerations, window)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A", DocumentID: &doc.ID})
	require.NoError(t, err)
	n, err = e.store.CountSince(ctx, "u1", usage.AIGenerations, window)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	other := "missing"
	_, err = e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A", DocumentID: &other})
	assert.ErrorIs(t, err, study.ErrDocumentNotFound)

	_, err = e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "  "})
	var verr apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("question"))
	assert.True(t, verr.Has("answer"))
}

func TestFlashcardQuota(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	for range 50 {
		_, err := e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A"})
		require.NoError(t, err)
	}
	_, err := e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A"})
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "flashcards", exceeded.Resource)
}

func TestReviewFlashcard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mastery *int
		want    int
	}{
		{"keeps level without mastery", nil, 0},
		{"sets level", ptr(60), 60},
		{"clamps high", ptr(150), 100},
		{"clamps low", ptr(-5), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			ctx := context.Background()
			card, err := e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A"})
			require.NoError(t, err)

			got, err := e.svc.ReviewFlashcard(ctx, "u1", card.ID, tt.mastery)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.MasteryLevel)
			assert.Equal(t, 1, got.ReviewCount)
			require.NotNil(t, got.LastReviewed)
			assert.Equal(t, now, *got.LastReviewed)

			_, err = e.svc.ReviewFlashcard(ctx, "u2", card.ID, tt.mastery)
			assert.ErrorIs(t, err, study.ErrFlashcardNotFound)
		})
	}
}

func ptr(v int) *int { return &v }

func TestUpdateAndFilterFlashcards(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	doc := upload(t, e, free("u1"))
	_, err := e.svc.GenerateFlashcards(ctx, free("u1"), doc.ID, 2)
	require.NoError(t, err)
	manual, err := e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A", Category: "Biology"})
	require.NoError(t, err)

	cards, err := e.svc.ListFlashcards(ctx, "u1", study.FlashcardFilter{Category: "Biology"})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, manual.ID, cards[0].ID)

	cards, err = e.svc.ListFlashcards(ctx, "u1", study.FlashcardFilter{DocumentID: doc.ID})
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	blank := " "
	_, err = e.svc.UpdateFlashcard(ctx, "u1", manual.ID, study.FlashcardUpdate{Answer: &blank})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	answer := "New answer"
	updated, err := e.svc.UpdateFlashcard(ctx, "u1", manual.ID, study.FlashcardUpdate{Answer: &answer})
	require.NoError(t, err)
	assert.Equal(t, "New answer", updated.Answer)
	assert.Equal(t, "Q", updated.Question)
}

func TestStats(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	stats, err := e.svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, study.Stats{StudyTime: "0h"}, stats)

	a, err := e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A"})
	require.NoError(t, err)
	_, err = e.svc.CreateFlashcard(ctx, free("u1"), study.ManualFlashcard{Question: "Q", Answer: "A"})
	require.NoError(t, err)
	_, err = e.svc.ReviewFlashcard(ctx, "u1", a.ID, ptr(75))
	require.NoError(t, err)

	stats, err = e.svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.FlashcardsCount)
	assert.Equal(t, 37, stats.Mastery)
}

func TestSearchDocuments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		assert.False(t, e.svc.SearchEnabled())
		_, err := e.svc.SearchDocuments(ctx, "u1", "light")
		assert.ErrorIs(t, err, study.ErrSearchDisabled)
	})

	t.Run("keeps hit order and ownership", func(t *testing.T) {
		t.Parallel()
		idx := &fakeIndex{docs: map[string]search.Document{}}
		e := newEnv(t, study.WithIndexer(idx))
		first := upload(t, e, free("u1"))
		second := upload(t, e, free("u1"))
		foreign := upload(t, e, free("u2"))
		assert.Len(t, idx.docs, 3)
		assert.Contains(t, idx.docs[first.ID].Content, "photosynthesis")

		idx.hits = []search.Hit{{ID: second.ID}, {ID: foreign.ID}, {ID: first.ID}}
		docs, err := e.svc.SearchDocuments(ctx, "u1", "light")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, second.ID, docs[0].ID)
		assert.Equal(t, first.ID, docs[1].ID)

		_, err = e.svc.SearchDocuments(ctx, "u1", "  ")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

		require.NoError(t, e.svc.DeleteDocument(ctx, "u1", first.ID))
		assert.NotContains(t, idx.docs, first.ID)
	})
}

func TestStrictQuota(t *testing.T) {
	t.Parallel()

	e := newEnv(t, study.WithStrictQuota(true))
	ctx := context.Background()
	for range 10 {
		upload(t, e, free("u1"))
	}
	_, err := e.svc.UploadDocument(ctx, free("u1"), textUpload("x.txt", "body"))
	assert.True(t, errors.Is(err, quota.ErrQuotaExceeded))
	assert.Equal(t, 10, e.blobs.Len())
}
