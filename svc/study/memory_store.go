package study

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/studykit/svc/usage"
)

// MemoryStore keeps study content in memory. It also counts its own records,
// so it can back a quota gate directly.
type MemoryStore struct {
	mu         sync.RWMutex
	txMu       sync.Mutex
	documents  map[string]Document
	summaries  map[string]Summary
	flashcards map[string]Flashcard
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:  make(map[string]Document),
		summaries:  make(map[string]Summary),
		flashcards: make(map[string]Flashcard),
	}
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ Store         = (*PGStore)(nil)
	_ usage.Counter = (*MemoryStore)(nil)
)

// InUserTx serializes fn against other InUserTx calls. Writes are not
// rolled back when fn fails.
func (m *MemoryStore) InUserTx(_ context.Context, _ string, fn func(st Store, counter usage.Counter) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m, m)
}

func (m *MemoryStore) CountSince(_ context.Context, userID string, r usage.Resource, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	countDocs := func() {
		for _, d := range m.documents {
			if d.UserID == userID && !d.UploadedAt.Before(since) {
				n++
			}
		}
	}
	countSummaries := func() {
		for _, s := range m.summaries {
			if s.UserID == userID && !s.CreatedAt.Before(since) {
				n++
			}
		}
	}
	countCards := func(aiOnly bool) {
		for _, f := range m.flashcards {
			if f.UserID == userID && !f.CreatedAt.Before(since) && (!aiOnly || f.FromAI()) {
				n++
			}
		}
	}

	switch r {
	case usage.Documents:
		countDocs()
	case usage.Summaries:
		countSummaries()
	case usage.Flashcards:
		countCards(false)
	case usage.AIGenerations:
		countSummaries()
		countCards(true)
	default:
		return 0, usage.ErrUnknownResource
	}
	return n, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, d Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, userID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Document{}
	for _, d := range m.documents {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Document) int { return b.UploadedAt.Compare(a.UploadedAt) })
	return out, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, userID, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok || d.UserID != userID {
		return Document{}, ErrDocumentNotFound
	}
	return d, nil
}

func (m *MemoryStore) DocumentsByIDs(_ context.Context, userID string, ids []string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Document{}
	for _, id := range ids {
		if d, ok := m.documents[id]; ok && d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

// DeleteDocument also removes the document's summaries and flashcards.
func (m *MemoryStore) DeleteDocument(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok || d.UserID != userID {
		return ErrDocumentNotFound
	}
	delete(m.documents, id)
	for sid, s := range m.summaries {
		if s.DocumentID == id {
			delete(m.summaries, sid)
		}
	}
	for fid, f := range m.flashcards {
		if f.DocumentID != nil && *f.DocumentID == id {
			delete(m.flashcards, fid)
		}
	}
	return nil
}

func (m *MemoryStore) CreateSummary(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.ID] = s
	return nil
}

func (m *MemoryStore) ListSummaries(_ context.Context, userID string) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Summary{}
	for _, s := range m.summaries {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Summary) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetSummary(_ context.Context, userID, id string) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[id]
	if !ok || s.UserID != userID {
		return Summary{}, ErrSummaryNotFound
	}
	return s, nil
}

// DeleteSummary also removes cards generated from the summary.
func (m *MemoryStore) DeleteSummary(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	if !ok || s.UserID != userID {
		return ErrSummaryNotFound
	}
	delete(m.summaries, id)
	for fid, f := range m.flashcards {
		if f.SummaryID != nil && *f.SummaryID == id {
			delete(m.flashcards, fid)
		}
	}
	return nil
}

func (m *MemoryStore) CreateFlashcards(_ context.Context, cards []Flashcard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cards {
		m.flashcards[c.ID] = c
	}
	return nil
}

func (m *MemoryStore) ListFlashcards(_ context.Context, userID string, f FlashcardFilter) ([]Flashcard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Flashcard{}
	for _, c := range m.flashcards {
		if c.UserID != userID {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		if f.DocumentID != "" && (c.DocumentID == nil || *c.DocumentID != f.DocumentID) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Flashcard) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *MemoryStore) GetFlashcard(_ context.Context, userID, id string) (Flashcard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.flashcards[id]
	if !ok || c.UserID != userID {
		return Flashcard{}, ErrFlashcardNotFound
	}
	return c, nil
}

func (m *MemoryStore) UpdateFlashcard(_ context.Context, userID, id string, u FlashcardUpdate, at time.Time) (Flashcard, error) {
	return m.modifyFlashcard(userID, id, func(c *Flashcard) {
		if u.Question != nil {
			c.Question = *u.Question
		}
		if u.Answer != nil {
			c.Answer = *u.Answer
		}
		if u.Category != nil {
			c.Category = *u.Category
		}
		c.UpdatedAt = at
	})
}

func (m *MemoryStore) ReviewFlashcard(_ context.Context, userID, id string, mastery *int, at time.Time) (Flashcard, error) {
	return m.modifyFlashcard(userID, id, func(c *Flashcard) {
		c.ReviewCount++
		c.LastReviewed = &at
		if mastery != nil {
			c.MasteryLevel = *mastery
		}
		c.UpdatedAt = at
	})
}

func (m *MemoryStore) modifyFlashcard(userID, id string, fn func(*Flashcard)) (Flashcard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.flashcards[id]
	if !ok || c.UserID != userID {
		return Flashcard{}, ErrFlashcardNotFound
	}
	fn(&c)
	m.flashcards[id] = c
	return c, nil
}

func (m *MemoryStore) DeleteFlashcard(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.flashcards[id]
	if !ok || c.UserID != userID {
		return ErrFlashcardNotFound
	}
	delete(m.flashcards, id)
	return nil
}

func (m *MemoryStore) Stats(_ context.Context, userID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{StudyTime: studyTime}
	for _, d := range m.documents {
		if d.UserID == userID {
			st.DocumentsCount++
		}
	}
	for _, s := range m.summaries {
		if s.UserID == userID {
			st.SummariesCount++
		}
	}
	var mastery int64
	for _, c := range m.flashcards {
		if c.UserID == userID {
			st.FlashcardsCount++
			mastery += int64(c.MasteryLevel)
		}
	}
	if st.FlashcardsCount > 0 {
		st.Mastery = int(mastery / st.FlashcardsCount)
	}
	return st, nil
}
