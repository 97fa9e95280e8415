package usage

import (
	"context"
	"sync"
	"time"
)

// Record is one metered row as seen by MemoryCounter.
type Record struct {
	UserID    string
	Resource  Resource
	CreatedAt time.Time
	// FromDocument marks flashcards generated from a document.
	FromDocument bool
}

// MemoryCounter is an in-process Counter with the same semantics as PGCounter.
type MemoryCounter struct {
	mu      sync.RWMutex
	records []Record
	err     error
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (m *MemoryCounter) Add(records ...Record) {
	m.mu.Lock()
	m.records = append(m.records, records...)
	m.mu.Unlock()
}

// FailWith makes every subsequent count return err.
func (m *MemoryCounter) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemoryCounter) CountSince(_ context.Context, userID string, r Resource, since time.Time) (int64, error) {
	if !r.Valid() {
		return 0, unknownResource(r)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return 0, m.err
	}

	var n int64
	for _, rec := range m.records {
		if rec.UserID != userID || rec.CreatedAt.Before(since) {
			continue
		}
		if matches(rec, r) {
			n++
		}
	}
	return n, nil
}

func matches(rec Record, r Resource) bool {
	if r == AIGenerations {
		return rec.Resource == Summaries || (rec.Resource == Flashcards && rec.FromDocument)
	}
	return rec.Resource == r
}
