package audit

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory. It optionally mirrors every
// event to a slog logger, which makes it the fallback when Mongo is not
// configured.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
	max    int
	log    *slog.Logger
}

type MemoryOption func(*MemoryStorage)

// WithLogMirror writes each stored event to log at info level.
func WithLogMirror(log *slog.Logger) MemoryOption {
	return func(m *MemoryStorage) {
		m.log = log
	}
}

// WithCapacity bounds the number of retained events; oldest are dropped.
func WithCapacity(n int) MemoryOption {
	return func(m *MemoryStorage) {
		m.max = n
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	m := &MemoryStorage{max: 10000}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStorage) Store(ctx context.Context, events ...Event) error {
	m.mu.Lock()
	m.events = append(m.events, events...)
	if m.max > 0 && len(m.events) > m.max {
		m.events = slices.Clone(m.events[len(m.events)-m.max:])
	}
	m.mu.Unlock()

	if m.log != nil {
		for _, e := range events {
			m.log.InfoContext(ctx, "audit",
				slog.String("action", e.Action),
				slog.String("user_id", e.UserID),
				slog.String("actor_id", e.ActorID),
				slog.String("result", string(e.Result)),
				slog.Any("metadata", e.Metadata),
			)
		}
	}
	return nil
}

func (m *MemoryStorage) Query(_ context.Context, c Criteria) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if c.UserID != "" && e.UserID != c.UserID {
			continue
		}
		if c.Action != "" && e.Action != c.Action {
			continue
		}
		out = append(out, e)
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out, nil
}
