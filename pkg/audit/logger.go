package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextExtractor func(context.Context) (string, bool)

// Logger builds events from context and hands them to a Storage.
type Logger struct {
	storage            Storage
	actorIDExtractor   contextExtractor
	requestIDExtractor contextExtractor
	now                func() time.Time
}

type Option func(*Logger)

func WithActorIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) {
		l.actorIDExtractor = fn
	}
}

func WithRequestIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) {
		l.requestIDExtractor = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records a successful action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.store(ctx, l.newEvent(ctx, action, ResultSuccess, opts))
}

// LogError records a failed action.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	event := l.newEvent(ctx, action, ResultError, opts)
	if err != nil {
		event.Error = err.Error()
	}
	return l.store(ctx, event)
}

// Find returns stored events, newest first.
func (l *Logger) Find(ctx context.Context, c Criteria) ([]Event, error) {
	return l.storage.Query(ctx, c)
}

func (l *Logger) newEvent(ctx context.Context, action string, result Result, opts []EventOption) Event {
	event := Event{
		ID:        uuid.NewString(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if l.actorIDExtractor != nil {
		if id, ok := l.actorIDExtractor(ctx); ok {
			event.ActorID = id
		}
	}
	if l.requestIDExtractor != nil {
		if id, ok := l.requestIDExtractor(ctx); ok {
			event.RequestID = id
		}
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

func (l *Logger) store(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}
