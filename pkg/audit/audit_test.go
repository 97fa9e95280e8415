package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studykit/pkg/audit"
)

func TestLoggerLog(t *testing.T) {
	t.Parallel()

	store := audit.NewMemoryStorage()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := audit.NewLogger(store,
		audit.WithClock(func() time.Time { return now }),
		audit.WithActorIDExtractor(func(context.Context) (string, bool) { return "admin-1", true }),
		audit.WithRequestIDExtractor(func(context.Context) (string, bool) { return "", false }),
	)

	require.NoError(t, l.Log(context.Background(), "subscription.admin_upgrade",
		audit.WithUser("u1"),
		audit.WithResource("subscription", "u1"),
		audit.WithMetadata("to", "pro/active"),
	))

	events, err := l.Find(context.Background(), audit.Criteria{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "admin-1", e.ActorID)
	assert.Empty(t, e.RequestID)
	assert.Equal(t, audit.ResultSuccess, e.Result)
	assert.Equal(t, now, e.CreatedAt)
	assert.Equal(t, "pro/active", e.Metadata["to"])
}

func TestLoggerLogError(t *testing.T) {
	t.Parallel()

	l := audit.NewLogger(audit.NewMemoryStorage())
	require.NoError(t, l.LogError(context.Background(), "subscription.apply", errors.New("boom"), audit.WithUser("u1")))

	events, err := l.Find(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ResultError, events[0].Result)
	assert.Equal(t, "boom", events[0].Error)

	assert.ErrorIs(t, l.Log(context.Background(), ""), audit.ErrEventValidation)
}

func TestMemoryStorageQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var buf bytes.Buffer
	store := audit.NewMemoryStorage(
		audit.WithCapacity(3),
		audit.WithLogMirror(slog.New(slog.NewTextHandler(&buf, nil))),
	)

	require.NoError(t, store.Store(ctx,
		audit.Event{ID: "1", UserID: "a", Action: "x"},
		audit.Event{ID: "2", UserID: "b", Action: "x"},
		audit.Event{ID: "3", UserID: "a", Action: "y"},
		audit.Event{ID: "4", UserID: "a", Action: "x"},
	))

	all, err := store.Query(ctx, audit.Criteria{})
	require.NoError(t, err)
	assert.Len(t, all, 3, "capacity drops the oldest event")
	assert.Equal(t, "4", all[0].ID, "newest first")

	filtered, err := store.Query(ctx, audit.Criteria{UserID: "a", Action: "x", Limit: 5})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "4", filtered[0].ID)

	assert.Contains(t, buf.String(), "action=x")
}

func TestNewLoggerPanicsWithoutStorage(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { audit.NewLogger(nil) })
}
