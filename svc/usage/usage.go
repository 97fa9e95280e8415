// Package usage counts metered records inside the current calendar-month window.
package usage

import (
	"context"
	"fmt"
	"time"
)

// Resource is a metered resource.
type Resource string

const (
	Documents     Resource = "documents"
	Summaries     Resource = "summaries"
	Flashcards    Resource = "flashcards"
	AIGenerations Resource = "ai_generations"
)

// Resources lists every metered resource in display order.
var Resources = []Resource{Documents, Summaries, Flashcards, AIGenerations}

func (r Resource) Valid() bool {
	switch r {
	case Documents, Summaries, Flashcards, AIGenerations:
		return true
	}
	return false
}

// Counter counts records a user created at or after since.
type Counter interface {
	CountSince(ctx context.Context, userID string, r Resource, since time.Time) (int64, error)
}

// WindowStart returns midnight on the first day of now's month in loc.
// A nil loc means UTC.
func WindowStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

func unknownResource(r Resource) error {
	return fmt.Errorf("%w: %q", ErrUnknownResource, r)
}
