// Package study manages the metered study content: uploaded documents, AI
// summaries and flashcards. Every creating operation passes the quota gate
// first; failed AI calls never leave partial records behind.
package study

import "time"

const (
	DefaultCategory  = "General"
	DefaultCardCount = 10
	MaxCardCount     = 50
)

type Document struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	Title      string    `json:"title"`
	StorageKey string    `json:"-"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	FileType   string    `json:"file_type"`
	Pages      *int      `json:"pages"`
	UploadedAt time.Time `json:"uploaded_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Summary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	DocumentID  string    `json:"document"`
	FullSummary string    `json:"full_summary"`
	KeyPoints   []string  `json:"key_points"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Flashcard struct {
	ID           string     `json:"id"`
	UserID       string     `json:"-"`
	DocumentID   *string    `json:"document"`
	SummaryID    *string    `json:"summary"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Category     string     `json:"category"`
	LastReviewed *time.Time `json:"last_reviewed"`
	ReviewCount  int        `json:"review_count"`
	MasteryLevel int        `json:"mastery_level"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FromAI reports whether the card counts as an AI generation.
func (f Flashcard) FromAI() bool {
	return f.DocumentID != nil
}

// FlashcardFilter narrows List results. Empty fields match everything.
type FlashcardFilter struct {
	Category   string
	DocumentID string
}

// FlashcardUpdate holds editable card fields. Nil fields are unchanged.
type FlashcardUpdate struct {
	Question *string `json:"question"`
	Answer   *string `json:"answer"`
	Category *string `json:"category"`
}

// ManualFlashcard is a user-written card.
type ManualFlashcard struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Category   string  `json:"category"`
	DocumentID *string `json:"document"`
}

// Stats is the per-user dashboard.
type Stats struct {
	DocumentsCount  int64  `json:"documents_count"`
	FlashcardsCount int64  `json:"flashcards_count"`
	SummariesCount  int64  `json:"summaries_count"`
	StudyTime       string `json:"study_time"`
	Mastery         int    `json:"mastery"`
}

// ClampCardCount maps a requested card count into the accepted range.
// Anything outside 1..MaxCardCount becomes DefaultCardCount.
func ClampCardCount(n int) int {
	if n < 1 || n > MaxCardCount {
		return DefaultCardCount
	}
	return n
}

// ClampMastery bounds a mastery level to 0..100.
func ClampMastery(v int) int {
	return min(max(v, 0), 100)
}

// studyTime is reported until review sessions are timed.
const studyTime = "0h"
