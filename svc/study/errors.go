package study

import "errors"

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrSummaryNotFound   = errors.New("summary not found")
	ErrFlashcardNotFound = errors.New("flashcard not found")
	ErrSearchDisabled    = errors.New("document search is not configured")
	ErrNoFlashcards      = errors.New("no flashcards in generated output")
)
