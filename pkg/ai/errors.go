package ai

import "errors"

var (
	ErrNotConfigured    = errors.New("ai: OPENAI_API_KEY is not set")
	ErrGenerationFailed = errors.New("ai: generation failed")
	ErrEmptyInput       = errors.New("ai: empty input text")
)
