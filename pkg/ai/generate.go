package ai

import (
	"context"
	"fmt"
	"strings"
)

type Summary struct {
	FullSummary string   `json:"full_summary"`
	KeyPoints   []string `json:"key_points"`
}

type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

const summarySystemPrompt = "You are an expert at summarizing educational content. Create comprehensive summaries and extract key points."

const summaryUserPrompt = `Please provide a comprehensive summary of the following content and extract key points.

Content:
%s

Please provide:
1. A detailed summary (3-5 paragraphs)
2. A list of 5-10 key points (as a JSON array)

Format your response as JSON:
{
    "full_summary": "detailed summary text here",
    "key_points": ["point 1", "point 2", "point 3", ...]
}`

const flashcardSystemPrompt = "You are an expert at creating educational flashcards. Create clear, concise questions and comprehensive answers."

const flashcardUserPrompt = `Generate %d flashcards from the following content. Each flashcard should have a clear question and a detailed answer.

Content:
%s

Please provide the flashcards as a JSON array:
[
    {
        "question": "What is...?",
        "answer": "Detailed answer here...",
        "category": "Category name"
    },
    ...
]

Make sure the questions cover the most important concepts and the answers are comprehensive but concise.`

// Summarize produces a summary with key points. Malformed model output is
// recovered, never reported as an error.
func (c *Client) Summarize(ctx context.Context, text string) (Summary, error) {
	if strings.TrimSpace(text) == "" {
		return Summary{}, ErrEmptyInput
	}

	content, err := c.complete(ctx, "summary", summarySystemPrompt,
		fmt.Sprintf(summaryUserPrompt, c.clip(text)), summaryMaxTokens)
	if err != nil {
		return Summary{}, err
	}
	return ParseSummary(content), nil
}

// Flashcards produces at most n cards.
func (c *Client) Flashcards(ctx context.Context, text string, n int) ([]Flashcard, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	content, err := c.complete(ctx, "flashcards", flashcardSystemPrompt,
		fmt.Sprintf(flashcardUserPrompt, n, c.clip(text)), flashcardMaxTokens)
	if err != nil {
		return nil, err
	}
	return ParseFlashcards(content, n), nil
}
