package ai_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studykit/pkg/ai"
)

func TestParseSummary(t *testing.T) {
	t.Parallel()

	t.Run("json in code fence", func(t *testing.T) {
		t.Parallel()
		content := "```json\n{\"full_summary\": \"Cells divide.\", \"key_points\": [\"mitosis\", \"meiosis\"]}\n```"
		s := ai.ParseSummary(content)
		assert.Equal(t, "Cells divide.", s.FullSummary)
		assert.Equal(t, []string{"mitosis", "meiosis"}, s.KeyPoints)
	})

	t.Run("plain text with key points section", func(t *testing.T) {
		t.Parallel()
		content := strings.Join([]string{
			"Photosynthesis converts light to energy.",
			"",
			"It happens in chloroplasts.",
			"Key Points:",
			"- Light reactions",
			"• Calvin cycle",
			"3. Oxygen is released",
			"* Glucose is produced",
		}, "\n")

		s := ai.ParseSummary(content)
		assert.Equal(t, "Photosynthesis converts light to energy.\n\nIt happens in chloroplasts.", s.FullSummary)
		assert.Equal(t, []string{"Light reactions", "Calvin cycle", "Oxygen is released", "Glucose is produced"}, s.KeyPoints)
	})

	t.Run("bullets before the key point header stay in the summary", func(t *testing.T) {
		t.Parallel()
		s := ai.ParseSummary("- intro bullet\nKEY POINTS\n- real point")
		assert.Equal(t, "- intro bullet", s.FullSummary)
		assert.Equal(t, []string{"real point"}, s.KeyPoints)
	})

	t.Run("no key points falls back to a prefix of the content", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("a", 150)
		s := ai.ParseSummary(content)
		assert.Equal(t, content, s.FullSummary)
		require.Len(t, s.KeyPoints, 1)
		assert.Equal(t, strings.Repeat("a", 100)+"...", s.KeyPoints[0])
	})

	t.Run("broken json is read as text", func(t *testing.T) {
		t.Parallel()
		s := ai.ParseSummary(`{"full_summary": "unterminated`)
		assert.Equal(t, `{"full_summary": "unterminated`, s.FullSummary)
		assert.Len(t, s.KeyPoints, 1)
	})

	t.Run("json without summary uses raw content", func(t *testing.T) {
		t.Parallel()
		s := ai.ParseSummary(`{"key_points": ["x"]}`)
		assert.Equal(t, `{"key_points": ["x"]}`, s.FullSummary)
		assert.Equal(t, []string{"x"}, s.KeyPoints)
	})
}

func TestParseFlashcards(t *testing.T) {
	t.Parallel()

	t.Run("json array with prose around it", func(t *testing.T) {
		t.Parallel()
		content := `Here you go:
[
  {"question": "What is ATP?", "answer": "Energy currency.", "category": "Biology"},
  {"question": "Where is DNA?", "answer": "Nucleus."}
]
Good luck!`
		cards := ai.ParseFlashcards(content, 10)
		require.Len(t, cards, 2)
		assert.Equal(t, ai.Flashcard{Question: "What is ATP?", Answer: "Energy currency.", Category: "Biology"}, cards[0])
		assert.Equal(t, "General", cards[1].Category)
	})

	t.Run("truncates to n", func(t *testing.T) {
		t.Parallel()
		content := `[{"question":"1","answer":"a"},{"question":"2","answer":"b"},{"question":"3","answer":"c"}]`
		assert.Len(t, ai.ParseFlashcards(content, 2), 2)
	})

	t.Run("text blocks", func(t *testing.T) {
		t.Parallel()
		content := strings.Join([]string{
			"Question: What is osmosis?",
			"Answer: Diffusion of water",
			"across a membrane.",
			"Category: Biology",
			"",
			"What is a cell?",
			"The basic unit of life.",
			"It has a membrane.",
			"",
			"Question: Lonely question",
			"",
			"category",
		}, "\n")

		cards := ai.ParseFlashcards(content, 10)
		require.Len(t, cards, 3)

		assert.Equal(t, "What is osmosis?", cards[0].Question)
		assert.Equal(t, "Diffusion of water across a membrane.", cards[0].Answer)
		assert.Equal(t, "Biology", cards[0].Category)

		assert.Equal(t, "What is a cell?", cards[1].Question)
		assert.Equal(t, "The basic unit of life. It has a membrane.", cards[1].Answer)
		assert.Equal(t, "General", cards[1].Category)

		assert.Equal(t, "Lonely question", cards[2].Question)
		assert.Equal(t, "Answer not generated", cards[2].Answer)
	})

	t.Run("empty objects are dropped", func(t *testing.T) {
		t.Parallel()
		cards := ai.ParseFlashcards(`[{}, {"answer": "only answer"}]`, 0)
		require.Len(t, cards, 1)
		assert.Equal(t, "Question not generated", cards[0].Question)
	})

	t.Run("garbage never panics", func(t *testing.T) {
		t.Parallel()
		for _, content := range []string{"", "[", "]", "[[[", "\n\n\n", "{\"question\": 1}"} {
			assert.NotPanics(t, func() { ai.ParseFlashcards(content, 5) })
			assert.NotPanics(t, func() { ai.ParseSummary(content) })
		}
	})
}
