package ai

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

const (
	defaultCategory   = "General"
	missingQuestion   = "Question not generated"
	missingAnswer     = "Answer not generated"
	fallbackPointSize = 100
)

var (
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	arrayPattern  = regexp.MustCompile(`(?s)\[.*\]`)
)

// ParseSummary turns model output into a Summary. JSON is preferred; any other
// shape is read line by line.
func ParseSummary(content string) Summary {
	raw := content
	if m := objectPattern.FindString(content); m != "" {
		raw = m
	}

	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		s = summaryFromText(content)
	}

	if strings.TrimSpace(s.FullSummary) == "" {
		s.FullSummary = content
	}
	s.KeyPoints = nonEmpty(s.KeyPoints)
	if len(s.KeyPoints) == 0 {
		s.KeyPoints = []string{fallbackPoint(content)}
	}
	return s
}

func summaryFromText(content string) Summary {
	var (
		summaryLines []string
		keyPoints    []string
		inKeyPoints  bool
	)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), "key point") {
			inKeyPoints = true
			continue
		}
		if inKeyPoints && isBullet(line) {
			keyPoints = append(keyPoints, strings.TrimLeft(line, "-•*0123456789. "))
			continue
		}
		summaryLines = append(summaryLines, line)
	}

	s := Summary{FullSummary: content, KeyPoints: keyPoints}
	if len(summaryLines) > 0 {
		s.FullSummary = strings.Join(summaryLines, "\n\n")
	}
	return s
}

func isBullet(line string) bool {
	r := []rune(line)[0]
	return r == '-' || r == '•' || r == '*' || unicode.IsDigit(r)
}

func fallbackPoint(content string) string {
	runes := []rune(content)
	if len(runes) > fallbackPointSize {
		runes = runes[:fallbackPointSize]
	}
	return string(runes) + "..."
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseFlashcards turns model output into at most n cards (n <= 0 means no cap).
func ParseFlashcards(content string, n int) []Flashcard {
	raw := content
	if m := arrayPattern.FindString(content); m != "" {
		raw = m
	}

	var cards []Flashcard
	if err := json.Unmarshal([]byte(raw), &cards); err != nil {
		cards = flashcardsFromText(content)
	}

	out := make([]Flashcard, 0, len(cards))
	for _, c := range cards {
		c.Question = strings.TrimSpace(c.Question)
		c.Answer = strings.TrimSpace(c.Answer)
		c.Category = strings.TrimSpace(c.Category)
		if c.Question == "" && c.Answer == "" {
			continue
		}
		if c.Question == "" {
			c.Question = missingQuestion
		}
		if c.Answer == "" {
			c.Answer = missingAnswer
		}
		if c.Category == "" {
			c.Category = defaultCategory
		}
		out = append(out, c)
	}

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// textCard tracks which fields were set, not just their values.
type textCard struct {
	Flashcard
	hasQuestion, hasAnswer, touched bool
}

func flashcardsFromText(content string) []Flashcard {
	var (
		cards   []Flashcard
		current textCard
	)
	flush := func() {
		if current.touched {
			cards = append(cards, current.Flashcard)
		}
		current = textCard{}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}

		current.touched = true
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "question"):
			current.Question = afterColon(line, line)
			current.hasQuestion = true
		case strings.HasPrefix(lower, "answer"):
			current.Answer = afterColon(line, line)
			current.hasAnswer = true
		case strings.HasPrefix(lower, "category"):
			current.Category = afterColon(line, defaultCategory)
		case !current.hasQuestion:
			current.Question = line
			current.hasQuestion = true
		case !current.hasAnswer:
			current.Answer = line
			current.hasAnswer = true
		default:
			current.Answer += " " + line
		}
	}
	flush()

	return cards
}

func afterColon(line, fallback string) string {
	_, value, ok := strings.Cut(line, ":")
	if !ok {
		return fallback
	}
	return strings.TrimSpace(value)
}
