package mood

import (
	"strings"

	"github.com/pscheid92/moodmap/internal/domain"
)

// rule is a keyword set tested as case-insensitive substrings.
type rule struct {
	mood     domain.Mood
	keywords []string
}

var (
	positiveKeywords = []string{"resolved", "completed", "removed", "fixed", "abated", "work completed"}

	// Tested in order after the positive rule. First match wins.
	rules = []rule{
		{domain.MoodExcited, []string{"event", "festival", "parade", "celebration", "opening", "grand"}},
		{domain.MoodAnxious, []string{"suspicious", "possible", "concern", "unsafe", "fear", "risk", "emergency", "alarm"}},
		{domain.MoodNegative, []string{
			"complaint", "noise", "graffiti", "encampment", "trash", "overflow", "pothole",
			"blocked", "illegal", "abandoned", "broken", "vandal", "hazard",
		}},
	}
)

// Classify returns the mood of text. Resolution keywords win over everything else,
// so "graffiti removed" is positive. It never fails; unmatched text is neutral.
func Classify(text string) domain.Mood {
	lower := strings.ToLower(text)

	if isPositive(lower) {
		return domain.MoodPositive
	}
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			return r.mood
		}
	}
	return domain.MoodNeutral
}

// ClassifyRecord classifies the record's joined text fields.
func ClassifyRecord(r domain.Record) domain.Mood {
	return Classify(r.Text())
}

func isPositive(lower string) bool {
	return containsAny(lower, positiveKeywords) || closedWithoutDuplicate(lower)
}

// closedWithoutDuplicate reports whether some "closed" is not followed by
// "duplicate" later on the same line.
func closedWithoutDuplicate(lower string) bool {
	const word = "closed"
	for offset := 0; ; {
		i := strings.Index(lower[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		rest := lower[start+len(word):]
		if end := strings.IndexAny(rest, "\n\r\u2028\u2029"); end >= 0 {
			rest = rest[:end]
		}
		if !strings.Contains(rest, "duplicate") {
			return true
		}
		offset = start + 1
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
