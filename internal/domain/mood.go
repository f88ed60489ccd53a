package domain

// Mood is the sentiment category assigned to a single service request.
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNeutral  Mood = "neutral"
	MoodNegative Mood = "negative"
	MoodAnxious  Mood = "anxious"
	MoodExcited  Mood = "excited"
)

// Moods lists every mood in declaration order. Tie-breaks iterate this slice.
var Moods = []Mood{MoodPositive, MoodNeutral, MoodNegative, MoodAnxious, MoodExcited}

// ParseMood converts a string to a Mood. Unknown values report false.
func ParseMood(s string) (Mood, bool) {
	switch Mood(s) {
	case MoodPositive, MoodNeutral, MoodNegative, MoodAnxious, MoodExcited:
		return Mood(s), true
	default:
		return "", false
	}
}

func (m Mood) String() string { return string(m) }

// MoodCounts holds one counter per mood. All five keys are always serialized.
type MoodCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
	Anxious  int `json:"anxious"`
	Excited  int `json:"excited"`
}

// Get returns the counter for m, or 0 for an unknown mood.
func (c MoodCounts) Get(m Mood) int {
	switch m {
	case MoodPositive:
		return c.Positive
	case MoodNeutral:
		return c.Neutral
	case MoodNegative:
		return c.Negative
	case MoodAnxious:
		return c.Anxious
	case MoodExcited:
		return c.Excited
	default:
		return 0
	}
}

// Inc increments the counter for m. Unknown moods are ignored.
func (c *MoodCounts) Inc(m Mood) {
	switch m {
	case MoodPositive:
		c.Positive++
	case MoodNeutral:
		c.Neutral++
	case MoodNegative:
		c.Negative++
	case MoodAnxious:
		c.Anxious++
	case MoodExcited:
		c.Excited++
	}
}

// Sum returns the raw number of counted records.
func (c MoodCounts) Sum() int {
	return c.Positive + c.Neutral + c.Negative + c.Anxious + c.Excited
}

// Dominant returns the mood with the highest count. Equal counts resolve to the
// mood declared first in Moods, so an all-zero set yields MoodPositive.
func (c MoodCounts) Dominant() Mood {
	best := Moods[0]
	bestCount := c.Get(best)
	for _, m := range Moods[1:] {
		if n := c.Get(m); n > bestCount {
			best, bestCount = m, n
		}
	}
	return best
}

// AsMap returns the counts keyed by mood.
func (c MoodCounts) AsMap() map[Mood]int {
	out := make(map[Mood]int, len(Moods))
	for _, m := range Moods {
		out[m] = c.Get(m)
	}
	return out
}
