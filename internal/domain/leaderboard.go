package domain

// ScoreEntry is a ranked neighborhood with a ratio score in [0, 1].
type ScoreEntry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Percent returns the score as a whole percentage.
func (e ScoreEntry) Percent() int { return roundPercent(e.Score) }

// DeltaEntry is a ranked neighborhood with a day-over-day happiness delta in [-1, 1].
type DeltaEntry struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
}

// Percent returns the delta as a whole percentage.
func (e DeltaEntry) Percent() int { return roundPercent(e.Delta) }

// Leaderboard bundles the three ranked lists.
type Leaderboard struct {
	Happiest []ScoreEntry `json:"happiest"`
	Stressed []ScoreEntry `json:"stressed"`
	Improved []DeltaEntry `json:"improved"`
}
