package domain

// Example is a sample record shown in a neighborhood tooltip.
type Example struct {
	Title string `json:"title"`
	Time  string `json:"time"`
	URL   string `json:"url,omitempty"`
}

// NeighborhoodStats is the per-neighborhood rollup of one refresh cycle.
type NeighborhoodStats struct {
	Name     string     `json:"name"`
	Counts   MoodCounts `json:"counts"`
	Total    int        `json:"total"`
	Dominant Mood       `json:"dominant"`
	Emoji    string     `json:"emoji"`
	Examples []Example  `json:"examples"`
}

// Ratio returns count/Total, or 0 when Total is not positive.
func (s NeighborhoodStats) Ratio(count int) float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(count) / float64(s.Total)
}

// Percent returns the share of m rounded to a whole percentage.
func (s NeighborhoodStats) Percent(m Mood) int {
	total := s.Total
	if total <= 0 {
		total = 1
	}
	return roundPercent(float64(s.Counts.Get(m)) / float64(total))
}

func roundPercent(ratio float64) int {
	p := ratio * 100
	if p < 0 {
		return -int(-p + 0.5)
	}
	return int(p + 0.5)
}
