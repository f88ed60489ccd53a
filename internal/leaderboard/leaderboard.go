// Package leaderboard ranks neighborhood statistics into top-N lists.
package leaderboard

import (
	"sort"

	"github.com/pscheid92/moodmap/internal/domain"
)

// Size is the number of entries in each list.
const Size = 5

// Happiest ranks neighborhoods by their share of positive records.
func Happiest(stats []domain.NeighborhoodStats) []domain.ScoreEntry {
	return rank(stats, func(s domain.NeighborhoodStats) float64 {
		return s.Ratio(s.Counts.Positive)
	})
}

// Stressed ranks neighborhoods by their share of negative and anxious records.
func Stressed(stats []domain.NeighborhoodStats) []domain.ScoreEntry {
	return rank(stats, func(s domain.NeighborhoodStats) float64 {
		return s.Ratio(s.Counts.Negative + s.Counts.Anxious)
	})
}

// Improved ranks today's neighborhoods by happiness ratio gained since yesterday.
// A neighborhood missing from yesterday has a baseline of 0. Neighborhoods seen
// only yesterday are ignored.
func Improved(today, yesterday []domain.NeighborhoodStats) []domain.DeltaEntry {
	baseline := make(map[string]float64, len(yesterday))
	for _, s := range yesterday {
		key := domain.NormalizeName(s.Name)
		if _, seen := baseline[key]; !seen {
			baseline[key] = happiness(s)
		}
	}

	entries := make([]domain.DeltaEntry, 0, len(today))
	for _, s := range today {
		entries = append(entries, domain.DeltaEntry{
			Name:  s.Name,
			Delta: happiness(s) - baseline[domain.NormalizeName(s.Name)],
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Delta > entries[j].Delta })
	return entries[:min(len(entries), Size)]
}

// Compute builds all three lists. A nil yesterday ranks improvement against a zero baseline.
func Compute(today, yesterday []domain.NeighborhoodStats) domain.Leaderboard {
	return domain.Leaderboard{
		Happiest: Happiest(today),
		Stressed: Stressed(today),
		Improved: Improved(today, yesterday),
	}
}

// happiness treats a non-positive total as 1.
func happiness(s domain.NeighborhoodStats) float64 {
	total := s.Total
	if total <= 0 {
		total = 1
	}
	return float64(s.Counts.Positive) / float64(total)
}

func rank(stats []domain.NeighborhoodStats, score func(domain.NeighborhoodStats) float64) []domain.ScoreEntry {
	entries := make([]domain.ScoreEntry, 0, len(stats))
	for _, s := range stats {
		entries = append(entries, domain.ScoreEntry{Name: s.Name, Score: score(s)})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	return entries[:min(len(entries), Size)]
}
