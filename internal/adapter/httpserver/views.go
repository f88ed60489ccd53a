package httpserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/pscheid92/moodmap/internal/adapter/boundary"
	"github.com/pscheid92/moodmap/internal/app"
	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/mood"
)

type moodShare struct {
	Mood    domain.Mood `json:"mood"`
	Count   int         `json:"count"`
	Percent int         `json:"percent"`
	Emoji   string      `json:"emoji"`
	Color   string      `json:"color"`
}

type neighborhoodView struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Total       int               `json:"total"`
	Dominant    domain.Mood       `json:"dominant"`
	Emoji       string            `json:"emoji"`
	Color       string            `json:"color"`
	Counts      domain.MoodCounts `json:"counts"`
	Shares      []moodShare       `json:"shares"`
	Examples    []domain.Example  `json:"examples"`
}

type legendEntry struct {
	Mood  domain.Mood `json:"mood"`
	Emoji string      `json:"emoji"`
	Color string      `json:"color"`
}

type statusView struct {
	WindowHours int        `json:"window_hours"`
	UpdatedAt   *time.Time `json:"updated_at"`
	Degraded    bool       `json:"degraded"`
	Error       string     `json:"error,omitempty"`
	Refreshing  bool       `json:"refreshing"`
}

type mapResponse struct {
	statusView
	SnapshotID    *uuid.UUID         `json:"snapshot_id"`
	RecordCount   int                `json:"record_count"`
	HighContrast  bool               `json:"high_contrast"`
	Neighborhoods []neighborhoodView `json:"neighborhoods"`
	Legend        []legendEntry      `json:"legend"`
}

type rankedScore struct {
	Rank    int     `json:"rank"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Percent int     `json:"percent"`
}

type rankedDelta struct {
	Rank    int     `json:"rank"`
	Name    string  `json:"name"`
	Delta   float64 `json:"delta"`
	Percent int     `json:"percent"`
}

type leaderboardResponse struct {
	statusView
	Happiest []rankedScore `json:"happiest"`
	Stressed []rankedScore `json:"stressed"`
	Improved []rankedDelta `json:"improved"`
}

type locateResponse struct {
	Name         string            `json:"name"`
	DisplayName  string            `json:"display_name"`
	Neighborhood *neighborhoodView `json:"neighborhood"`
}

func newStatusView(st app.State, refreshing bool) statusView {
	v := statusView{
		WindowHours: st.WindowHours,
		Degraded:    st.Degraded,
		Error:       st.LastError,
		Refreshing:  refreshing,
	}
	if st.Snapshot != nil {
		at := st.Snapshot.GeneratedAt
		v.UpdatedAt = &at
	}
	return v
}

func newNeighborhoodView(s domain.NeighborhoodStats, idx *boundary.Index, highContrast bool) neighborhoodView {
	v := neighborhoodView{
		Name:        s.Name,
		DisplayName: displayName(s.Name, idx),
		Total:       s.Total,
		Dominant:    s.Dominant,
		Emoji:       s.Emoji,
		Color:       mood.Color(s.Dominant, highContrast),
		Counts:      s.Counts,
		Shares:      make([]moodShare, 0, len(domain.Moods)),
		Examples:    s.Examples,
	}
	for _, m := range domain.Moods {
		v.Shares = append(v.Shares, moodShare{
			Mood:    m,
			Count:   s.Counts.Get(m),
			Percent: s.Percent(m),
			Emoji:   mood.Emoji(m),
			Color:   mood.Color(m, highContrast),
		})
	}
	if v.Examples == nil {
		v.Examples = []domain.Example{}
	}
	return v
}

func newMapResponse(st app.State, refreshing bool, idx *boundary.Index, highContrast bool) mapResponse {
	resp := mapResponse{
		statusView:    newStatusView(st, refreshing),
		HighContrast:  highContrast,
		Neighborhoods: []neighborhoodView{},
		Legend:        newLegend(highContrast),
	}
	if snap := st.Snapshot; snap != nil {
		id := snap.ID
		resp.SnapshotID = &id
		resp.RecordCount = snap.RecordCount
		for _, s := range snap.Neighborhoods {
			resp.Neighborhoods = append(resp.Neighborhoods, newNeighborhoodView(s, idx, highContrast))
		}
	}
	return resp
}

func newLeaderboardResponse(st app.State, refreshing bool) leaderboardResponse {
	resp := leaderboardResponse{
		statusView: newStatusView(st, refreshing),
		Happiest:   []rankedScore{},
		Stressed:   []rankedScore{},
		Improved:   []rankedDelta{},
	}
	if st.Snapshot == nil {
		return resp
	}

	lb := st.Snapshot.Leaderboard
	resp.Happiest = rankScores(lb.Happiest)
	resp.Stressed = rankScores(lb.Stressed)
	for i, e := range lb.Improved {
		resp.Improved = append(resp.Improved, rankedDelta{Rank: i + 1, Name: e.Name, Delta: e.Delta, Percent: e.Percent()})
	}
	return resp
}

func rankScores(entries []domain.ScoreEntry) []rankedScore {
	out := make([]rankedScore, 0, len(entries))
	for i, e := range entries {
		out = append(out, rankedScore{Rank: i + 1, Name: e.Name, Score: e.Score, Percent: e.Percent()})
	}
	return out
}

func newLegend(highContrast bool) []legendEntry {
	out := make([]legendEntry, 0, len(domain.Moods))
	for _, m := range domain.Moods {
		out = append(out, legendEntry{Mood: m, Emoji: mood.Emoji(m), Color: mood.Color(m, highContrast)})
	}
	return out
}

// displayName prefers the boundary file's spelling of a normalized name.
func displayName(name string, idx *boundary.Index) string {
	if idx != nil {
		if display, ok := idx.DisplayName(name); ok {
			return display
		}
	}
	return name
}
