package domain

import (
	"time"

	"github.com/google/uuid"
)

// MapSnapshot is the immutable result of one refresh cycle.
type MapSnapshot struct {
	ID            uuid.UUID           `json:"id"`
	WindowHours   int                 `json:"window_hours"`
	GeneratedAt   time.Time           `json:"generated_at"`
	RecordCount   int                 `json:"record_count"`
	Neighborhoods []NeighborhoodStats `json:"neighborhoods"`
	Leaderboard   Leaderboard         `json:"leaderboard"`
}

// Lookup finds a neighborhood by name, ignoring case and surrounding blanks.
func (s *MapSnapshot) Lookup(name string) (NeighborhoodStats, bool) {
	if s == nil {
		return NeighborhoodStats{}, false
	}
	key := NormalizeName(name)
	for _, n := range s.Neighborhoods {
		if n.Name == key {
			return n, true
		}
	}
	return NeighborhoodStats{}, false
}

// Index returns the neighborhoods keyed by normalized name.
func (s *MapSnapshot) Index() map[string]NeighborhoodStats {
	if s == nil {
		return map[string]NeighborhoodStats{}
	}
	out := make(map[string]NeighborhoodStats, len(s.Neighborhoods))
	for _, n := range s.Neighborhoods {
		out[n.Name] = n
	}
	return out
}
