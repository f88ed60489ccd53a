package boundary

import (
	"maps"

	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/mood"
)

// Property names written onto each feature.
const (
	PropColor = "_color"
	PropEmoji = "emoji"
	PropMood  = "mood"
)

// Choropleth returns a copy of the boundary collection with mood, emoji and
// fill color joined by normalized name. Neighborhoods without statistics are
// painted neutral with no emoji. The source collection is never modified.
func (idx *Index) Choropleth(stats []domain.NeighborhoodStats, highContrast bool) FeatureCollection {
	byName := make(map[string]domain.NeighborhoodStats, len(stats))
	for _, s := range stats {
		byName[normalizeName(s.Name)] = s
	}

	out := FeatureCollection{
		Type:     idx.collection.Type,
		Features: make([]Feature, 0, len(idx.collection.Features)),
	}
	for _, f := range idx.collection.Features {
		props := make(map[string]any, len(f.Properties)+3)
		maps.Copy(props, f.Properties)

		m, emoji := domain.MoodNeutral, ""
		if s, ok := byName[normalizeName(f.Name())]; ok {
			m, emoji = s.Dominant, s.Emoji
		}
		props[PropMood] = string(m)
		props[PropEmoji] = emoji
		props[PropColor] = mood.Color(m, highContrast)

		out.Features = append(out.Features, Feature{Type: f.Type, Properties: props, Geometry: f.Geometry})
	}
	return out
}
